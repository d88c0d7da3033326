package implementer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Strob0t/LoopForge/internal/domain"
	"github.com/Strob0t/LoopForge/internal/port/implementer"
)

type fakeImplementer struct {
	name      string
	available bool
}

func (f *fakeImplementer) Name() string    { return f.name }
func (f *fakeImplementer) Available() bool { return f.available }
func (f *fakeImplementer) Implement(_ context.Context, _, _ string) (*implementer.Result, error) {
	return &implementer.Result{OK: true, Summary: "done"}, nil
}

func register(name string, available bool) {
	implementer.Register(name, func(_ map[string]string) (implementer.Implementer, error) {
		return &fakeImplementer{name: name, available: available}, nil
	})
}

func TestRegisterAndNew(t *testing.T) {
	register("test-impl", true)

	impl, err := implementer.New("test-impl", nil)
	if err != nil {
		t.Fatal(err)
	}
	if impl.Name() != "test-impl" {
		t.Fatalf("expected test-impl, got %s", impl.Name())
	}
}

func TestNewUnknownImplementer(t *testing.T) {
	_, err := implementer.New("nonexistent", nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestAvailableKeepsRegistrationOrder(t *testing.T) {
	register("zeta-impl", true)
	register("alpha-impl", true)

	names := implementer.Available()
	zeta, alpha := -1, -1
	for i, n := range names {
		switch n {
		case "zeta-impl":
			zeta = i
		case "alpha-impl":
			alpha = i
		}
	}
	if zeta == -1 || alpha == -1 {
		t.Fatalf("registered names missing from %v", names)
	}
	if zeta > alpha {
		t.Fatalf("expected registration order, got %v", names)
	}
}

func TestBestAvailablePrefersRealCLIs(t *testing.T) {
	register("codex_cli", false)
	register("claude_cli", true)
	register("simulate", true)

	impl, err := implementer.BestAvailable()
	if err != nil {
		t.Fatal(err)
	}
	if impl.Name() != "claude_cli" {
		t.Fatalf("expected claude_cli, got %s", impl.Name())
	}
}
