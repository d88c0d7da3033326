package guarded_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/LoopForge/internal/adapter/guarded"
	"github.com/Strob0t/LoopForge/internal/domain"
	"github.com/Strob0t/LoopForge/internal/port/planner"
	"github.com/Strob0t/LoopForge/internal/resilience"
)

var _ planner.Planner = (*guarded.Planner)(nil)

type fakePlanner struct {
	available bool
	out       string
	err       error
	calls     int
}

func (f *fakePlanner) Available() bool { return f.available }

func (f *fakePlanner) Version(context.Context) string { return "9.9.9" }

func (f *fakePlanner) ExtensionInstalled(context.Context, string) bool { return false }

func (f *fakePlanner) GenerateSpec(_ context.Context, _, _ string, _ planner.InvokeOptions) (string, error) {
	f.calls++
	return f.out, f.err
}

func (f *fakePlanner) GeneratePlan(_ context.Context, _, _ string, _ planner.InvokeOptions) (string, error) {
	f.calls++
	return f.out, f.err
}

func (f *fakePlanner) GenerateReview(_ context.Context, _, _ string, _ planner.InvokeOptions) (string, error) {
	f.calls++
	return f.out, f.err
}

func TestGuardPassesThroughSuccess(t *testing.T) {
	inner := &fakePlanner{available: true, out: "# Plan\n"}
	p := guarded.NewPlanner(inner, resilience.NewBreaker(3, time.Second))

	got, err := p.GeneratePlan(context.Background(), "task", "", planner.InvokeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got != "# Plan\n" {
		t.Errorf("output = %q", got)
	}
	if !p.Available() {
		t.Error("expected available while closed")
	}
}

func TestGuardTripsAfterConsecutiveFailures(t *testing.T) {
	inner := &fakePlanner{available: true, err: &planner.RunError{Msg: "Error (exit 1): boom"}}
	p := guarded.NewPlanner(inner, resilience.NewBreaker(2, time.Minute))

	for i := 0; i < 2; i++ {
		if _, err := p.GenerateReview(context.Background(), "p", "i", planner.InvokeOptions{}); err == nil {
			t.Fatal("expected failure from inner planner")
		}
	}

	_, err := p.GenerateSpec(context.Background(), "task", "", planner.InvokeOptions{})
	if !errors.Is(err, domain.ErrCollaborator) {
		t.Fatalf("expected collaborator error while open, got %v", err)
	}
	if got := err.Error(); got != "Planner disabled after repeated failures; retrying after cooldown" {
		t.Errorf("unexpected message %q", got)
	}
	if inner.calls != 2 {
		t.Errorf("inner called %d times, want 2 (open circuit must not spawn)", inner.calls)
	}
	if p.Available() {
		t.Error("expected unavailable while open")
	}
	if got := p.BreakerState(); got != "open" {
		t.Errorf("BreakerState() = %q, want open", got)
	}
}

func TestGuardRecoversAfterCooldown(t *testing.T) {
	inner := &fakePlanner{available: true, err: &planner.RunError{Msg: "Error (exit 1): boom"}}
	p := guarded.NewPlanner(inner, resilience.NewBreaker(1, 10*time.Millisecond))

	if _, err := p.GeneratePlan(context.Background(), "task", "", planner.InvokeOptions{}); err == nil {
		t.Fatal("expected failure from inner planner")
	}
	if p.Available() {
		t.Fatal("expected unavailable right after tripping")
	}

	time.Sleep(20 * time.Millisecond)
	inner.err = nil
	inner.out = "recovered"

	got, err := p.GeneratePlan(context.Background(), "task", "", planner.InvokeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got != "recovered" {
		t.Errorf("output = %q", got)
	}
	if got := p.BreakerState(); got != "closed" {
		t.Errorf("BreakerState() = %q, want closed", got)
	}
}

func TestGuardLeavesProbesUnguarded(t *testing.T) {
	inner := &fakePlanner{available: true, err: &planner.RunError{Msg: "down"}}
	p := guarded.NewPlanner(inner, resilience.NewBreaker(1, time.Minute))

	_, _ = p.GenerateSpec(context.Background(), "task", "", planner.InvokeOptions{})

	if got := p.Version(context.Background()); got != "9.9.9" {
		t.Errorf("Version() = %q while open, want pass-through", got)
	}
}
