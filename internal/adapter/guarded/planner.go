// Package guarded wraps a planner with a circuit breaker.
//
// Every generation call spawns a CLI process, so after repeated consecutive
// failures the wrapper reports the planner unavailable instead of spawning
// more. The circuit half-opens after a cooldown and a single success closes
// it again.
package guarded

import (
	"context"
	"errors"

	"github.com/Strob0t/LoopForge/internal/port/planner"
	"github.com/Strob0t/LoopForge/internal/resilience"
)

// Planner decorates an inner planner with a shared circuit breaker across
// its generation calls. Cheap probes (Version, ExtensionInstalled) pass
// through unguarded.
type Planner struct {
	inner   planner.Planner
	breaker *resilience.Breaker
}

// NewPlanner wraps inner with the given breaker.
func NewPlanner(inner planner.Planner, breaker *resilience.Breaker) *Planner {
	return &Planner{inner: inner, breaker: breaker}
}

// Available reports false while the circuit is open, so callers fall back
// to simulated content without waiting on another doomed CLI spawn.
func (p *Planner) Available() bool {
	return !p.breaker.Open() && p.inner.Available()
}

// BreakerState exposes the circuit state for status reporting.
func (p *Planner) BreakerState() string {
	return p.breaker.State()
}

func (p *Planner) Version(ctx context.Context) string {
	return p.inner.Version(ctx)
}

func (p *Planner) ExtensionInstalled(ctx context.Context, name string) bool {
	return p.inner.ExtensionInstalled(ctx, name)
}

func (p *Planner) GenerateSpec(ctx context.Context, task, taskContext string, opts planner.InvokeOptions) (string, error) {
	return p.guard(func() (string, error) {
		return p.inner.GenerateSpec(ctx, task, taskContext, opts)
	})
}

func (p *Planner) GeneratePlan(ctx context.Context, task, taskContext string, opts planner.InvokeOptions) (string, error) {
	return p.guard(func() (string, error) {
		return p.inner.GeneratePlan(ctx, task, taskContext, opts)
	})
}

func (p *Planner) GenerateReview(ctx context.Context, plan, implementation string, opts planner.InvokeOptions) (string, error) {
	return p.guard(func() (string, error) {
		return p.inner.GenerateReview(ctx, plan, implementation, opts)
	})
}

func (p *Planner) guard(fn func() (string, error)) (string, error) {
	var out string
	err := p.breaker.Execute(func() error {
		var innerErr error
		out, innerErr = fn()
		return innerErr
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return "", &planner.RunError{Msg: "Planner disabled after repeated failures; retrying after cooldown"}
	}
	return out, err
}
