// Package planner defines the port interface for the planning and review
// collaborator CLI.
package planner

import (
	"context"

	"github.com/Strob0t/LoopForge/internal/domain"
)

// InvokeOptions selects a model and extension set for one invocation. Zero
// values leave the CLI's own defaults in effect.
type InvokeOptions struct {
	Model      string
	Extensions []string
}

// RunError describes a failed CLI invocation. Its message is embedded
// verbatim in fallback artifacts, so it carries no wrapping prefix.
type RunError struct {
	Msg string
}

func (e *RunError) Error() string { return e.Msg }

// Is reports collaborator failure so callers can classify with errors.Is.
func (e *RunError) Is(target error) bool { return target == domain.ErrCollaborator }

// Planner is the port interface for the CLI collaborator that writes specs,
// plans and reviews.
type Planner interface {
	// Available reports whether the planner CLI can run on this host.
	Available() bool

	// Version returns the CLI version string, or "" when it cannot be
	// determined.
	Version(ctx context.Context) string

	// ExtensionInstalled reports whether the named CLI extension is
	// installed.
	ExtensionInstalled(ctx context.Context, name string) bool

	// GenerateSpec produces a specification for the task.
	GenerateSpec(ctx context.Context, task, taskContext string, opts InvokeOptions) (string, error)

	// GeneratePlan produces an implementation plan for the task.
	GeneratePlan(ctx context.Context, task, taskContext string, opts InvokeOptions) (string, error)

	// GenerateReview reviews an implementation summary against its plan.
	GenerateReview(ctx context.Context, plan, implementation string, opts InvokeOptions) (string, error)
}
