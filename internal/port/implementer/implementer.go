// Package implementer defines the implementer backend port (interface) and
// its registry.
package implementer

import "context"

// Result is the outcome of one implementation pass. A pass that ran but did
// not succeed sets OK to false and explains itself in Summary; the error
// return of Implement is reserved for infrastructure failures.
type Result struct {
	OK      bool   `json:"ok"`
	Summary string `json:"summary"`
}

// Implementer is the port interface for executing one implementation pass
// against a working directory.
type Implementer interface {
	// Name returns the unique identifier for this implementer
	// (e.g. "codex_cli").
	Name() string

	// Available reports whether the implementer can run on this host.
	Available() bool

	// Implement executes the given plan inside workingDir.
	Implement(ctx context.Context, plan, workingDir string) (*Result, error)
}
