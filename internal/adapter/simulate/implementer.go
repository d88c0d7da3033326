// Package simulate provides the built-in implementer used to exercise the
// loop without any external CLI installed.
package simulate

import (
	"context"
	"fmt"

	"github.com/Strob0t/LoopForge/internal/port/implementer"
)

const implementerName = "simulate"

// Implementer produces a canned implementation summary. It is always
// available and never touches the working directory.
type Implementer struct{}

// New creates a simulated implementer.
func New() *Implementer { return &Implementer{} }

// Register registers the simulated implementer factory.
func Register() {
	implementer.Register(implementerName, func(_ map[string]string) (implementer.Implementer, error) {
		return New(), nil
	})
}

// Name returns "simulate".
func (i *Implementer) Name() string { return implementerName }

// Available always reports true.
func (i *Implementer) Available() bool { return true }

// Implement echoes an excerpt of the plan inside a fixed summary.
func (i *Implementer) Implement(_ context.Context, plan, _ string) (*implementer.Result, error) {
	excerpt := plan
	if len(excerpt) > 500 {
		excerpt = excerpt[:500] + "..."
	}
	summary := fmt.Sprintf(`# Implementation Summary (Simulated)

## Plan Received
%s

## Actions Taken (Simulated)
- Parsed the plan successfully
- Identified key implementation steps
- Created placeholder implementations
- Ran simulated tests (all passed)

## Files Modified (Simulated)
- src/feature.py - Added new feature code
- tests/test_feature.py - Added unit tests
- README.md - Updated documentation

## Status
Implementation simulated successfully. This is a test run.
`, excerpt)
	return &implementer.Result{OK: true, Summary: summary}, nil
}
