// Package claudecli implements the implementer port on the Claude CLI.
package claudecli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/Strob0t/LoopForge/internal/port/implementer"
)

const (
	implementerName = "claude_cli"
	binName         = "claude"
)

// DefaultTimeout bounds one implementation pass.
const DefaultTimeout = 300 * time.Second

type runFunc func(ctx context.Context, dir, prompt string) (stdout, stderr string, exitCode int, err error)

// Implementer shells out to the Claude CLI in non-interactive mode.
type Implementer struct {
	timeout  time.Duration
	run      runFunc
	lookPath func(string) (string, error)
}

// New creates a Claude implementer. A zero timeout falls back to
// DefaultTimeout.
func New(timeout time.Duration) *Implementer {
	i := &Implementer{timeout: timeout}
	if i.timeout <= 0 {
		i.timeout = DefaultTimeout
	}
	i.run = i.execRun
	i.lookPath = exec.LookPath
	return i
}

// Register registers the Claude implementer factory.
func Register(timeout time.Duration) {
	implementer.Register(implementerName, func(_ map[string]string) (implementer.Implementer, error) {
		return New(timeout), nil
	})
}

// Name returns "claude_cli".
func (i *Implementer) Name() string { return implementerName }

// Available reports whether the claude binary is on PATH.
func (i *Implementer) Available() bool {
	_, err := i.lookPath(binName)
	return err == nil
}

// Implement runs the CLI against workingDir. Run failures are reported in
// the Result rather than as an error, so a failed pass still produces a
// handoff document.
func (i *Implementer) Implement(ctx context.Context, plan, workingDir string) (*implementer.Result, error) {
	if !i.Available() {
		return &implementer.Result{OK: false, Summary: "Claude CLI is not available"}, nil
	}

	stdout, stderr, code, err := i.run(ctx, workingDir, buildPrompt(plan))
	switch {
	case err == nil && code == 0:
		return &implementer.Result{OK: true, Summary: stdout}, nil
	case errors.Is(err, context.DeadlineExceeded):
		return &implementer.Result{
			OK:      false,
			Summary: fmt.Sprintf("Claude timed out after %ds", int(i.timeout.Seconds())),
		}, nil
	case code > 0:
		return &implementer.Result{
			OK:      false,
			Summary: fmt.Sprintf("Claude error (exit %d): %s", code, stderr),
		}, nil
	default:
		return &implementer.Result{OK: false, Summary: err.Error()}, nil
	}
}

func buildPrompt(plan string) string {
	return fmt.Sprintf(`Implement the following plan. Work in the current directory.

## Plan
%s

## Instructions
1. Read and understand the plan
2. Implement each step
3. Create/modify necessary files
4. Provide a summary of what was done`, plan)
}

func (i *Implementer) execRun(ctx context.Context, dir, prompt string) (string, string, int, error) {
	runCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, binName, "-p", prompt)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() != nil {
			return stdout.String(), stderr.String(), -1, runCtx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), stderr.String(), exitErr.ExitCode(), err
		}
		return stdout.String(), stderr.String(), -1, err
	}
	return stdout.String(), stderr.String(), 0, nil
}
