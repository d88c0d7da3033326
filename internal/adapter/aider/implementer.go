// Package aider implements the implementer port on the Aider CLI.
package aider

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
	implementerName = "aider_cli"
	binName         = "aider"
)

// DefaultTimeout bounds one implementation pass.
const DefaultTimeout = 300 * time.Second

type runFunc func(ctx context.Context, dir, message string) (stdout, stderr string, exitCode int, err error)

// Implementer runs Aider in scripted mode: one message, edits applied
// without confirmation prompts.
type Implementer struct {
	timeout  time.Duration
	run      runFunc
	lookPath func(string) (string, error)
}

// New creates an Aider implementer. A zero timeout falls back to
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

// Register registers the Aider implementer factory.
func Register(timeout time.Duration) {
	implementer.Register(implementerName, func(_ map[string]string) (implementer.Implementer, error) {
		return New(timeout), nil
	})
}

// Name returns "aider_cli".
func (i *Implementer) Name() string { return implementerName }

// Available reports whether the aider binary is on PATH.
func (i *Implementer) Available() bool {
	_, err := i.lookPath(binName)
	return err == nil
}

// Implement runs one Aider pass against workingDir. Run failures land in
// the Result so the loop can still write a handoff document.
func (i *Implementer) Implement(ctx context.Context, plan, workingDir string) (*implementer.Result, error) {
	if !i.Available() {
		return &implementer.Result{OK: false, Summary: "Aider is not available"}, nil
	}

	stdout, stderr, code, err := i.run(ctx, workingDir, buildMessage(plan))
	switch {
	case err == nil && code == 0:
		return &implementer.Result{OK: true, Summary: stdout}, nil
	case errors.Is(err, context.DeadlineExceeded):
		return &implementer.Result{
			OK:      false,
			Summary: fmt.Sprintf("Aider timed out after %ds", int(i.timeout.Seconds())),
		}, nil
	case code > 0:
		return &implementer.Result{
			OK:      false,
			Summary: fmt.Sprintf("Aider error (exit %d): %s", code, stderr),
		}, nil
	default:
		return &implementer.Result{OK: false, Summary: err.Error()}, nil
	}
}

func buildMessage(plan string) string {
	return fmt.Sprintf(`Apply the following plan to this repository.

## Plan
%s

Make the edits the plan calls for, then summarize what changed.`, plan)
}

func (i *Implementer) execRun(ctx context.Context, dir, message string) (string, string, int, error) {
	runCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, binName, "--yes-always", "--message", message)
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
