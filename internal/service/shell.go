package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/Strob0t/LoopForge/internal/domain"
	"github.com/Strob0t/LoopForge/internal/domain/shellpolicy"
)

// DefaultShellTimeout bounds command runtime when the caller does not set one.
const DefaultShellTimeout = 60 * time.Second

// ShellResult is the outcome of one shell command run.
type ShellResult struct {
	OK       bool   `json:"ok"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

type shellRunFunc func(ctx context.Context, command, dir string) (stdout, stderr string, exitCode int, err error)

// ShellService executes read-only shell commands that pass the policy gate.
type ShellService struct {
	enabled bool
	run     shellRunFunc
}

// NewShellService creates a ShellService. Commands are rejected outright
// unless enabled is true.
func NewShellService(enabled bool) *ShellService {
	s := &ShellService{enabled: enabled}
	s.run = execShell
	return s
}

// Run evaluates command against the policy and executes it in cwd.
// A nonzero exit is reported in the result, not as an error; errors are
// reserved for policy rejections.
func (s *ShellService) Run(ctx context.Context, command, cwd string, timeout time.Duration) (*ShellResult, error) {
	if !s.enabled {
		return nil, fmt.Errorf("shell commands are disabled: %w", domain.ErrForbidden)
	}
	if d := shellpolicy.Decide(command); !d.Allowed {
		return nil, fmt.Errorf("%s: %w", d.Reason, domain.ErrForbidden)
	}
	if timeout <= 0 {
		timeout = DefaultShellTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, stderr, code, err := s.run(runCtx, command, cwd)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ShellResult{ExitCode: -1, Stderr: fmt.Sprintf("Timed out after %ds", int(timeout.Seconds()))}, nil
	case err != nil && code < 0:
		return &ShellResult{ExitCode: -1, Stderr: err.Error()}, nil
	default:
		return &ShellResult{OK: code == 0, ExitCode: code, Stdout: stdout, Stderr: stderr}, nil
	}
}

func execShell(ctx context.Context, command, dir string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command) //nolint:gosec // Command passed the policy gate.
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return stdout.String(), stderr.String(), -1, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), stderr.String(), exitErr.ExitCode(), err
		}
		return stdout.String(), stderr.String(), -1, err
	}
	return stdout.String(), stderr.String(), 0, nil
}
