// Package geminicli implements the planner port by shelling out to the
// Gemini CLI.
package geminicli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Strob0t/LoopForge/internal/port/planner"
	"github.com/Strob0t/LoopForge/internal/textio"
)

// DefaultBin is the binary looked up on PATH when none is configured.
const DefaultBin = "gemini"

// Prompted generations can take minutes; probes must stay snappy.
const (
	DefaultPromptTimeout  = 120 * time.Second
	versionProbeTimeout   = 10 * time.Second
	extensionProbeTimeout = 30 * time.Second
)

type runFunc func(ctx context.Context, timeout time.Duration, args ...string) (stdout, stderr string, exitCode int, err error)

// Client runs the Gemini CLI with per-invocation timeouts.
type Client struct {
	bin           string
	promptTimeout time.Duration
	run           runFunc
	lookPath      func(string) (string, error)
}

// New returns a Client for the given binary. Empty or zero arguments fall
// back to DefaultBin and DefaultPromptTimeout.
func New(bin string, promptTimeout time.Duration) *Client {
	c := &Client{bin: bin, promptTimeout: promptTimeout}
	if c.bin == "" {
		c.bin = DefaultBin
	}
	if c.promptTimeout <= 0 {
		c.promptTimeout = DefaultPromptTimeout
	}
	c.run = c.execRun
	c.lookPath = exec.LookPath
	return c
}

// Available reports whether the CLI binary is on PATH.
func (c *Client) Available() bool {
	_, err := c.lookPath(c.bin)
	return err == nil
}

// Version returns the trimmed output of --version, or "" on any failure.
func (c *Client) Version(ctx context.Context) string {
	if !c.Available() {
		return ""
	}
	stdout, _, code, err := c.run(ctx, versionProbeTimeout, "--version")
	if err != nil || code != 0 {
		return ""
	}
	return strings.TrimSpace(stdout)
}

// ExtensionInstalled reports whether the named extension appears in the
// CLI's extension listing.
func (c *Client) ExtensionInstalled(ctx context.Context, name string) bool {
	if !c.Available() || name == "" {
		return false
	}
	stdout, _, code, err := c.run(ctx, extensionProbeTimeout, "extensions", "list")
	if err != nil || code != 0 {
		return false
	}
	return strings.Contains(strings.ToLower(stdout), strings.ToLower(name))
}

// GenerateSpec produces a specification for the task.
func (c *Client) GenerateSpec(ctx context.Context, task, taskContext string, opts planner.InvokeOptions) (string, error) {
	return c.runPrompt(ctx, specPrompt(task, taskContext), opts)
}

// GeneratePlan produces an implementation plan for the task.
func (c *Client) GeneratePlan(ctx context.Context, task, taskContext string, opts planner.InvokeOptions) (string, error) {
	return c.runPrompt(ctx, planPrompt(task, taskContext), opts)
}

// GenerateReview reviews an implementation summary against its plan.
func (c *Client) GenerateReview(ctx context.Context, plan, implementation string, opts planner.InvokeOptions) (string, error) {
	return c.runPrompt(ctx, reviewPrompt(plan, implementation), opts)
}

// runPrompt invokes the CLI once. Failures come back as planner.RunError so
// the engine can embed the message in a fallback artifact.
func (c *Client) runPrompt(ctx context.Context, prompt string, opts planner.InvokeOptions) (string, error) {
	if !c.Available() {
		return "", &planner.RunError{Msg: "Gemini CLI is not available"}
	}

	stdout, stderr, code, err := c.run(ctx, c.promptTimeout, buildArgs(opts, prompt)...)
	switch {
	case err == nil && code == 0:
		return stdout, nil
	case errors.Is(err, context.DeadlineExceeded):
		return "", &planner.RunError{Msg: fmt.Sprintf("Command timed out after %d seconds", int(c.promptTimeout.Seconds()))}
	case code > 0:
		return "", &planner.RunError{Msg: fmt.Sprintf("Error (exit %d): %s", code, stderr)}
	default:
		return "", &planner.RunError{Msg: err.Error()}
	}
}

// buildArgs places the model and extension flags ahead of the prompt.
func buildArgs(opts planner.InvokeOptions, prompt string) []string {
	args := make([]string, 0, 6)
	if opts.Model != "" {
		args = append(args, "-m", opts.Model)
	}
	if len(opts.Extensions) > 0 {
		args = append(args, "-e", strings.Join(opts.Extensions, ","))
	}
	return append(args, "-p", prompt)
}

func specPrompt(task, taskContext string) string {
	// Tool arguments come from arbitrary clients; keep raw control bytes
	// out of the prompt.
	task = textio.StripControl(task)
	taskContext = textio.StripControl(taskContext)
	return fmt.Sprintf(`You are a spec writing agent. Write a clear, final specification.

Task: %s

%s

Write a structured spec with:
1. Overview
2. Goals and non-goals
3. Requirements
4. Acceptance criteria (bulleted, testable)
5. Edge cases

Output the spec in markdown format.`, task, contextLine(taskContext))
}

func planPrompt(task, taskContext string) string {
	task = textio.StripControl(task)
	taskContext = textio.StripControl(taskContext)
	return fmt.Sprintf(`You are a planning agent. Create a detailed implementation plan.

Task: %s

%s

Write a structured plan with:
1. Goal summary
2. Step-by-step implementation steps
3. Expected deliverables
4. Potential issues to watch for

Output the plan in markdown format.`, task, contextLine(taskContext))
}

func reviewPrompt(plan, implementation string) string {
	return fmt.Sprintf(`You are a code review agent. Review this implementation against the plan.

## Original Plan
%s

## Implementation Summary
%s

Provide:
1. Completion assessment (what was done vs planned)
2. Quality observations
3. Suggested improvements
4. Next steps

Output in markdown format.`, plan, implementation)
}

func contextLine(taskContext string) string {
	if taskContext == "" {
		return ""
	}
	return "Context: " + taskContext
}

func (c *Client) execRun(ctx context.Context, timeout time.Duration, args ...string) (string, string, int, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.bin, args...)
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
