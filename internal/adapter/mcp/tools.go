package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/LoopForge/internal/adapter/otel"
	"github.com/Strob0t/LoopForge/internal/domain"
	"github.com/Strob0t/LoopForge/internal/domain/artifact"
	"github.com/Strob0t/LoopForge/internal/domain/cycle"
	"github.com/Strob0t/LoopForge/internal/service"
)

// pausedMessage is returned as a regular payload, not an error result, so
// clients can call resume and retry.
const pausedMessage = "Loop is paused. Call resume() first."

// registerTools registers all MCP tools on the server. Every handler is
// wrapped with call metrics and tool_error event reporting.
func (s *Server) registerTools() {
	tools := []mcpserver.ServerTool{
		s.pingTool(),
		s.getStatusTool(),
		s.getStateTool(),
		s.setStateTool(),
		s.appendEventTool(),
		s.runShellCommandTool(),
		s.getArtifactsTool(),
		s.writeArtifactTool(),
		s.generateSpecTool(),
		s.generatePlanTool(),
		s.submitHandoffTool(),
		s.generateReviewTool(),
		s.reviewArtifactsTool(),
		s.runCycleTool(),
		s.pauseTool(),
		s.resumeTool(),
	}
	for i := range tools {
		tools[i].Handler = s.instrument(tools[i].Tool.Name, tools[i].Handler)
	}
	s.mcpServer.AddTools(tools...)
}

func (s *Server) instrument(name string, next mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		ctx, span := otel.StartToolCallSpan(ctx, name)
		defer span.End()

		s.deps.Metrics.AddToolCall(ctx, name)
		res, err := next(ctx, req)
		if err != nil || (res != nil && res.IsError) {
			if err != nil {
				span.RecordError(err)
			}
			s.deps.Metrics.AddToolError(ctx, name)
			s.appendToolError(ctx, name, res, err)
		}
		return res, err
	}
}

// appendToolError records a failed tool invocation in the event log.
// Appends are best effort; a failing store must not mask the original
// tool failure.
func (s *Server) appendToolError(ctx context.Context, tool string, res *mcplib.CallToolResult, err error) {
	if s.deps.State == nil {
		return
	}
	msg := ""
	switch {
	case err != nil:
		msg = err.Error()
	case res != nil && len(res.Content) > 0:
		if text, ok := res.Content[0].(mcplib.TextContent); ok {
			msg = text.Text
		}
	}
	ev := cycle.NewEvent(cycle.TypeToolError, map[string]any{"tool": tool, "error": msg})
	if appendErr := s.deps.State.AppendEvent(ctx, ev); appendErr != nil {
		slog.Warn("append tool_error event", "tool", tool, "error", appendErr)
	}
}

func (s *Server) pingTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("ping",
		mcplib.WithDescription("Health check for loopforge."),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handlePing,
	}
}

func (s *Server) getStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_status",
		mcplib.WithDescription("Return collaborator + environment status."),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetStatus,
	}
}

func (s *Server) getStateTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_state",
		mcplib.WithDescription("Read the current loop state."),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetState,
	}
}

func (s *Server) setStateTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("set_state",
		mcplib.WithDescription("Merge a partial update into the loop state."),
		mcplib.WithObject("partial_update",
			mcplib.Required(),
			mcplib.Description("Keys to merge into the state, e.g. {\"phase\": \"planning\"}"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleSetState,
	}
}

func (s *Server) appendEventTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("append_event",
		mcplib.WithDescription("Append an event to the event log."),
		mcplib.WithString("type",
			mcplib.Description("Event type, defaults to \"unknown\""),
		),
		mcplib.WithObject("payload",
			mcplib.Description("Arbitrary event payload"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleAppendEvent,
	}
}

func (s *Server) runShellCommandTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("run_shell_command",
		mcplib.WithDescription("Execute a policy-gated shell command."),
		mcplib.WithString("command",
			mcplib.Required(),
			mcplib.Description("The command line to run"),
		),
		mcplib.WithString("cwd",
			mcplib.Description("Working directory, defaults to the hub working directory"),
		),
		mcplib.WithNumber("timeout_s",
			mcplib.Description("Timeout in seconds, defaults to 60"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleRunShellCommand,
	}
}

func (s *Server) getArtifactsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_artifacts",
		mcplib.WithDescription("Read spec.md, plan.md, handoff.md, and review.md from artifacts."),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetArtifacts,
	}
}

func (s *Server) writeArtifactTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("write_artifact",
		mcplib.WithDescription("Write an artifact under the artifact store (e.g. plan.md, handoff.md)."),
		mcplib.WithString("name",
			mcplib.Required(),
			mcplib.Description("Artifact file name"),
		),
		mcplib.WithString("content",
			mcplib.Required(),
			mcplib.Description("Full artifact content"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleWriteArtifact,
	}
}

func (s *Server) generateSpecTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("generate_spec",
		mcplib.WithDescription("Ask the planner to generate spec.md (requirements)."),
		mcplib.WithString("task_description",
			mcplib.Required(),
			mcplib.Description("What to build"),
		),
		mcplib.WithString("context",
			mcplib.Description("Additional context for the planner"),
		),
		mcplib.WithString("model",
			mcplib.Description("Planner model override"),
		),
		mcplib.WithArray("extensions",
			mcplib.Description("Planner extensions override"),
			mcplib.Items(map[string]any{"type": "string"}),
		),
		mcplib.WithNumber("quality_retries",
			mcplib.Description("Revision attempts when the quality gate fails, defaults to 0"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGenerateSpec,
	}
}

func (s *Server) generatePlanTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("generate_plan",
		mcplib.WithDescription("Ask the planner to generate plan.md and advance the state to implementing."),
		mcplib.WithString("task_description",
			mcplib.Required(),
			mcplib.Description("What to build"),
		),
		mcplib.WithString("context",
			mcplib.Description("Additional context for the planner"),
		),
		mcplib.WithString("model",
			mcplib.Description("Planner model override"),
		),
		mcplib.WithArray("extensions",
			mcplib.Description("Planner extensions override"),
			mcplib.Items(map[string]any{"type": "string"}),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGeneratePlan,
	}
}

func (s *Server) submitHandoffTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("submit_handoff",
		mcplib.WithDescription("Write handoff.md and advance the state to awaiting_review."),
		mcplib.WithString("handoff_markdown",
			mcplib.Required(),
			mcplib.Description("Implementation handoff notes"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleSubmitHandoff,
	}
}

func (s *Server) generateReviewTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("generate_review",
		mcplib.WithDescription("Ask the planner to review handoff.md against plan.md; writes review.md and completes the cycle."),
		mcplib.WithString("plan",
			mcplib.Description("Plan text, defaults to the stored plan.md"),
		),
		mcplib.WithString("implementation",
			mcplib.Description("Implementation text, defaults to the stored handoff.md"),
		),
		mcplib.WithString("model",
			mcplib.Description("Planner model override"),
		),
		mcplib.WithArray("extensions",
			mcplib.Description("Planner extensions override"),
			mcplib.Items(map[string]any{"type": "string"}),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGenerateReview,
	}
}

func (s *Server) reviewArtifactsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("review_artifacts",
		mcplib.WithDescription("Score spec.md and plan.md against quality heuristics without calling the planner."),
		mcplib.WithString("user_brief",
			mcplib.Description("Original task brief used to detect scope creep"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleReviewArtifacts,
	}
}

func (s *Server) runCycleTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("run_cycle",
		mcplib.WithDescription("Run a full plan->implement->review cycle using an implementer backend."),
		mcplib.WithString("implementer",
			mcplib.Description("Implementer backend to use"),
			mcplib.Enum("simulate", "codex_cli", "claude_cli", "aider_cli"),
		),
		mcplib.WithString("task_description",
			mcplib.Description("Task to plan against, defaults to a demonstration task"),
		),
		mcplib.WithString("context",
			mcplib.Description("Additional context for the planner"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleRunCycle,
	}
}

func (s *Server) pauseTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("pause",
		mcplib.WithDescription("Pause the loop."),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handlePause,
	}
}

func (s *Server) resumeTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("resume",
		mcplib.WithDescription("Resume the loop."),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleResume,
	}
}

func (s *Server) handlePing(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	return toolResultJSON(map[string]any{"status": "ok", "message": "loopforge is running"}), nil
}

func (s *Server) handleGetStatus(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.StatusReader == nil {
		return mcplib.NewToolResultError("status reader not configured"), nil
	}
	st, err := s.deps.StatusReader.Status(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to read status", err), nil
	}
	// The protocol version lives in this layer, not in the service snapshot.
	return toolResultJSON(struct {
		*service.Status
		ProtocolVersion string `json:"protocol_version"`
	}{st, mcplib.LATEST_PROTOCOL_VERSION}), nil
}

func (s *Server) handleGetState(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.State == nil {
		return mcplib.NewToolResultError("state store not configured"), nil
	}
	st, err := s.deps.State.Load(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to load state", err), nil
	}
	return toolResultJSON(st), nil
}

func (s *Server) handleSetState(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.State == nil {
		return mcplib.NewToolResultError("state store not configured"), nil
	}
	args := req.GetArguments()
	partial, ok := args["partial_update"].(map[string]any)
	if !ok {
		return mcplib.NewToolResultError("partial_update is required"), nil
	}
	st, err := s.deps.State.Update(ctx, partial)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to update state", err), nil
	}
	return toolResultJSON(st), nil
}

func (s *Server) handleAppendEvent(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.State == nil {
		return mcplib.NewToolResultError("state store not configured"), nil
	}
	args := req.GetArguments()
	eventType, _ := args["type"].(string)
	payload, _ := args["payload"].(map[string]any)
	ev := cycle.NewEvent(eventType, payload)
	if err := s.deps.State.AppendEvent(ctx, ev); err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to append event", err), nil
	}
	return toolResultJSON(ev), nil
}

func (s *Server) handleRunShellCommand(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.ShellRunner == nil {
		return mcplib.NewToolResultError("shell runner not configured"), nil
	}
	args := req.GetArguments()
	command, ok := args["command"].(string)
	if !ok || command == "" {
		return mcplib.NewToolResultError("command is required"), nil
	}
	cwd, _ := args["cwd"].(string)
	var timeout time.Duration
	if secs, ok := args["timeout_s"].(float64); ok {
		timeout = time.Duration(secs) * time.Second
	}
	res, err := s.deps.ShellRunner.Run(ctx, command, cwd, timeout)
	if err != nil {
		// Rejected commands keep the result shape so callers can parse
		// ok/exit_code uniformly.
		if errors.Is(err, domain.ErrForbidden) {
			return toolResultJSON(service.ShellResult{ExitCode: -1, Stderr: err.Error()}), nil
		}
		return mcplib.NewToolResultErrorFromErr("failed to run command", err), nil
	}
	return toolResultJSON(res), nil
}

func (s *Server) handleGetArtifacts(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Artifacts == nil {
		return mcplib.NewToolResultError("artifact store not configured"), nil
	}
	out := make(map[string]any, len(artifact.Known()))
	for _, name := range artifact.Known() {
		key := strings.TrimSuffix(name, ".md")
		content, err := s.deps.Artifacts.Read(ctx, name)
		switch {
		case err == nil:
			out[key] = content
		case errors.Is(err, domain.ErrNotFound):
			out[key] = nil
		default:
			return mcplib.NewToolResultErrorFromErr("failed to read artifacts", err), nil
		}
	}
	return toolResultJSON(out), nil
}

func (s *Server) handleWriteArtifact(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Artifacts == nil {
		return mcplib.NewToolResultError("artifact store not configured"), nil
	}
	args := req.GetArguments()
	name, ok := args["name"].(string)
	if !ok || name == "" {
		return mcplib.NewToolResultError("name is required"), nil
	}
	content, ok := args["content"].(string)
	if !ok {
		return mcplib.NewToolResultError("content is required"), nil
	}
	if _, err := s.deps.Artifacts.Write(ctx, name, content); err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to write artifact %s", name), err,
		), nil
	}
	return toolResultJSON(map[string]any{"ok": true, "artifact": name}), nil
}

func (s *Server) handleGenerateSpec(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.SpecWriter == nil {
		return mcplib.NewToolResultError("spec writer not configured"), nil
	}
	args := req.GetArguments()
	task, ok := args["task_description"].(string)
	if !ok || task == "" {
		return mcplib.NewToolResultError("task_description is required"), nil
	}
	taskContext, _ := args["context"].(string)
	model, _ := args["model"].(string)
	retries := 0
	if n, ok := args["quality_retries"].(float64); ok {
		retries = int(n)
	}
	res, err := s.deps.SpecWriter.GenerateSpec(ctx, task, taskContext, model, stringSlice(args["extensions"]), retries)
	if err != nil {
		return toolFailure("failed to generate spec", err), nil
	}
	out := map[string]any{
		"ok":         true,
		"artifact":   res.Artifact,
		"spec":       res.Content,
		"model":      modelOrNull(res.Model),
		"extensions": extensionsOrEmpty(res.Extensions),
	}
	if res.Gate != nil {
		out["quality_gate"] = res.Gate
	}
	return toolResultJSON(out), nil
}

func (s *Server) handleGeneratePlan(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.CycleEngine == nil {
		return mcplib.NewToolResultError("cycle engine not configured"), nil
	}
	args := req.GetArguments()
	task, ok := args["task_description"].(string)
	if !ok || task == "" {
		return mcplib.NewToolResultError("task_description is required"), nil
	}
	taskContext, _ := args["context"].(string)
	model, _ := args["model"].(string)
	res, err := s.deps.CycleEngine.GeneratePlan(ctx, task, taskContext, model, stringSlice(args["extensions"]))
	if err != nil {
		return toolFailure("failed to generate plan", err), nil
	}
	return toolResultJSON(map[string]any{
		"ok":         true,
		"artifact":   res.Artifact,
		"plan":       res.Content,
		"model":      modelOrNull(res.Model),
		"extensions": extensionsOrEmpty(res.Extensions),
	}), nil
}

func (s *Server) handleSubmitHandoff(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.CycleEngine == nil {
		return mcplib.NewToolResultError("cycle engine not configured"), nil
	}
	args := req.GetArguments()
	content, ok := args["handoff_markdown"].(string)
	if !ok {
		return mcplib.NewToolResultError("handoff_markdown is required"), nil
	}
	name, err := s.deps.CycleEngine.SubmitHandoff(ctx, content)
	if err != nil {
		return toolFailure("failed to submit handoff", err), nil
	}
	return toolResultJSON(map[string]any{"ok": true, "artifact": name}), nil
}

func (s *Server) handleGenerateReview(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.CycleEngine == nil {
		return mcplib.NewToolResultError("cycle engine not configured"), nil
	}
	args := req.GetArguments()
	model, _ := args["model"].(string)
	reviewReq := service.ReviewRequest{
		Model:      model,
		Extensions: stringSlice(args["extensions"]),
	}
	// An explicit empty string is reviewed as-is; only an omitted argument
	// falls back to the stored artifact.
	if v, ok := args["plan"].(string); ok {
		reviewReq.Plan = &v
	}
	if v, ok := args["implementation"].(string); ok {
		reviewReq.Implementation = &v
	}
	res, err := s.deps.CycleEngine.GenerateReview(ctx, reviewReq)
	if err != nil {
		return toolFailure("failed to generate review", err), nil
	}
	return toolResultJSON(map[string]any{
		"ok":              true,
		"artifact":        res.Artifact,
		"review":          res.Content,
		"model":           modelOrNull(res.Model),
		"extensions":      extensionsOrEmpty(res.Extensions),
		"cycle_completed": res.CycleCompleted,
	}), nil
}

func (s *Server) handleReviewArtifacts(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.SpecWriter == nil {
		return mcplib.NewToolResultError("spec writer not configured"), nil
	}
	brief, _ := req.GetArguments()["user_brief"].(string)
	return toolResultJSON(s.deps.SpecWriter.ReviewArtifacts(ctx, brief)), nil
}

func (s *Server) handleRunCycle(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.CycleEngine == nil {
		return mcplib.NewToolResultError("cycle engine not configured"), nil
	}
	args := req.GetArguments()
	name, _ := args["implementer"].(string)
	task, _ := args["task_description"].(string)
	taskContext, _ := args["context"].(string)
	res, err := s.deps.CycleEngine.RunCycle(ctx, name, task, taskContext)
	if err != nil {
		return toolFailure("failed to run cycle", err), nil
	}
	return toolResultJSON(res), nil
}

func (s *Server) handlePause(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.CycleEngine == nil {
		return mcplib.NewToolResultError("cycle engine not configured"), nil
	}
	st, err := s.deps.CycleEngine.Pause(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to pause", err), nil
	}
	return toolResultJSON(map[string]any{"paused": true, "state": st}), nil
}

func (s *Server) handleResume(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.CycleEngine == nil {
		return mcplib.NewToolResultError("cycle engine not configured"), nil
	}
	st, err := s.deps.CycleEngine.Resume(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to resume", err), nil
	}
	return toolResultJSON(map[string]any{"paused": false, "state": st}), nil
}

// toolResultJSON renders v as indented JSON. HTML escaping is off so
// markdown payloads survive the round trip unmangled.
func toolResultJSON(v any) *mcplib.CallToolResult {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return mcplib.NewToolResultError("failed to encode result: " + err.Error())
	}
	return mcplib.NewToolResultText(strings.TrimSuffix(buf.String(), "\n"))
}

// toolFailure maps a service error to a tool result.
func toolFailure(action string, err error) *mcplib.CallToolResult {
	if errors.Is(err, domain.ErrPaused) {
		return toolResultJSON(map[string]any{"error": pausedMessage})
	}
	return mcplib.NewToolResultErrorFromErr(action, err)
}

// stringSlice converts a JSON array argument to a string slice. A missing
// or non-array value yields nil so callers can distinguish "omitted" from
// an explicit empty list.
func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func modelOrNull(model string) any {
	if model == "" {
		return nil
	}
	return model
}

func extensionsOrEmpty(extensions []string) []string {
	if extensions == nil {
		return []string{}
	}
	return extensions
}
