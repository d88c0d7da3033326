package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Strob0t/LoopForge/internal/adapter/otel"
	"github.com/Strob0t/LoopForge/internal/config"
	"github.com/Strob0t/LoopForge/internal/domain/artifact"
	"github.com/Strob0t/LoopForge/internal/domain/cycle"
	"github.com/Strob0t/LoopForge/internal/domain/review"
	"github.com/Strob0t/LoopForge/internal/port/artifactstore"
	"github.com/Strob0t/LoopForge/internal/port/broadcast"
	"github.com/Strob0t/LoopForge/internal/port/planner"
	"github.com/Strob0t/LoopForge/internal/port/statestore"
)

// specPhase labels spec-generation events. It is not a loop phase: writing a
// spec precedes the first plan rather than advancing the cycle.
const specPhase = "spec"

// SpecResult is a GenerateResult plus the final quality gate decision when
// gating was requested.
type SpecResult struct {
	GenerateResult
	Gate *review.GateResult
}

// SpecService generates the up-front specification artifact and reviews
// artifact quality with repeatable heuristics.
type SpecService struct {
	state      statestore.Store
	artifacts  artifactstore.Store
	planner    planner.Planner
	hub        broadcast.Broadcaster
	plannerCfg *config.Planner
}

// NewSpecService creates a SpecService. The hub may be nil.
func NewSpecService(
	state statestore.Store,
	artifacts artifactstore.Store,
	pl planner.Planner,
	hub broadcast.Broadcaster,
	plannerCfg *config.Planner,
) *SpecService {
	return &SpecService{state: state, artifacts: artifacts, planner: pl, hub: hub, plannerCfg: plannerCfg}
}

// GenerateSpec asks the planner for a specification and writes spec.md. The
// loop phase stays at planning. With qualityRetries > 0 each draft is gated
// and the planner is re-prompted with the gate's findings until the draft
// passes or the retries run out.
func (s *SpecService) GenerateSpec(ctx context.Context, task, taskContext, model string, extensions []string, qualityRetries int) (*SpecResult, error) {
	if err := ensureNotPaused(ctx, s.state); err != nil {
		return nil, err
	}

	ctx, span := otel.StartPhaseSpan(ctx, specPhase)
	defer span.End()

	model, extensions = resolveInvoke(s.plannerCfg, model, extensions)

	if _, err := s.state.Update(ctx, map[string]any{
		"phase":        string(cycle.PhasePlanning),
		"current_task": task,
		"error":        nil,
	}); err != nil {
		return nil, fmt.Errorf("save state: %w", err)
	}
	emit(ctx, s.state, s.hub, cycle.TypePhaseStart, map[string]any{"phase": specPhase})

	opts := planner.InvokeOptions{Model: model, Extensions: extensions}
	var content string
	var gate *review.GateResult
	if s.planner.Available() {
		out, err := s.planner.GenerateSpec(ctx, task, taskContext, opts)
		if err != nil {
			slog.Warn("spec generation failed", "error", err)
			content = fmt.Sprintf("# Spec (Gemini error)\n\n%s", err)
		} else {
			content = artifact.StripPreface(out)
			content, gate = s.reviseUntilClean(ctx, content, task, taskContext, opts, qualityRetries)
		}
	} else {
		content = fmt.Sprintf("# Spec (Simulated)\n\n## Summary\n%s\n", task)
	}

	withMeta := artifact.Header(model, extensions) + content
	if _, err := s.artifacts.Write(ctx, artifact.NameSpec, withMeta); err != nil {
		return nil, fmt.Errorf("write %s: %w", artifact.NameSpec, err)
	}
	emit(ctx, s.state, s.hub, cycle.TypePhaseComplete, map[string]any{"phase": specPhase})

	slog.Info("spec generated", "model", model, "gated", gate != nil)
	return &SpecResult{
		GenerateResult: GenerateResult{Artifact: artifact.NameSpec, Content: withMeta, Model: model, Extensions: extensions},
		Gate:           gate,
	}, nil
}

// reviseUntilClean gates each draft and re-prompts the planner with the
// findings. A failed revision call keeps the previous draft rather than
// discarding it.
func (s *SpecService) reviseUntilClean(ctx context.Context, content, task, taskContext string, opts planner.InvokeOptions, retries int) (string, *review.GateResult) {
	if retries <= 0 {
		return content, nil
	}

	brief := strings.TrimSpace(task + " " + taskContext)
	gate := review.GateSpec(content, brief)
	for attempt := 1; !gate.OK && attempt <= retries; attempt++ {
		revision := review.SpecRevisionPrompt(gate.Issues)
		out, err := s.planner.GenerateSpec(ctx, task,
			taskContext+"\n\n"+revision+"\n\nPrevious draft:\n\n"+content, opts)
		if err != nil {
			slog.Warn("spec revision failed", "attempt", attempt, "error", err)
			break
		}
		content = artifact.StripPreface(out)
		gate = review.GateSpec(content, brief)
	}
	return content, &gate
}

// ReviewArtifacts runs the heuristic reviewer over the stored spec and plan.
// It is read-only: no state transition, no events, no paused gate.
func (s *SpecService) ReviewArtifacts(ctx context.Context, userBrief string) review.Result {
	var missing []string
	spec, err := s.artifacts.Read(ctx, artifact.NameSpec)
	if err != nil {
		missing = append(missing, artifact.NameSpec)
	}
	plan, err := s.artifacts.Read(ctx, artifact.NamePlan)
	if err != nil {
		missing = append(missing, artifact.NamePlan)
	}
	if len(missing) > 0 {
		return review.Result{
			Score:          1,
			Issues:         []string{fmt.Sprintf("Missing artifact(s): %s.", strings.Join(missing, ", "))},
			Strengths:      []string{},
			RevisionPrompt: "Generate spec.md and plan.md first, then re-run this review.",
		}
	}
	return review.Evaluate(spec, plan, userBrief)
}
