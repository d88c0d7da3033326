// Package service implements business logic on top of ports.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/LoopForge/internal/adapter/otel"
	"github.com/Strob0t/LoopForge/internal/config"
	"github.com/Strob0t/LoopForge/internal/domain"
	"github.com/Strob0t/LoopForge/internal/domain/artifact"
	"github.com/Strob0t/LoopForge/internal/domain/cycle"
	"github.com/Strob0t/LoopForge/internal/port/artifactstore"
	"github.com/Strob0t/LoopForge/internal/port/broadcast"
	"github.com/Strob0t/LoopForge/internal/port/implementer"
	"github.com/Strob0t/LoopForge/internal/port/planner"
	"github.com/Strob0t/LoopForge/internal/port/statestore"
	"golang.org/x/sync/semaphore"
)

// Canned brief used by the automated run_cycle pass.
const (
	runCycleTask    = "Create a simple demonstration task"
	runCycleContext = "Automated test cycle"
)

// simulatedPlan is written when no planner CLI is available, so the loop
// still advances end to end.
const simulatedPlan = `# Plan (Simulated)

## Goal
Generate a plan artifact and proceed to implementation.

## Steps
1. Write plan.md
2. Implement based on plan.md
3. Write handoff.md
4. Generate review.md
`

const simulatedReview = `# Review (Simulated)

## Summary
Gemini CLI was not available, so this review is simulated.
`

const handoffTemplate = `# Implementation Handoff

## Implementer Used
%s

## Result
%s

## Details
%s
`

// GenerateResult is the outcome of one artifact-producing step. Content is
// the full written artifact including the metadata header.
type GenerateResult struct {
	Artifact   string
	Content    string
	Model      string
	Extensions []string
}

// ReviewResult is a GenerateResult plus the cycle counter after the
// awaiting_review -> planning transition.
type ReviewResult struct {
	GenerateResult
	CycleCompleted int
}

// ReviewRequest carries optional inputs for GenerateReview. A nil Plan or
// Implementation falls back to the stored artifact; an explicit empty
// string is reviewed as-is.
type ReviewRequest struct {
	Plan           *string
	Implementation *string
	Model          string
	Extensions     []string
}

// PhaseOutcome records one phase of an automated cycle pass.
type PhaseOutcome struct {
	Name        string `json:"name"`
	Success     bool   `json:"success"`
	Implementer string `json:"implementer,omitempty"`
}

// CycleResult is the outcome of one automated run_cycle pass.
type CycleResult struct {
	Phases         []PhaseOutcome `json:"phases"`
	CycleCompleted int            `json:"cycle_completed"`
}

// CycleService drives the planning / implementing / review loop. It layers
// the paused gate, state transitions and event emission around collaborator
// calls, and guards run_cycle against concurrent invocations.
type CycleService struct {
	state      statestore.Store
	artifacts  artifactstore.Store
	planner    planner.Planner
	hub        broadcast.Broadcaster
	metrics    *otel.Metrics
	plannerCfg *config.Planner
	implCfg    *config.Implementer

	// running serializes run_cycle; a second call while one is in flight
	// fails with domain.ErrConflict instead of queueing.
	running *semaphore.Weighted

	// Registry lookups, swappable in tests.
	newImpl  func(name string) (implementer.Implementer, error)
	bestImpl func() (implementer.Implementer, error)
}

// NewCycleService creates a CycleService. The hub and metrics may be nil,
// which disables event streaming and telemetry.
func NewCycleService(
	state statestore.Store,
	artifacts artifactstore.Store,
	pl planner.Planner,
	hub broadcast.Broadcaster,
	metrics *otel.Metrics,
	plannerCfg *config.Planner,
	implCfg *config.Implementer,
) *CycleService {
	return &CycleService{
		state:      state,
		artifacts:  artifacts,
		planner:    pl,
		hub:        hub,
		metrics:    metrics,
		plannerCfg: plannerCfg,
		implCfg:    implCfg,
		running:    semaphore.NewWeighted(1),
		newImpl: func(name string) (implementer.Implementer, error) {
			return implementer.New(name, nil)
		},
		bestImpl: implementer.BestAvailable,
	}
}

// ensureNotPaused fails with domain.ErrPaused when the loop is paused.
// Every cycle-advancing operation calls this before touching state.
func ensureNotPaused(ctx context.Context, store statestore.Store) error {
	st, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if st.Paused {
		return domain.ErrPaused
	}
	return nil
}

// emit appends an event to the log and mirrors it to the websocket hub.
// Appends are best effort: events are audit records the engine never reads
// back, so a failed append is logged rather than aborting the operation.
func emit(ctx context.Context, store statestore.Store, hub broadcast.Broadcaster, eventType string, payload map[string]any) {
	if err := store.AppendEvent(ctx, cycle.NewEvent(eventType, payload)); err != nil {
		slog.Warn("append event", "type", eventType, "error", err)
	}
	if hub != nil {
		hub.BroadcastEvent(ctx, eventType, payload)
	}
}

// resolveInvoke applies configured defaults: an explicit model or extension
// list wins over the planner config.
func resolveInvoke(cfg *config.Planner, model string, extensions []string) (string, []string) {
	if model == "" {
		model = cfg.Model
	}
	if extensions == nil {
		extensions = cfg.ExtensionList()
	}
	return model, extensions
}

// GeneratePlan asks the planner for an implementation plan, writes plan.md
// with the metadata header, and advances the phase to implementing. When
// the planner CLI is unavailable or fails, a fallback plan is written
// instead so the loop keeps moving.
func (s *CycleService) GeneratePlan(ctx context.Context, task, taskContext, model string, extensions []string) (*GenerateResult, error) {
	if err := ensureNotPaused(ctx, s.state); err != nil {
		return nil, err
	}

	ctx, span := otel.StartPhaseSpan(ctx, string(cycle.PhasePlanning))
	defer span.End()
	start := time.Now()

	if _, err := s.state.Update(ctx, map[string]any{
		"phase":        string(cycle.PhasePlanning),
		"current_task": task,
		"error":        nil,
	}); err != nil {
		return nil, fmt.Errorf("save state: %w", err)
	}
	emit(ctx, s.state, s.hub, cycle.TypePhaseStart, map[string]any{"phase": string(cycle.PhasePlanning)})

	model, extensions = resolveInvoke(s.plannerCfg, model, extensions)
	available := s.planner.Available()

	var content string
	if available {
		out, err := s.planner.GeneratePlan(ctx, task, taskContext, planner.InvokeOptions{Model: model, Extensions: extensions})
		if err != nil {
			slog.Warn("plan generation failed", "error", err)
			content = fmt.Sprintf("# Plan (Gemini error)\n\n%s\n\n"+
				"## Fallback Plan\n"+
				"1. Re-run generate_plan\n"+
				"2. If it keeps failing, write plan.md manually\n", err)
		} else {
			content = artifact.StripPreface(out)
		}
	} else {
		content = simulatedPlan
	}

	withMeta := artifact.Header(model, extensions) + content
	if _, err := s.artifacts.Write(ctx, artifact.NamePlan, withMeta); err != nil {
		return nil, fmt.Errorf("write %s: %w", artifact.NamePlan, err)
	}
	emit(ctx, s.state, s.hub, cycle.TypePhaseComplete, map[string]any{"phase": string(cycle.PhasePlanning)})
	if _, err := s.state.Update(ctx, map[string]any{"phase": string(cycle.PhaseImplementing)}); err != nil {
		return nil, fmt.Errorf("save state: %w", err)
	}
	s.metrics.RecordPhase(ctx, string(cycle.PhasePlanning), time.Since(start).Seconds())

	slog.Info("plan generated", "model", model, "simulated", !available)
	return &GenerateResult{Artifact: artifact.NamePlan, Content: withMeta, Model: model, Extensions: extensions}, nil
}

// SubmitHandoff records the implementer's handoff document verbatim and
// advances the phase to awaiting_review. Unlike generated artifacts the
// handoff carries no metadata header; it is the implementer's own report.
func (s *CycleService) SubmitHandoff(ctx context.Context, content string) (string, error) {
	if err := ensureNotPaused(ctx, s.state); err != nil {
		return "", err
	}

	ctx, span := otel.StartPhaseSpan(ctx, string(cycle.PhaseImplementing))
	defer span.End()
	start := time.Now()

	if _, err := s.state.Update(ctx, map[string]any{
		"phase": string(cycle.PhaseImplementing),
		"error": nil,
	}); err != nil {
		return "", fmt.Errorf("save state: %w", err)
	}
	emit(ctx, s.state, s.hub, cycle.TypePhaseStart, map[string]any{"phase": string(cycle.PhaseImplementing)})

	if _, err := s.artifacts.Write(ctx, artifact.NameHandoff, content); err != nil {
		return "", fmt.Errorf("write %s: %w", artifact.NameHandoff, err)
	}
	emit(ctx, s.state, s.hub, cycle.TypePhaseComplete, map[string]any{"phase": string(cycle.PhaseImplementing)})
	if _, err := s.state.Update(ctx, map[string]any{"phase": string(cycle.PhaseAwaitingReview)}); err != nil {
		return "", fmt.Errorf("save state: %w", err)
	}
	s.metrics.RecordPhase(ctx, string(cycle.PhaseImplementing), time.Since(start).Seconds())

	slog.Info("handoff submitted", "bytes", len(content))
	return artifact.NameHandoff, nil
}

// GenerateReview asks the planner to review the implementation against the
// plan, writes review.md, and closes the cycle: the loop returns to
// planning with cycle_count incremented.
func (s *CycleService) GenerateReview(ctx context.Context, req ReviewRequest) (*ReviewResult, error) {
	if err := ensureNotPaused(ctx, s.state); err != nil {
		return nil, err
	}

	ctx, span := otel.StartPhaseSpan(ctx, string(cycle.PhaseAwaitingReview))
	defer span.End()
	start := time.Now()

	planText := readOr(ctx, s.artifacts, req.Plan, artifact.NamePlan)
	implText := readOr(ctx, s.artifacts, req.Implementation, artifact.NameHandoff)
	model, extensions := resolveInvoke(s.plannerCfg, req.Model, req.Extensions)

	if _, err := s.state.Update(ctx, map[string]any{
		"phase": string(cycle.PhaseAwaitingReview),
		"error": nil,
	}); err != nil {
		return nil, fmt.Errorf("save state: %w", err)
	}
	emit(ctx, s.state, s.hub, cycle.TypePhaseStart, map[string]any{"phase": string(cycle.PhaseAwaitingReview)})

	available := s.planner.Available()
	var content string
	if available {
		out, err := s.planner.GenerateReview(ctx, planText, implText, planner.InvokeOptions{Model: model, Extensions: extensions})
		if err != nil {
			slog.Warn("review generation failed", "error", err)
			content = fmt.Sprintf("# Review (Gemini error)\n\n%s", err)
		} else {
			content = artifact.StripPreface(out)
		}
	} else {
		content = simulatedReview
	}

	withMeta := artifact.Header(model, extensions) + content
	if _, err := s.artifacts.Write(ctx, artifact.NameReview, withMeta); err != nil {
		return nil, fmt.Errorf("write %s: %w", artifact.NameReview, err)
	}
	emit(ctx, s.state, s.hub, cycle.TypePhaseComplete, map[string]any{"phase": string(cycle.PhaseAwaitingReview)})

	current, err := s.state.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	completed := current.CycleCount + 1
	if _, err := s.state.Update(ctx, map[string]any{
		"phase":        string(cycle.PhasePlanning),
		"cycle_count":  completed,
		"current_task": nil,
	}); err != nil {
		return nil, fmt.Errorf("save state: %w", err)
	}
	emit(ctx, s.state, s.hub, cycle.TypeCycleComplete, map[string]any{"cycle": completed})
	s.metrics.RecordPhase(ctx, string(cycle.PhaseAwaitingReview), time.Since(start).Seconds())
	s.metrics.AddCycleCompleted(ctx)

	slog.Info("cycle complete", "cycle", completed, "simulated", !available)
	return &ReviewResult{
		GenerateResult: GenerateResult{Artifact: artifact.NameReview, Content: withMeta, Model: model, Extensions: extensions},
		CycleCompleted: completed,
	}, nil
}

// readOr returns the override when provided, otherwise the stored artifact
// content, or "" when it does not exist yet.
func readOr(ctx context.Context, store artifactstore.Store, override *string, name string) string {
	if override != nil {
		return *override
	}
	content, err := store.Read(ctx, name)
	if err != nil {
		return ""
	}
	return content
}

// RunCycle drives one full plan -> implement -> review pass without
// operator involvement. An empty task plans against a canned demonstration
// task. Only one cycle may be in flight at a time; a concurrent call fails
// with domain.ErrConflict.
func (s *CycleService) RunCycle(ctx context.Context, implementerName, task, taskContext string) (*CycleResult, error) {
	if !s.running.TryAcquire(1) {
		return nil, fmt.Errorf("a cycle is already running: %w", domain.ErrConflict)
	}
	defer s.running.Release(1)

	if err := ensureNotPaused(ctx, s.state); err != nil {
		return nil, err
	}
	if implementerName == "" {
		implementerName = s.implCfg.Default
	}
	if task == "" {
		task = runCycleTask
	}
	if taskContext == "" {
		taskContext = runCycleContext
	}

	// Resolve the implementer before touching any state, so a bad name
	// rejects the call without starting the cycle.
	impl, err := s.newImpl(implementerName)
	if err != nil {
		return nil, err
	}
	if !impl.Available() {
		if impl, err = s.bestImpl(); err != nil {
			return nil, err
		}
	}

	ctx, span := otel.StartCycleSpan(ctx, impl.Name())
	defer span.End()
	s.metrics.AddCycleStarted(ctx)
	slog.Info("cycle starting", "implementer", impl.Name())

	result := &CycleResult{}

	planRes, err := s.GeneratePlan(ctx, task, taskContext, "", nil)
	if err != nil {
		return nil, fmt.Errorf("planning phase: %w", err)
	}
	result.Phases = append(result.Phases, PhaseOutcome{Name: "planning", Success: true})

	if _, err := s.state.Update(ctx, map[string]any{
		"phase":        string(cycle.PhaseImplementing),
		"current_task": "Running implementation",
	}); err != nil {
		return nil, fmt.Errorf("save state: %w", err)
	}
	emit(ctx, s.state, s.hub, cycle.TypePhaseStart, map[string]any{"phase": string(cycle.PhaseImplementing)})

	implStart := time.Now()
	implRes, err := impl.Implement(ctx, planRes.Content, s.implCfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("implementer %s: %w", impl.Name(), err)
	}

	outcome := "Failed"
	if implRes.OK {
		outcome = "Success"
	}
	handoff := fmt.Sprintf(handoffTemplate, impl.Name(), outcome, implRes.Summary)
	if _, err := s.artifacts.Write(ctx, artifact.NameHandoff, handoff); err != nil {
		return nil, fmt.Errorf("write %s: %w", artifact.NameHandoff, err)
	}
	emit(ctx, s.state, s.hub, cycle.TypePhaseComplete, map[string]any{
		"phase":       string(cycle.PhaseImplementing),
		"implementer": impl.Name(),
	})
	s.metrics.RecordPhase(ctx, string(cycle.PhaseImplementing), time.Since(implStart).Seconds())
	result.Phases = append(result.Phases, PhaseOutcome{Name: "implementing", Success: implRes.OK, Implementer: impl.Name()})

	reviewRes, err := s.GenerateReview(ctx, ReviewRequest{Plan: &planRes.Content, Implementation: &implRes.Summary})
	if err != nil {
		return nil, fmt.Errorf("review phase: %w", err)
	}
	result.Phases = append(result.Phases, PhaseOutcome{Name: "review", Success: true})
	result.CycleCompleted = reviewRes.CycleCompleted

	slog.Info("cycle finished", "cycle", result.CycleCompleted, "implementer", impl.Name())
	return result, nil
}

// Pause stops cycle-advancing operations at their next paused-gate check.
// Pause itself is never gated, so a paused loop can always be inspected and
// resumed.
func (s *CycleService) Pause(ctx context.Context) (cycle.State, error) {
	st, err := s.state.Update(ctx, map[string]any{"paused": true})
	if err != nil {
		return cycle.State{}, fmt.Errorf("save state: %w", err)
	}
	emit(ctx, s.state, s.hub, cycle.TypeLoopPaused, map[string]any{})
	slog.Info("loop paused")
	return st, nil
}

// Resume clears the paused flag.
func (s *CycleService) Resume(ctx context.Context) (cycle.State, error) {
	st, err := s.state.Update(ctx, map[string]any{"paused": false})
	if err != nil {
		return cycle.State{}, fmt.Errorf("save state: %w", err)
	}
	emit(ctx, s.state, s.hub, cycle.TypeLoopResumed, map[string]any{})
	slog.Info("loop resumed")
	return st, nil
}
