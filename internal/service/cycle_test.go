package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/LoopForge/internal/config"
	"github.com/Strob0t/LoopForge/internal/domain"
	"github.com/Strob0t/LoopForge/internal/domain/artifact"
	"github.com/Strob0t/LoopForge/internal/domain/cycle"
	"github.com/Strob0t/LoopForge/internal/port/implementer"
	"github.com/Strob0t/LoopForge/internal/port/planner"
)

type fakeStateStore struct {
	mu     sync.Mutex
	st     cycle.State
	events []cycle.Event
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{st: cycle.DefaultState()}
}

func (f *fakeStateStore) Load(_ context.Context) (cycle.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st, nil
}

func (f *fakeStateStore) Save(_ context.Context, st cycle.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st.LastUpdated = time.Now().UTC()
	f.st = st
	return nil
}

func (f *fakeStateStore) Update(_ context.Context, partial map[string]any) (cycle.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	next, err := f.st.Merge(partial)
	if err != nil {
		return cycle.State{}, err
	}
	next.LastUpdated = time.Now().UTC()
	f.st = next
	return next, nil
}

func (f *fakeStateStore) AppendEvent(_ context.Context, ev cycle.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeStateStore) Events(_ context.Context, limit int) ([]cycle.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 || limit > len(f.events) {
		limit = len(f.events)
	}
	out := make([]cycle.Event, limit)
	copy(out, f.events[len(f.events)-limit:])
	return out, nil
}

func (f *fakeStateStore) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Type
	}
	return out
}

type fakeArtifacts struct {
	mu    sync.Mutex
	files map[string]string
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{files: make(map[string]string)}
}

func (f *fakeArtifacts) Write(_ context.Context, name, content string) (string, error) {
	if err := artifact.ValidateName(name); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[name] = content
	return "/artifacts/" + name, nil
}

func (f *fakeArtifacts) Read(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[name]
	if !ok {
		return "", fmt.Errorf("artifact %s: %w", name, domain.ErrNotFound)
	}
	return content, nil
}

func (f *fakeArtifacts) List(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.files))
	for name := range f.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

type fakePlanner struct {
	available    bool
	out          string
	outQueue     []string
	err          error
	version      string
	extInstalled bool

	gotTask, gotContext string
	gotPlan, gotImpl    string
	gotOpts             planner.InvokeOptions
	calls               []string
	availCalls          int
	versionCalls        int
}

func (f *fakePlanner) Available() bool {
	f.availCalls++
	return f.available
}

func (f *fakePlanner) Version(_ context.Context) string {
	f.versionCalls++
	return f.version
}

func (f *fakePlanner) ExtensionInstalled(_ context.Context, _ string) bool { return f.extInstalled }

func (f *fakePlanner) GenerateSpec(_ context.Context, task, taskContext string, opts planner.InvokeOptions) (string, error) {
	f.calls = append(f.calls, "spec")
	f.gotTask, f.gotContext, f.gotOpts = task, taskContext, opts
	if len(f.outQueue) > 0 {
		out := f.outQueue[0]
		f.outQueue = f.outQueue[1:]
		return out, nil
	}
	return f.out, f.err
}

func (f *fakePlanner) GeneratePlan(_ context.Context, task, taskContext string, opts planner.InvokeOptions) (string, error) {
	f.calls = append(f.calls, "plan")
	f.gotTask, f.gotContext, f.gotOpts = task, taskContext, opts
	return f.out, f.err
}

func (f *fakePlanner) GenerateReview(_ context.Context, plan, implementation string, opts planner.InvokeOptions) (string, error) {
	f.calls = append(f.calls, "review")
	f.gotPlan, f.gotImpl, f.gotOpts = plan, implementation, opts
	return f.out, f.err
}

type fakeImplementer struct {
	name      string
	available bool
	result    *implementer.Result
	err       error

	gotPlan    string
	gotWorkDir string
}

func (f *fakeImplementer) Name() string { return f.name }

func (f *fakeImplementer) Available() bool { return f.available }

func (f *fakeImplementer) Implement(_ context.Context, plan, workingDir string) (*implementer.Result, error) {
	f.gotPlan, f.gotWorkDir = plan, workingDir
	return f.result, f.err
}

type recordingHub struct {
	mu    sync.Mutex
	types []string
}

func (h *recordingHub) BroadcastEvent(_ context.Context, eventType string, _ any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.types = append(h.types, eventType)
}

func newTestCycleService(pl planner.Planner) (*CycleService, *fakeStateStore, *fakeArtifacts) {
	state := newFakeStateStore()
	arts := newFakeArtifacts()
	cfg := config.Defaults()
	svc := NewCycleService(state, arts, pl, nil, nil, &cfg.Planner, &cfg.Implementer)
	return svc, state, arts
}

func strptr(s string) *string { return &s }

func TestGeneratePlanSimulated(t *testing.T) {
	svc, state, arts := newTestCycleService(&fakePlanner{available: false})

	res, err := svc.GeneratePlan(context.Background(), "Build a widget", "greenfield", "", nil)
	if err != nil {
		t.Fatalf("GeneratePlan() error = %v", err)
	}
	if res.Artifact != "plan.md" {
		t.Errorf("artifact = %q, want plan.md", res.Artifact)
	}
	want := "<!-- loopforge: model=default extensions=default -->\n\n" + simulatedPlan
	if res.Content != want {
		t.Errorf("content = %q, want %q", res.Content, want)
	}
	stored, err := arts.Read(context.Background(), "plan.md")
	if err != nil || stored != want {
		t.Errorf("stored plan = %q, %v", stored, err)
	}

	st, _ := state.Load(context.Background())
	if st.Phase != cycle.PhaseImplementing {
		t.Errorf("phase = %q, want implementing", st.Phase)
	}
	if st.CurrentTask == nil || *st.CurrentTask != "Build a widget" {
		t.Errorf("current_task = %v, want Build a widget", st.CurrentTask)
	}
	if got := strings.Join(state.eventTypes(), " "); got != "phase_start phase_complete" {
		t.Errorf("events = %q", got)
	}
	if phase := state.events[0].Payload["phase"]; phase != "planning" {
		t.Errorf("phase_start payload phase = %v, want planning", phase)
	}
}

func TestGeneratePlanUsesConfiguredModel(t *testing.T) {
	pl := &fakePlanner{available: true, out: "# Plan\n\n1. do the thing"}
	state := newFakeStateStore()
	arts := newFakeArtifacts()
	cfg := config.Defaults()
	cfg.Planner.Model = "gemini-2.5-pro"
	cfg.Planner.Extensions = "conductor,security"
	svc := NewCycleService(state, arts, pl, nil, nil, &cfg.Planner, &cfg.Implementer)

	res, err := svc.GeneratePlan(context.Background(), "task", "ctx", "", nil)
	if err != nil {
		t.Fatalf("GeneratePlan() error = %v", err)
	}
	if pl.gotOpts.Model != "gemini-2.5-pro" {
		t.Errorf("model = %q, want gemini-2.5-pro", pl.gotOpts.Model)
	}
	if strings.Join(pl.gotOpts.Extensions, ",") != "conductor,security" {
		t.Errorf("extensions = %v", pl.gotOpts.Extensions)
	}
	if !strings.HasPrefix(res.Content, "<!-- loopforge: model=gemini-2.5-pro extensions=conductor,security -->\n\n") {
		t.Errorf("header missing from %q", res.Content)
	}
	if res.Model != "gemini-2.5-pro" {
		t.Errorf("result model = %q", res.Model)
	}
}

func TestGeneratePlanExplicitModelWins(t *testing.T) {
	pl := &fakePlanner{available: true, out: "# Plan\n\n1. do"}
	state := newFakeStateStore()
	arts := newFakeArtifacts()
	cfg := config.Defaults()
	cfg.Planner.Model = "gemini-2.5-pro"
	svc := NewCycleService(state, arts, pl, nil, nil, &cfg.Planner, &cfg.Implementer)

	res, err := svc.GeneratePlan(context.Background(), "task", "", "gemini-exp", []string{"jules"})
	if err != nil {
		t.Fatalf("GeneratePlan() error = %v", err)
	}
	if pl.gotOpts.Model != "gemini-exp" {
		t.Errorf("model = %q, want gemini-exp", pl.gotOpts.Model)
	}
	if len(pl.gotOpts.Extensions) != 1 || pl.gotOpts.Extensions[0] != "jules" {
		t.Errorf("extensions = %v, want [jules]", pl.gotOpts.Extensions)
	}
	if res.Model != "gemini-exp" {
		t.Errorf("result model = %q", res.Model)
	}
}

func TestGeneratePlanStripsPreface(t *testing.T) {
	pl := &fakePlanner{available: true, out: "Sure! Here is the plan:\n\n# Plan\n\n1. do"}
	svc, _, arts := newTestCycleService(pl)

	if _, err := svc.GeneratePlan(context.Background(), "task", "", "", nil); err != nil {
		t.Fatalf("GeneratePlan() error = %v", err)
	}
	stored, _ := arts.Read(context.Background(), "plan.md")
	if !strings.Contains(stored, "-->\n\n# Plan\n") {
		t.Errorf("preface not stripped: %q", stored)
	}
	if strings.Contains(stored, "Sure!") {
		t.Errorf("chatter survived: %q", stored)
	}
}

func TestGeneratePlanPlannerError(t *testing.T) {
	pl := &fakePlanner{available: true, err: &planner.RunError{Msg: "Error (exit 1): boom"}}
	svc, state, arts := newTestCycleService(pl)

	res, err := svc.GeneratePlan(context.Background(), "task", "", "", nil)
	if err != nil {
		t.Fatalf("GeneratePlan() error = %v, want fallback content instead", err)
	}
	want := "# Plan (Gemini error)\n\nError (exit 1): boom\n\n" +
		"## Fallback Plan\n1. Re-run generate_plan\n2. If it keeps failing, write plan.md manually\n"
	if !strings.HasSuffix(res.Content, want) {
		t.Errorf("content = %q, want suffix %q", res.Content, want)
	}
	if _, err := arts.Read(context.Background(), "plan.md"); err != nil {
		t.Errorf("plan.md not written: %v", err)
	}

	// A failed planner call still advances the loop.
	st, _ := state.Load(context.Background())
	if st.Phase != cycle.PhaseImplementing {
		t.Errorf("phase = %q, want implementing", st.Phase)
	}
}

func TestGeneratePlanPaused(t *testing.T) {
	svc, state, arts := newTestCycleService(&fakePlanner{})
	state.st.Paused = true

	_, err := svc.GeneratePlan(context.Background(), "task", "", "", nil)
	if !errors.Is(err, domain.ErrPaused) {
		t.Fatalf("GeneratePlan() error = %v, want ErrPaused", err)
	}
	if len(state.eventTypes()) != 0 {
		t.Errorf("events emitted while paused: %v", state.eventTypes())
	}
	if names, _ := arts.List(context.Background()); len(names) != 0 {
		t.Errorf("artifacts written while paused: %v", names)
	}
}

func TestSubmitHandoff(t *testing.T) {
	svc, state, arts := newTestCycleService(&fakePlanner{})

	content := "# My handoff\n\nDid the thing.\n"
	name, err := svc.SubmitHandoff(context.Background(), content)
	if err != nil {
		t.Fatalf("SubmitHandoff() error = %v", err)
	}
	if name != "handoff.md" {
		t.Errorf("artifact = %q, want handoff.md", name)
	}

	// Stored verbatim, no metadata header.
	stored, _ := arts.Read(context.Background(), "handoff.md")
	if stored != content {
		t.Errorf("stored = %q, want %q", stored, content)
	}

	st, _ := state.Load(context.Background())
	if st.Phase != cycle.PhaseAwaitingReview {
		t.Errorf("phase = %q, want awaiting_review", st.Phase)
	}
	if got := strings.Join(state.eventTypes(), " "); got != "phase_start phase_complete" {
		t.Errorf("events = %q", got)
	}
}

func TestGenerateReviewIncrementsCycle(t *testing.T) {
	pl := &fakePlanner{available: true, out: "# Review\n\nLGTM"}
	svc, state, arts := newTestCycleService(pl)
	state.st = cycle.State{Phase: cycle.PhaseAwaitingReview, CycleCount: 4}

	res, err := svc.GenerateReview(context.Background(), ReviewRequest{
		Plan:           strptr("the plan"),
		Implementation: strptr("the implementation"),
	})
	if err != nil {
		t.Fatalf("GenerateReview() error = %v", err)
	}
	if res.CycleCompleted != 5 {
		t.Errorf("cycle completed = %d, want 5", res.CycleCompleted)
	}
	if pl.gotPlan != "the plan" || pl.gotImpl != "the implementation" {
		t.Errorf("planner got (%q, %q)", pl.gotPlan, pl.gotImpl)
	}

	st, _ := state.Load(context.Background())
	if st.Phase != cycle.PhasePlanning || st.CycleCount != 5 {
		t.Errorf("state = %+v, want planning cycle 5", st)
	}
	if st.CurrentTask != nil {
		t.Errorf("current_task = %v, want nil", st.CurrentTask)
	}
	if got := strings.Join(state.eventTypes(), " "); got != "phase_start phase_complete cycle_complete" {
		t.Errorf("events = %q", got)
	}
	if c := state.events[2].Payload["cycle"]; c != 5 {
		t.Errorf("cycle_complete payload = %v, want 5", c)
	}
	if _, err := arts.Read(context.Background(), "review.md"); err != nil {
		t.Errorf("review.md not written: %v", err)
	}
}

func TestGenerateReviewDefaultsToStoredArtifacts(t *testing.T) {
	pl := &fakePlanner{available: true, out: "# Review\n\nfine"}
	svc, _, arts := newTestCycleService(pl)
	arts.files["plan.md"] = "stored plan"
	arts.files["handoff.md"] = "stored handoff"

	if _, err := svc.GenerateReview(context.Background(), ReviewRequest{}); err != nil {
		t.Fatalf("GenerateReview() error = %v", err)
	}
	if pl.gotPlan != "stored plan" || pl.gotImpl != "stored handoff" {
		t.Errorf("planner got (%q, %q), want stored artifacts", pl.gotPlan, pl.gotImpl)
	}
}

func TestGenerateReviewExplicitEmptyInputs(t *testing.T) {
	pl := &fakePlanner{available: true, out: "# Review\n\nempty diff"}
	svc, _, arts := newTestCycleService(pl)
	arts.files["plan.md"] = "stored plan"
	arts.files["handoff.md"] = "stored handoff"

	// An explicit empty string must not fall back to the artifacts.
	_, err := svc.GenerateReview(context.Background(), ReviewRequest{
		Plan:           strptr(""),
		Implementation: strptr(""),
	})
	if err != nil {
		t.Fatalf("GenerateReview() error = %v", err)
	}
	if pl.gotPlan != "" || pl.gotImpl != "" {
		t.Errorf("planner got (%q, %q), want empty strings", pl.gotPlan, pl.gotImpl)
	}
}

func TestGenerateReviewSimulated(t *testing.T) {
	svc, _, arts := newTestCycleService(&fakePlanner{available: false})

	res, err := svc.GenerateReview(context.Background(), ReviewRequest{})
	if err != nil {
		t.Fatalf("GenerateReview() error = %v", err)
	}
	if res.CycleCompleted != 1 {
		t.Errorf("cycle completed = %d, want 1", res.CycleCompleted)
	}
	stored, _ := arts.Read(context.Background(), "review.md")
	if !strings.Contains(stored, "Gemini CLI was not available, so this review is simulated.") {
		t.Errorf("review = %q", stored)
	}
}

func TestRunCycleSimulate(t *testing.T) {
	svc, state, arts := newTestCycleService(&fakePlanner{available: false})
	impl := &fakeImplementer{
		name:      "simulate",
		available: true,
		result:    &implementer.Result{OK: true, Summary: "did things"},
	}
	svc.newImpl = func(string) (implementer.Implementer, error) { return impl, nil }

	res, err := svc.RunCycle(context.Background(), "simulate", "", "")
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if res.CycleCompleted != 1 {
		t.Errorf("cycle completed = %d, want 1", res.CycleCompleted)
	}
	if len(res.Phases) != 3 {
		t.Fatalf("phases = %+v, want 3", res.Phases)
	}
	wantPhases := []PhaseOutcome{
		{Name: "planning", Success: true},
		{Name: "implementing", Success: true, Implementer: "simulate"},
		{Name: "review", Success: true},
	}
	for i, want := range wantPhases {
		if res.Phases[i] != want {
			t.Errorf("phase[%d] = %+v, want %+v", i, res.Phases[i], want)
		}
	}

	// The implementer sees the full plan artifact and the configured workdir.
	if !strings.Contains(impl.gotPlan, "# Plan (Simulated)") {
		t.Errorf("implementer plan = %q", impl.gotPlan)
	}
	if impl.gotWorkDir != "." {
		t.Errorf("workdir = %q, want .", impl.gotWorkDir)
	}

	wantHandoff := fmt.Sprintf(handoffTemplate, "simulate", "Success", "did things")
	if stored, _ := arts.Read(context.Background(), "handoff.md"); stored != wantHandoff {
		t.Errorf("handoff = %q, want %q", stored, wantHandoff)
	}

	names, _ := arts.List(context.Background())
	if strings.Join(names, " ") != "handoff.md plan.md review.md" {
		t.Errorf("artifacts = %v", names)
	}

	st, _ := state.Load(context.Background())
	if st.Phase != cycle.PhasePlanning || st.CycleCount != 1 || st.Paused {
		t.Errorf("final state = %+v", st)
	}

	wantEvents := "phase_start phase_complete phase_start phase_complete phase_start phase_complete cycle_complete"
	if got := strings.Join(state.eventTypes(), " "); got != wantEvents {
		t.Errorf("events = %q, want %q", got, wantEvents)
	}
	if name := state.events[3].Payload["implementer"]; name != "simulate" {
		t.Errorf("implementing phase_complete payload = %v", name)
	}
}

func TestRunCycleTaskOverride(t *testing.T) {
	pl := &fakePlanner{available: true, out: "plan body"}
	svc, _, _ := newTestCycleService(pl)
	impl := &fakeImplementer{
		name:      "simulate",
		available: true,
		result:    &implementer.Result{OK: true, Summary: "done"},
	}
	svc.newImpl = func(string) (implementer.Implementer, error) { return impl, nil }

	if _, err := svc.RunCycle(context.Background(), "simulate", "Add a health probe", "kubernetes deployment"); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if pl.gotTask != "Add a health probe" || pl.gotContext != "kubernetes deployment" {
		t.Errorf("planner got (%q, %q)", pl.gotTask, pl.gotContext)
	}

	// An empty task falls back to the canned demonstration task.
	if _, err := svc.RunCycle(context.Background(), "simulate", "", ""); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if pl.gotTask != runCycleTask {
		t.Errorf("default task = %q, want %q", pl.gotTask, runCycleTask)
	}
}

func TestRunCycleFailedImplementationStillCompletes(t *testing.T) {
	svc, _, arts := newTestCycleService(&fakePlanner{available: false})
	impl := &fakeImplementer{
		name:      "codex_cli",
		available: true,
		result:    &implementer.Result{OK: false, Summary: "Codex CLI is not available"},
	}
	svc.newImpl = func(string) (implementer.Implementer, error) { return impl, nil }

	res, err := svc.RunCycle(context.Background(), "codex_cli", "", "")
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if res.Phases[1].Success {
		t.Error("implementing phase reported success for a failed run")
	}
	if res.CycleCompleted != 1 {
		t.Errorf("cycle completed = %d, want 1", res.CycleCompleted)
	}
	stored, _ := arts.Read(context.Background(), "handoff.md")
	if !strings.Contains(stored, "## Result\nFailed\n") {
		t.Errorf("handoff = %q, want Failed result", stored)
	}
}

func TestRunCycleFallsBackToBestAvailable(t *testing.T) {
	svc, _, _ := newTestCycleService(&fakePlanner{available: false})
	unavailable := &fakeImplementer{name: "codex_cli", available: false}
	fallback := &fakeImplementer{
		name:      "simulate",
		available: true,
		result:    &implementer.Result{OK: true, Summary: "simulated"},
	}
	svc.newImpl = func(string) (implementer.Implementer, error) { return unavailable, nil }
	svc.bestImpl = func() (implementer.Implementer, error) { return fallback, nil }

	res, err := svc.RunCycle(context.Background(), "codex_cli", "", "")
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if res.Phases[1].Implementer != "simulate" {
		t.Errorf("implementer = %q, want simulate", res.Phases[1].Implementer)
	}
	if unavailable.gotPlan != "" {
		t.Error("unavailable implementer was invoked")
	}
}

func TestRunCycleUnknownImplementer(t *testing.T) {
	svc, state, arts := newTestCycleService(&fakePlanner{available: false})
	svc.newImpl = func(name string) (implementer.Implementer, error) {
		return nil, fmt.Errorf("implementer: unknown implementer %q (available: simulate): %w", name, domain.ErrValidation)
	}

	_, err := svc.RunCycle(context.Background(), "gpt_cli", "", "")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("RunCycle() error = %v, want ErrValidation", err)
	}

	// The name is rejected before the cycle starts, so nothing was touched.
	if _, err := arts.Read(context.Background(), "plan.md"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("plan.md unexpectedly written: %v", err)
	}
	if got := state.st.Phase; got != cycle.PhasePlanning {
		t.Errorf("phase = %s, want planning", got)
	}
	if state.st.CycleCount != 0 {
		t.Errorf("cycle_count = %d, want 0", state.st.CycleCount)
	}
	if len(state.events) != 0 {
		t.Errorf("expected no events, got %d", len(state.events))
	}
}

func TestRunCycleRejectsConcurrentRun(t *testing.T) {
	svc, _, _ := newTestCycleService(&fakePlanner{available: false})
	if !svc.running.TryAcquire(1) {
		t.Fatal("could not acquire cycle semaphore")
	}
	defer svc.running.Release(1)

	_, err := svc.RunCycle(context.Background(), "simulate", "", "")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("RunCycle() error = %v, want ErrConflict", err)
	}
}

func TestRunCyclePaused(t *testing.T) {
	svc, state, arts := newTestCycleService(&fakePlanner{available: false})
	state.st.Paused = true

	_, err := svc.RunCycle(context.Background(), "simulate", "", "")
	if !errors.Is(err, domain.ErrPaused) {
		t.Fatalf("RunCycle() error = %v, want ErrPaused", err)
	}

	// A paused loop rejects the call without touching state or artifacts.
	if got := state.st.Phase; got != cycle.PhasePlanning {
		t.Errorf("phase = %s, want planning", got)
	}
	if state.st.CycleCount != 0 {
		t.Errorf("cycle_count = %d, want 0", state.st.CycleCount)
	}
	if len(state.events) != 0 {
		t.Errorf("expected no events, got %d", len(state.events))
	}
	names, err := arts.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected no artifacts, got %v", names)
	}
}

func TestPauseAndResume(t *testing.T) {
	svc, state, _ := newTestCycleService(&fakePlanner{available: false})
	ctx := context.Background()

	st, err := svc.Pause(ctx)
	if err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if !st.Paused {
		t.Error("state not paused after Pause")
	}

	// Pausing an already paused loop is a no-op, not an error.
	st, err = svc.Pause(ctx)
	if err != nil {
		t.Fatalf("second Pause() error = %v", err)
	}
	if !st.Paused {
		t.Error("state not paused after second Pause")
	}

	if _, err := svc.GeneratePlan(ctx, "task", "", "", nil); !errors.Is(err, domain.ErrPaused) {
		t.Errorf("GeneratePlan() while paused error = %v, want ErrPaused", err)
	}

	st, err = svc.Resume(ctx)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if st.Paused {
		t.Error("state still paused after Resume")
	}
	if _, err := svc.GeneratePlan(ctx, "task", "", "", nil); err != nil {
		t.Errorf("GeneratePlan() after resume error = %v", err)
	}

	// Every pause call is recorded, even a redundant one.
	types := state.eventTypes()
	if types[0] != cycle.TypeLoopPaused || types[1] != cycle.TypeLoopPaused || types[2] != cycle.TypeLoopResumed {
		t.Errorf("events = %v", types)
	}
}

func TestCycleCountSurvivesInterleavedPauses(t *testing.T) {
	svc, state, _ := newTestCycleService(&fakePlanner{available: false})
	impl := &fakeImplementer{
		name:      "simulate",
		available: true,
		result:    &implementer.Result{OK: true, Summary: "ok"},
	}
	svc.newImpl = func(string) (implementer.Implementer, error) { return impl, nil }
	ctx := context.Background()

	for i := range 3 {
		if _, err := svc.Pause(ctx); err != nil {
			t.Fatalf("Pause() error = %v", err)
		}
		if _, err := svc.RunCycle(ctx, "simulate", "", ""); !errors.Is(err, domain.ErrPaused) {
			t.Fatalf("RunCycle() while paused error = %v, want ErrPaused", err)
		}
		if _, err := svc.Resume(ctx); err != nil {
			t.Fatalf("Resume() error = %v", err)
		}
		if _, err := svc.RunCycle(ctx, "simulate", "", ""); err != nil {
			t.Fatalf("RunCycle() %d error = %v", i+1, err)
		}
	}

	st, _ := state.Load(context.Background())
	if st.CycleCount != 3 {
		t.Errorf("cycle_count = %d, want 3", st.CycleCount)
	}
}

func TestEventsReachHub(t *testing.T) {
	state := newFakeStateStore()
	arts := newFakeArtifacts()
	hub := &recordingHub{}
	cfg := config.Defaults()
	svc := NewCycleService(state, arts, &fakePlanner{available: false}, hub, nil, &cfg.Planner, &cfg.Implementer)

	if _, err := svc.GeneratePlan(context.Background(), "task", "", "", nil); err != nil {
		t.Fatalf("GeneratePlan() error = %v", err)
	}
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if strings.Join(hub.types, " ") != "phase_start phase_complete" {
		t.Errorf("hub events = %v", hub.types)
	}
}
