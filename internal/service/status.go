package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Strob0t/LoopForge/internal/config"
	"github.com/Strob0t/LoopForge/internal/domain/cycle"
	"github.com/Strob0t/LoopForge/internal/port/cache"
	"github.com/Strob0t/LoopForge/internal/port/implementer"
	"github.com/Strob0t/LoopForge/internal/port/planner"
	"github.com/Strob0t/LoopForge/internal/port/statestore"
)

// recentEventsLimit is how many events get_status reports.
const recentEventsLimit = 10

// Status is the hub status snapshot returned by get_status.
type Status struct {
	State                cycle.State     `json:"state"`
	PlannerAvailable     bool            `json:"planner_available"`
	PlannerVersion       string          `json:"planner_version"`
	ModelConfigured      string          `json:"planner_model_configured"`
	ExtensionsConfigured string          `json:"planner_extensions_configured"`
	ExtensionInstalled   bool            `json:"planner_extension_installed"`
	Breaker              string          `json:"planner_breaker,omitempty"`
	Implementers         map[string]bool `json:"implementers"`
	RecentEvents         []cycle.Event   `json:"recent_events"`
}

// breakerReporter is implemented by planner wrappers that expose circuit
// state.
type breakerReporter interface {
	BreakerState() string
}

// StatusService assembles hub status snapshots. Collaborator probes spawn
// processes, so probe results are cached for a short TTL.
type StatusService struct {
	state      statestore.Store
	planner    planner.Planner
	cache      cache.Cache
	plannerCfg *config.Planner
	probeTTL   time.Duration

	// Registry lookups, swappable in tests.
	implementers func() []string
	newImpl      func(name string) (implementer.Implementer, error)
}

// NewStatusService creates a StatusService. A nil cache disables probe
// caching; every call then probes the CLIs directly.
func NewStatusService(
	state statestore.Store,
	pl planner.Planner,
	probeCache cache.Cache,
	plannerCfg *config.Planner,
	cacheCfg *config.Cache,
) *StatusService {
	return &StatusService{
		state:        state,
		planner:      pl,
		cache:        probeCache,
		plannerCfg:   plannerCfg,
		probeTTL:     cacheCfg.ProbeTTL,
		implementers: implementer.Available,
		newImpl: func(name string) (implementer.Implementer, error) {
			return implementer.New(name, nil)
		},
	}
}

// Status returns the current loop state, collaborator availability and the
// most recent events.
func (s *StatusService) Status(ctx context.Context) (*Status, error) {
	st, err := s.state.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	events, err := s.state.Events(ctx, recentEventsLimit)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	if events == nil {
		events = []cycle.Event{}
	}

	extName := s.plannerCfg.ExtensionName
	out := &Status{
		State:                st,
		PlannerAvailable:     s.cachedBool(ctx, "probe:planner_available", s.planner.Available),
		PlannerVersion:       s.cachedString(ctx, "probe:planner_version", func() string { return s.planner.Version(ctx) }),
		ModelConfigured:      s.plannerCfg.Model,
		ExtensionsConfigured: s.plannerCfg.Extensions,
		ExtensionInstalled: s.cachedBool(ctx, "probe:extension:"+extName, func() bool {
			return s.planner.ExtensionInstalled(ctx, extName)
		}),
		Implementers: map[string]bool{},
		RecentEvents: events,
	}

	for _, name := range s.implementers() {
		out.Implementers[name] = s.cachedBool(ctx, "probe:implementer:"+name, func() bool {
			impl, err := s.newImpl(name)
			if err != nil {
				return false
			}
			return impl.Available()
		})
	}

	if br, ok := s.planner.(breakerReporter); ok {
		out.Breaker = br.BreakerState()
	}
	return out, nil
}

func (s *StatusService) cachedBool(ctx context.Context, key string, probe func() bool) bool {
	if s.cache != nil {
		if v, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			return string(v) == "true"
		}
	}
	v := probe()
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, []byte(strconv.FormatBool(v)), s.probeTTL)
	}
	return v
}

func (s *StatusService) cachedString(ctx context.Context, key string, probe func() string) string {
	if s.cache != nil {
		if v, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			return string(v)
		}
	}
	v := probe()
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, []byte(v), s.probeTTL)
	}
	return v
}
