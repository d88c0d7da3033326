// Package statefile implements statestore.Store on plain files: a JSON
// state document plus a JSON-lines event log inside one state directory,
// written atomically via temp file and rename.
package statefile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Strob0t/LoopForge/internal/domain"
	"github.com/Strob0t/LoopForge/internal/domain/cycle"
)

const (
	stateFileName  = "state.json"
	eventsFileName = "events.jsonl"

	// defaultEventLimit bounds Events when the caller passes no limit.
	defaultEventLimit = 100
)

// Store persists the loop state under a single directory. Every operation
// holds the store mutex, so a Load issued after a successful write observes
// that write.
type Store struct {
	dir        string
	stateFile  string
	eventsFile string

	mu  sync.Mutex
	now func() time.Time
}

// New creates the state directory if needed and returns a Store rooted there.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("statefile: create %s: %w", dir, err)
	}
	return &Store{
		dir:        dir,
		stateFile:  filepath.Join(dir, stateFileName),
		eventsFile: filepath.Join(dir, eventsFileName),
		now:        time.Now,
	}, nil
}

// Load returns the persisted state. A missing or undecodable file yields the
// default state rather than an error: the hub must come up even when the
// previous run left garbage behind.
func (s *Store) Load(_ context.Context) (cycle.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(), nil
}

func (s *Store) loadLocked() cycle.State {
	data, err := os.ReadFile(s.stateFile)
	if err != nil {
		return cycle.DefaultState()
	}
	var st cycle.State
	if err := json.Unmarshal(data, &st); err != nil {
		return cycle.DefaultState()
	}
	return st
}

// Save replaces the whole state, stamping LastUpdated.
func (s *Store) Save(_ context.Context, st cycle.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.saveLocked(st)
	return err
}

// Update merges partial into the current state and persists the result.
func (s *Store) Update(_ context.Context, partial map[string]any) (cycle.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.loadLocked().Merge(partial)
	if err != nil {
		return cycle.State{}, err
	}
	return s.saveLocked(next)
}

func (s *Store) saveLocked(st cycle.State) (cycle.State, error) {
	st.LastUpdated = s.now().UTC()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return cycle.State{}, fmt.Errorf("statefile: encode state: %w", err)
	}
	if err := s.writeAtomic(s.stateFile, append(data, '\n')); err != nil {
		return cycle.State{}, fmt.Errorf("statefile: write state: %w: %w", domain.ErrStorage, err)
	}
	return st, nil
}

// AppendEvent appends one JSON line to the event log.
func (s *Store) AppendEvent(_ context.Context, ev cycle.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("statefile: encode event: %w", err)
	}
	f, err := os.OpenFile(s.eventsFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("statefile: open events: %w: %w", domain.ErrStorage, err)
	}
	_, werr := f.Write(append(data, '\n'))
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return fmt.Errorf("statefile: append event: %w: %w", domain.ErrStorage, werr)
	}
	return nil
}

// Events returns up to limit of the most recent events, oldest first.
// Blank and undecodable lines are skipped so one corrupt line never hides
// the rest of the log.
func (s *Store) Events(_ context.Context, limit int) ([]cycle.Event, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.eventsFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("statefile: read events: %w: %w", domain.ErrStorage, err)
	}

	var events []cycle.Event
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var ev cycle.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// writeAtomic writes data to a temp file in the state directory and renames
// it over path. The rename keeps the last known-good file intact when a
// write fails halfway.
func (s *Store) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, werr := tmp.Write(data)
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(tmpName)
		return werr
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
