// Package cycle defines the run state and event records for the
// planning / implementing / review loop.
package cycle

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Strob0t/LoopForge/internal/domain"
)

// Phase is the current stage of the cycle state machine.
type Phase string

const (
	// PhasePlanning means the loop is waiting for (or producing) a plan.
	PhasePlanning Phase = "planning"
	// PhaseImplementing means a plan exists and implementation is underway.
	PhaseImplementing Phase = "implementing"
	// PhaseAwaitingReview means a handoff exists and is waiting for review.
	PhaseAwaitingReview Phase = "awaiting_review"
)

// Valid reports whether p is one of the enumerated phases.
func (p Phase) Valid() bool {
	switch p {
	case PhasePlanning, PhaseImplementing, PhaseAwaitingReview:
		return true
	}
	return false
}

// ParsePhase converts a string into a Phase.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("invalid phase %q: %w", s, domain.ErrValidation)
	}
	return p, nil
}

// State is the canonical, persisted record of the loop. One State is shared
// by the whole process; sessions never own a copy.
//
// Extra carries any JSON fields this version does not know about, so a state
// file written by a newer hub round-trips without loss.
type State struct {
	Phase       Phase
	Paused      bool
	CycleCount  int
	LastUpdated time.Time
	CurrentTask *string
	Error       *string
	Extra       map[string]any
}

// DefaultState is the state a fresh hub starts from.
func DefaultState() State {
	return State{Phase: PhasePlanning, LastUpdated: time.Now().UTC()}
}

// Python's datetime.isoformat() writes no zone suffix; accept it on reads so
// a state dir written by the previous implementation still loads.
const naiveTimeLayout = "2006-01-02T15:04:05.999999999"

// MarshalJSON flattens Extra into the top-level object alongside the known fields.
func (s State) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(s.Extra)+6)
	for k, v := range s.Extra {
		m[k] = v
	}
	m["phase"] = s.Phase
	m["paused"] = s.Paused
	m["cycle_count"] = s.CycleCount
	m["last_updated"] = s.LastUpdated.UTC().Format(time.RFC3339Nano)
	m["current_task"] = s.CurrentTask
	m["error"] = s.Error
	return json.Marshal(m)
}

// UnmarshalJSON is the inverse of MarshalJSON: known fields are decoded with
// defaults for absent keys, everything else lands in Extra. A phase outside
// the enumeration is an error so a reader never observes an invalid State.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := DefaultState()

	if b, ok := raw["phase"]; ok {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return fmt.Errorf("phase: %w", err)
		}
		p, err := ParsePhase(v)
		if err != nil {
			return err
		}
		out.Phase = p
	}
	if b, ok := raw["paused"]; ok {
		if err := json.Unmarshal(b, &out.Paused); err != nil {
			return fmt.Errorf("paused: %w", err)
		}
	}
	if b, ok := raw["cycle_count"]; ok {
		if err := json.Unmarshal(b, &out.CycleCount); err != nil {
			return fmt.Errorf("cycle_count: %w", err)
		}
		if out.CycleCount < 0 {
			return fmt.Errorf("cycle_count %d is negative: %w", out.CycleCount, domain.ErrValidation)
		}
	}
	if b, ok := raw["last_updated"]; ok {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return fmt.Errorf("last_updated: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			t, err = time.Parse(naiveTimeLayout, v)
		}
		if err != nil {
			return fmt.Errorf("last_updated: %w", err)
		}
		out.LastUpdated = t.UTC()
	}
	if b, ok := raw["current_task"]; ok {
		if err := json.Unmarshal(b, &out.CurrentTask); err != nil {
			return fmt.Errorf("current_task: %w", err)
		}
	}
	if b, ok := raw["error"]; ok {
		if err := json.Unmarshal(b, &out.Error); err != nil {
			return fmt.Errorf("error: %w", err)
		}
	}

	for k, b := range raw {
		switch k {
		case "phase", "paused", "cycle_count", "last_updated", "current_task", "error":
			continue
		}
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		if out.Extra == nil {
			out.Extra = make(map[string]any)
		}
		out.Extra[k] = v
	}

	*s = out
	return nil
}

// Merge applies a partial update and returns the new state. Known fields are
// type-checked (an invalid phase or a non-boolean paused is a validation
// error); unknown keys go to Extra; last_updated is ignored because the store
// stamps it on every save. The receiver is not modified.
func (s State) Merge(partial map[string]any) (State, error) {
	next := s
	if s.Extra != nil {
		next.Extra = make(map[string]any, len(s.Extra))
		for k, v := range s.Extra {
			next.Extra[k] = v
		}
	}

	for k, v := range partial {
		switch k {
		case "phase":
			str, ok := v.(string)
			if !ok {
				return State{}, fmt.Errorf("phase must be a string: %w", domain.ErrValidation)
			}
			p, err := ParsePhase(str)
			if err != nil {
				return State{}, err
			}
			next.Phase = p
		case "paused":
			b, ok := v.(bool)
			if !ok {
				return State{}, fmt.Errorf("paused must be a boolean: %w", domain.ErrValidation)
			}
			next.Paused = b
		case "cycle_count":
			n, err := toInt(v)
			if err != nil || n < 0 {
				return State{}, fmt.Errorf("cycle_count must be a non-negative integer: %w", domain.ErrValidation)
			}
			next.CycleCount = n
		case "current_task":
			str, err := toNullableString(v)
			if err != nil {
				return State{}, fmt.Errorf("current_task must be a string or null: %w", domain.ErrValidation)
			}
			next.CurrentTask = str
		case "error":
			str, err := toNullableString(v)
			if err != nil {
				return State{}, fmt.Errorf("error must be a string or null: %w", domain.ErrValidation)
			}
			next.Error = str
		case "last_updated":
			// stamped by the store
		default:
			if next.Extra == nil {
				next.Extra = make(map[string]any)
			}
			next.Extra[k] = v
		}
	}
	return next, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("not an integer")
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("not a number")
}

func toNullableString(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	str, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("not a string")
	}
	return &str, nil
}
