package cycle

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended to the log by the engine and tools.
const (
	TypePhaseStart    = "phase_start"
	TypePhaseComplete = "phase_complete"
	TypeCycleComplete = "cycle_complete"
	TypeLoopPaused    = "loop_paused"
	TypeLoopResumed   = "loop_resumed"
	TypeToolError     = "tool_error"
)

// Event is one immutable record in the append-only log. Events are for
// audit and replay; the engine never bases a control decision on them.
type Event struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent builds an Event with the timestamp stamped now. An empty type
// becomes "unknown" and a nil payload becomes an empty object, so every
// logged line has the same shape.
func NewEvent(eventType string, payload map[string]any) Event {
	if eventType == "" {
		eventType = "unknown"
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{Type: eventType, Payload: payload, Timestamp: time.Now().UTC()}
}

// UnmarshalJSON tolerates log lines written by other tools: a missing type
// becomes "unknown", a missing payload an empty object, and timestamps
// without a zone suffix are accepted.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type      string         `json:"type"`
		Payload   map[string]any `json:"payload"`
		Timestamp string         `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := Event{Type: raw.Type, Payload: raw.Payload}
	if out.Type == "" {
		out.Type = "unknown"
	}
	if out.Payload == nil {
		out.Payload = map[string]any{}
	}
	if raw.Timestamp == "" {
		out.Timestamp = time.Now().UTC()
	} else {
		t, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
		if err != nil {
			t, err = time.Parse(naiveTimeLayout, raw.Timestamp)
		}
		if err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		out.Timestamp = t.UTC()
	}

	*e = out
	return nil
}
