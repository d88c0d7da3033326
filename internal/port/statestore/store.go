// Package statestore defines the port interface for the durable run state
// and its append-only event log.
package statestore

import (
	"context"

	"github.com/Strob0t/LoopForge/internal/domain/cycle"
)

// Store is the port interface for the persistent loop state.
//
// Implementations must serialize access so that a Load issued after a
// successful Save or Update observes that write.
type Store interface {
	// Load returns the current state. A store that has never been written,
	// or whose file cannot be decoded, returns the default state.
	Load(ctx context.Context) (cycle.State, error)

	// Save replaces the whole state, stamping LastUpdated.
	Save(ctx context.Context, st cycle.State) error

	// Update merges a partial update into the current state and persists
	// the result. Unknown keys are preserved; last_updated is always
	// stamped by the store.
	Update(ctx context.Context, partial map[string]any) (cycle.State, error)

	// AppendEvent appends ev to the event log.
	AppendEvent(ctx context.Context, ev cycle.Event) error

	// Events returns the most recent events, oldest first. A limit <= 0
	// uses the store default.
	Events(ctx context.Context, limit int) ([]cycle.Event, error)
}
