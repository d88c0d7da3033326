package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Message is one frame on the event stream. Frames carry the same type,
// payload and timestamp fields as events.jsonl lines, so a client can treat
// the live tail and the log as one sequence.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// BroadcastEvent marshals a loop event payload and fans it out to every
// connected client, stamped with the broadcast time. The engine calls this
// with the same type and payload it appends to the event log.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:      eventType,
		Payload:   json.RawMessage(data),
		Timestamp: time.Now().UTC(),
	})
}
