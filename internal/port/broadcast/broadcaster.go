// Package broadcast defines the port for pushing loop events to connected
// websocket clients.
package broadcast

import "context"

// Broadcaster fans a typed event out to every connected client. Sending is
// best effort; slow clients are dropped rather than blocking the loop.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
