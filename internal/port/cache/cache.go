// Package cache defines the port for short-lived byte-value caching.
package cache

import (
	"context"
	"time"
)

// Cache memoizes collaborator probe results between status calls. Entries
// carry a per-key TTL; a missing or expired key is not an error.
type Cache interface {
	// Get returns the cached value and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key for at most ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
