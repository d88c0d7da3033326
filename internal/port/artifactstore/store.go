// Package artifactstore defines the port interface for named artifact
// documents such as the spec, plan, handoff and review markdown files.
package artifactstore

import "context"

// Store is the port interface for reading and writing artifacts.
type Store interface {
	// Write persists content under name and returns the absolute path of
	// the written file. Invalid names fail with domain.ErrValidation.
	Write(ctx context.Context, name, content string) (string, error)

	// Read returns the artifact content. A missing artifact fails with
	// domain.ErrNotFound.
	Read(ctx context.Context, name string) (string, error)

	// List returns the names of all existing artifacts in sorted order.
	List(ctx context.Context) ([]string, error)
}
