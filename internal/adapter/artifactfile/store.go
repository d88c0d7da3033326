// Package artifactfile implements artifactstore.Store on a flat directory
// of named markdown files with atomic writes.
package artifactfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Strob0t/LoopForge/internal/domain"
	"github.com/Strob0t/LoopForge/internal/domain/artifact"
	"github.com/Strob0t/LoopForge/internal/textio"
)

// Store reads and writes artifacts inside one directory. Names are validated
// before they touch the filesystem, so content can never land outside dir.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New creates the artifacts directory if needed and returns a Store for it.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifactfile: create %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Write persists content under name and returns the absolute path written.
func (s *Store) Write(_ context.Context, name, content string) (string, error) {
	if err := artifact.ValidateName(name); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	if err := s.writeAtomic(path, []byte(content)); err != nil {
		return "", fmt.Errorf("artifactfile: write %s: %w: %w", name, domain.ErrStorage, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}

// Read returns the artifact content. Reads tolerate UTF-16 and BOM-prefixed
// files because other tools on Windows write those.
func (s *Store) Read(_ context.Context, name string) (string, error) {
	if err := artifact.ValidateName(name); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, name)) //nolint:gosec // Name passed ValidateName.
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("artifactfile: %s: %w", name, domain.ErrNotFound)
		}
		return "", fmt.Errorf("artifactfile: read %s: %w: %w", name, domain.ErrStorage, err)
	}
	return textio.DecodeAuto(data), nil
}

// List returns the names of existing artifacts in sorted order. Temp files
// and anything else that is not a valid artifact name are skipped.
func (s *Store) List(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("artifactfile: list: %w: %w", domain.ErrStorage, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || artifact.ValidateName(e.Name()) != nil {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

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
