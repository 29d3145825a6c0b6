package memory

import (
	"context"
	"fmt"
	"os"
	"path"
	"sync"
)

// Artifacts implements ports.ArtifactStore in memory.
type Artifacts struct {
	mu     sync.RWMutex
	files  map[string][]byte
	dirs   map[string]bool
	writes int

	// FailWrites makes every Write return an error.
	FailWrites bool
}

// NewArtifacts creates an empty artifact store.
func NewArtifacts() *Artifacts {
	return &Artifacts{
		files: make(map[string][]byte),
		dirs:  make(map[string]bool),
	}
}

// Write stores data at p.
func (a *Artifacts) Write(ctx context.Context, p string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.FailWrites {
		return fmt.Errorf("write %s: simulated failure", p)
	}
	a.files[path.Clean(p)] = append([]byte(nil), data...)
	a.writes++
	return nil
}

// Read returns the artifact at p.
func (a *Artifacts) Read(ctx context.Context, p string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	data, ok := a.files[path.Clean(p)]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", p, os.ErrNotExist)
	}
	return append([]byte(nil), data...), nil
}

// Exists reports whether dir was ensured.
func (a *Artifacts) Exists(ctx context.Context, dir string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.dirs[path.Clean(dir)], nil
}

// Ensure records dir.
func (a *Artifacts) Ensure(ctx context.Context, dir string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dirs[path.Clean(dir)] = true
	return nil
}

// Writes returns the number of successful writes.
func (a *Artifacts) Writes() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.writes
}
