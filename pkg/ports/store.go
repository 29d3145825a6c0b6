package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// IndexStore persists the publish cache index.
// Each server owns and writes only its own partition.
type IndexStore interface {
	// Save replaces the stored index for server.
	Save(ctx context.Context, server string, entries []domain.IndexEntry) error

	// Load returns the stored index for server.
	// Returns domain.ErrIndexNotFound if nothing was saved yet.
	Load(ctx context.Context, server string) ([]domain.IndexEntry, error)
}

// ArtifactStore is the backing store for published artifacts.
type ArtifactStore interface {
	// Write stores data at path, overwriting any previous artifact.
	Write(ctx context.Context, path string, data []byte) error

	// Read returns the artifact at path.
	Read(ctx context.Context, path string) ([]byte, error)

	// Exists reports whether dir exists.
	Exists(ctx context.Context, dir string) (bool, error)

	// Ensure creates dir if it does not exist.
	Ensure(ctx context.Context, dir string) error
}
