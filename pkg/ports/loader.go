package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// DefinitionLoader defines how the graph definition is retrieved.
// This allows the storage layer (YAML, Loam, SQL, Memory) to be decoupled.
type DefinitionLoader interface {
	// Load reads the complete raw definition. An error means the source itself
	// could not be read; per-item problems are left to the graph builder.
	Load(ctx context.Context) (*domain.Definition, error)
}

// StateResolver resolves state ids against the loaded graph.
type StateResolver interface {
	Get(id int64) (*domain.State, bool)
}

// Watchable defines an interface for loaders that can notify about backend changes.
// This is typically used for hot-reload of the graph definition.
type Watchable interface {
	// Watch returns a channel that is signaled when the underlying definition changes.
	Watch(ctx context.Context) (<-chan struct{}, error)
}
