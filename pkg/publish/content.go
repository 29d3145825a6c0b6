package publish

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// ContentPublisher stores rendered artifacts for cache records.
type ContentPublisher interface {
	// Key derives the cache key for firing event on start, given the resolved
	// transition and its publishable target.
	Key(req *domain.Request, start *domain.State, event string, t *domain.Transition, target *domain.State) string

	// Publish writes content for rec and marks rec published.
	// It returns domain.ErrWriteInFlight without writing if another writer owns rec.
	Publish(ctx context.Context, req *domain.Request, rec *domain.PublishRecord, target *domain.State, content []byte) ([]byte, error)

	// Read returns the published content of rec.
	Read(ctx context.Context, rec *domain.PublishRecord) ([]byte, error)

	// IsExpired reports whether rec must be republished.
	IsExpired(rec *domain.PublishRecord) bool
}
