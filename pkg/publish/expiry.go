package publish

import (
	"time"

	"github.com/aretw0/arbor/pkg/domain"
)

// TTLPolicy expires records a fixed time after they were published.
// A zero TTL keeps published records forever.
type TTLPolicy struct {
	TTL time.Duration
	Now func() time.Time
}

// Expired reports whether rec was never published or is older than the TTL.
func (p TTLPolicy) Expired(rec *domain.PublishRecord) bool {
	last, ok := rec.LastPublished()
	if !ok {
		return true
	}
	if p.TTL <= 0 {
		return false
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return now().After(last.Add(p.TTL))
}
