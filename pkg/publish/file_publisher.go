package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// Sentinel is appended to every published artifact.
const Sentinel = "\n<!-- published -->\n"

// DefaultLockWait bounds how long Publish waits for the distributed lock.
const DefaultLockWait = 5 * time.Second

// FilePublisher publishes artifacts into an ArtifactStore laid out by site and section.
type FilePublisher struct {
	artifacts ports.ArtifactStore
	keys      *KeyDeriver
	paths     PathBuilder
	expiry    TTLPolicy
	locker    ports.DistributedLocker
	lockWait  time.Duration
	logger    *slog.Logger
}

// FileOption configures a FilePublisher.
type FileOption func(*FilePublisher)

// WithTTL sets the artifact time-to-live.
func WithTTL(ttl time.Duration) FileOption {
	return func(p *FilePublisher) {
		p.expiry.TTL = ttl
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) FileOption {
	return func(p *FilePublisher) {
		p.expiry.Now = now
	}
}

// WithKeyDeriver sets the key deriver.
func WithKeyDeriver(d *KeyDeriver) FileOption {
	return func(p *FilePublisher) {
		if d != nil {
			p.keys = d
		}
	}
}

// WithPaths sets the artifact path layout.
func WithPaths(paths PathBuilder) FileOption {
	return func(p *FilePublisher) {
		p.paths = paths
	}
}

// WithLocker serializes writers of the same key across instances that share the artifact store.
func WithLocker(locker ports.DistributedLocker, wait time.Duration) FileOption {
	return func(p *FilePublisher) {
		p.locker = locker
		if wait > 0 {
			p.lockWait = wait
		}
	}
}

// WithFileLogger sets the logger.
func WithFileLogger(logger *slog.Logger) FileOption {
	return func(p *FilePublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewFilePublisher creates a publisher writing to artifacts.
func NewFilePublisher(artifacts ports.ArtifactStore, opts ...FileOption) *FilePublisher {
	p := &FilePublisher{
		artifacts: artifacts,
		keys:      NewKeyDeriver(),
		lockWait:  DefaultLockWait,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Key implements ContentPublisher.
func (p *FilePublisher) Key(req *domain.Request, start *domain.State, event string, t *domain.Transition, target *domain.State) string {
	var exclude, only []string
	if target.Publish != nil {
		exclude = target.Publish.ExcludeParams
	}
	if t != nil {
		only = t.PublishKeyParams
	}
	return p.keys.Key(start.ID, event, req.Params, exclude, only)
}

// Publish implements ContentPublisher.
func (p *FilePublisher) Publish(ctx context.Context, req *domain.Request, rec *domain.PublishRecord, target *domain.State, content []byte) ([]byte, error) {
	lease, ok := rec.TryAcquire()
	if !ok {
		return nil, domain.ErrWriteInFlight
	}
	defer lease.Release()

	if p.locker != nil {
		lockCtx, cancel := context.WithTimeout(ctx, p.lockWait)
		unlock, err := p.locker.Lock(lockCtx, "publish:"+rec.Key, p.lockWait*2)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: key %q locked by another instance", domain.ErrWriteInFlight, rec.Key)
			}
			return nil, p.fail(rec, fmt.Errorf("acquire publish lock: %w", err))
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				p.logger.Warn("failed to release publish lock", "key", rec.Key, "err", err)
			}
		}()
	}

	page := ""
	if target.Publish != nil {
		page = target.Publish.Page
	}

	dir := p.paths.Dir(Location(req, target))
	exists, err := p.artifacts.Exists(ctx, dir)
	if err != nil {
		return nil, p.fail(rec, fmt.Errorf("stat %s: %w", dir, err))
	}
	if !exists {
		if err := p.artifacts.Ensure(ctx, dir); err != nil {
			return nil, p.fail(rec, fmt.Errorf("create %s: %w", dir, err))
		}
	}

	file := p.paths.File(dir, rec.Key, page)
	data := make([]byte, 0, len(content)+len(Sentinel))
	data = append(append(data, content...), Sentinel...)
	if err := p.artifacts.Write(ctx, file, data); err != nil {
		return nil, p.fail(rec, fmt.Errorf("write %s: %w", file, err))
	}

	rec.MarkPublished(file, p.now())
	p.logger.Debug("artifact published", "key", rec.Key, "path", file, "bytes", len(data))
	return content, nil
}

func (p *FilePublisher) fail(rec *domain.PublishRecord, err error) error {
	p.logger.Error("publish failed", "key", rec.Key, "err", err)
	return err
}

// Read implements ContentPublisher. The sentinel is stripped.
func (p *FilePublisher) Read(ctx context.Context, rec *domain.PublishRecord) ([]byte, error) {
	path := rec.Path()
	if path == "" {
		return nil, fmt.Errorf("%w: %q is not published", domain.ErrRecordNotFound, rec.Key)
	}
	data, err := p.artifacts.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return bytes.TrimSuffix(data, []byte(Sentinel)), nil
}

// IsExpired implements ContentPublisher.
func (p *FilePublisher) IsExpired(rec *domain.PublishRecord) bool {
	return p.expiry.Expired(rec)
}

func (p *FilePublisher) now() time.Time {
	if p.expiry.Now != nil {
		return p.expiry.Now()
	}
	return time.Now()
}

var _ ContentPublisher = (*FilePublisher)(nil)
