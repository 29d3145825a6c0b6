package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSweepInterval   = 5 * time.Minute
	DefaultPersistInterval = 10 * time.Minute
)

// ExpiryResolver decides whether a record is expired.
// An error marks the record as corrupt; the sweep evicts it.
type ExpiryResolver interface {
	Expired(rec *domain.PublishRecord) (bool, error)
}

// Stats is a point-in-time view of the manager.
type Stats struct {
	Server      string    `json:"server"`
	Entries     int       `json:"entries"`
	Published   int       `json:"published"`
	Writing     int       `json:"writing"`
	Hits        int64     `json:"hits"`
	Evicted     int64     `json:"evicted"`
	LastSweep   time.Time `json:"last_sweep,omitzero"`
	LastPersist time.Time `json:"last_persist,omitzero"`
}

// Manager owns the publish cache and runs the background expiration sweep and
// index persistence.
type Manager struct {
	cache           *Cache
	store           ports.IndexStore
	expiry          ExpiryResolver
	server          string
	sweepInterval   time.Duration
	persistInterval time.Duration
	logger          *slog.Logger
	observer        Observer

	mu          sync.Mutex
	cancel      context.CancelFunc
	group       *errgroup.Group
	closed      bool
	evicted     int64
	lastSweep   time.Time
	lastPersist time.Time
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithIndexStore sets the durable store for the index.
func WithIndexStore(store ports.IndexStore) ManagerOption {
	return func(m *Manager) {
		m.store = store
	}
}

// WithExpiry sets the expiration resolver used by the sweep.
func WithExpiry(expiry ExpiryResolver) ManagerOption {
	return func(m *Manager) {
		m.expiry = expiry
	}
}

// WithServer names the index partition owned by this instance.
func WithServer(server string) ManagerOption {
	return func(m *Manager) {
		if server != "" {
			m.server = server
		}
	}
}

// WithSweepInterval sets the expiration sweep period.
func WithSweepInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.sweepInterval = d
		}
	}
}

// WithPersistInterval sets the persistence period.
func WithPersistInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.persistInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithObserver receives cache activity, typically metrics.
func WithObserver(o Observer) ManagerOption {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// NewManager creates a stopped manager. Call Start before serving traffic.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		cache:           NewCache(),
		sweepInterval:   DefaultSweepInterval,
		persistInterval: DefaultPersistInterval,
		logger:          logging.NewNop(),
		observer:        nopObserver{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.server == "" {
		m.server = hostname()
	}
	return m
}

func hostname() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "localhost"
}

// Server returns the index partition name.
func (m *Manager) Server() string {
	return m.server
}

// Cache returns the underlying index.
func (m *Manager) Cache() *Cache {
	return m.cache
}

// Start loads the persisted index, sweeps it once and launches the background loops.
// A failing index store is logged; the manager then starts empty.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("publish manager is closed")
	}
	if m.cancel != nil {
		m.mu.Unlock()
		return errors.New("publish manager already started")
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(loopCtx)
	m.cancel = cancel
	m.group = g
	m.mu.Unlock()

	if n, err := m.Load(ctx); err != nil {
		m.logger.Warn("publish index not loaded, starting empty", "server", m.server, "err", err)
	} else {
		m.logger.Info("publish index loaded", "server", m.server, "entries", n)
	}
	m.Sweep(ctx)

	g.Go(func() error {
		m.loop(gctx, "sweep", m.sweepInterval, 0, func(ctx context.Context) { m.Sweep(ctx) })
		return nil
	})
	if m.store != nil {
		delay := time.Duration(rand.Int64N(int64(m.persistInterval)))
		g.Go(func() error {
			m.loop(gctx, "persist", m.persistInterval, delay, func(ctx context.Context) {
				if err := m.Persist(ctx); err != nil {
					m.logger.Error("publish index persist failed", "server", m.server, "err", err)
				}
			})
			return nil
		})
	}
	return nil
}

// Load reads the persisted index into the cache without sweeping it and
// returns the count of records added. A missing index loads nothing.
func (m *Manager) Load(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	entries, err := m.store.Load(ctx, m.server)
	if errors.Is(err, domain.ErrIndexNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.Key == "" {
			continue
		}
		if _, created := m.cache.GetOrCreate(e.Key, func() *domain.PublishRecord {
			return domain.RecordFromEntry(e)
		}); created {
			n++
		}
	}
	return n, nil
}

// loop runs fn every interval after an initial delay. Panics in fn are
// recovered and the loop keeps its schedule.
func (m *Manager) loop(ctx context.Context, name string, interval, delay time.Duration, fn func(context.Context)) {
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		m.safeRun(ctx, name, fn)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.safeRun(ctx, name, fn)
		}
	}
}

func (m *Manager) safeRun(ctx context.Context, name string, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("publish background task panicked", "task", name, "panic", r)
		}
	}()
	fn(ctx)
}

// Close stops the background loops and persists the index one last time.
// A manager that was never started persists nothing, so the stored index is kept.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cancel, g := m.cancel, m.group
	m.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	_ = g.Wait()
	return m.Persist(ctx)
}

// Sweep evicts expired and corrupt records and returns the count evicted.
// Records being written are skipped.
func (m *Manager) Sweep(ctx context.Context) int {
	start := time.Now()
	evicted := 0
	for _, key := range m.cache.Keys() {
		if ctx.Err() != nil {
			break
		}
		rec, ok := m.cache.Get(key)
		if !ok || rec.Writing() {
			continue
		}
		expired, err := m.expired(rec)
		if err != nil {
			m.logger.Warn("evicting corrupt publish record", "key", key, "err", err)
		}
		if !expired && err == nil {
			continue
		}
		if m.cache.RemoveIf(key, func(cur *domain.PublishRecord) bool { return cur == rec && !cur.Writing() }) {
			evicted++
		}
	}

	m.mu.Lock()
	m.evicted += int64(evicted)
	m.lastSweep = time.Now()
	m.mu.Unlock()

	m.observer.Swept(evicted, time.Since(start))
	if evicted > 0 {
		m.logger.Info("publish cache swept", "evicted", evicted, "remaining", m.cache.Len())
	}
	return evicted
}

func (m *Manager) expired(rec *domain.PublishRecord) (expired bool, err error) {
	if m.expiry == nil {
		return false, nil
	}
	defer func() {
		if r := recover(); r != nil {
			expired, err = true, fmt.Errorf("expiry check panicked: %v", r)
		}
	}()
	return m.expiry.Expired(rec)
}

// Persist saves the whole index to the store.
func (m *Manager) Persist(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	entries := m.Snapshot()
	err := m.store.Save(ctx, m.server, entries)
	m.observer.Persisted(len(entries), err)
	if err != nil {
		return fmt.Errorf("persist publish index: %w", err)
	}
	m.mu.Lock()
	m.lastPersist = time.Now()
	m.mu.Unlock()
	m.logger.Debug("publish index persisted", "server", m.server, "entries", len(entries))
	return nil
}

// Snapshot returns the index entries sorted by key.
func (m *Manager) Snapshot() []domain.IndexEntry {
	entries := make([]domain.IndexEntry, 0, m.cache.Len())
	m.cache.Range(func(rec *domain.PublishRecord) bool {
		entries = append(entries, rec.Snapshot(m.server))
		return true
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

// Lookup returns the record for key.
func (m *Manager) Lookup(key string) (*domain.PublishRecord, bool) {
	return m.cache.Get(key)
}

// Create returns the record for key, creating an unpublished one if absent.
func (m *Manager) Create(key string, start int64, event string, published int64) (*domain.PublishRecord, bool) {
	return m.CreateAt(key, start, event, published, "", "")
}

// CreateAt is Create for a record published under site and section.
// An existing record keeps its own location.
func (m *Manager) CreateAt(key string, start int64, event string, published int64, site, section string) (*domain.PublishRecord, bool) {
	return m.cache.GetOrCreate(key, func() *domain.PublishRecord {
		rec := domain.NewPublishRecord(key, start, event, published)
		rec.Site, rec.Section = site, section
		return rec
	})
}

// restore puts a published record back if a sweep removed it while its
// writer was starting. A newer record under the same key adopts the artifact.
func (m *Manager) restore(rec *domain.PublishRecord) {
	cur, created := m.cache.GetOrCreate(rec.Key, func() *domain.PublishRecord { return rec })
	if created || cur == rec {
		return
	}
	if _, published := cur.LastPublished(); published || !cur.At(rec.Site, rec.Section) {
		return
	}
	if at, ok := rec.LastPublished(); ok {
		cur.MarkPublished(rec.Path(), at)
	}
}

// Evict removes key, typically an orphaned record.
func (m *Manager) Evict(key string) bool {
	if m.cache.Remove(key) {
		m.mu.Lock()
		m.evicted++
		m.mu.Unlock()
		return true
	}
	return false
}

// ResetAll clears the index and returns the count removed.
func (m *Manager) ResetAll() int {
	n := m.cache.Clear()
	m.logger.Info("publish cache reset", "removed", n)
	return n
}

// ResetSite removes records published under site, whatever their state.
func (m *Manager) ResetSite(site string) int {
	site = strings.TrimSpace(site)
	n := m.cache.RemoveWhere(func(rec *domain.PublishRecord) bool {
		return strings.EqualFold(rec.Site, site)
	})
	m.logger.Info("publish cache reset", "site", site, "removed", n)
	return n
}

// ResetKeys removes the given keys and returns the count removed.
func (m *Manager) ResetKeys(keys ...string) int {
	n := 0
	for _, k := range keys {
		if m.cache.Remove(k) {
			n++
		}
	}
	m.logger.Info("publish cache reset", "keys", len(keys), "removed", n)
	return n
}

// Stats returns a point-in-time view of the manager.
func (m *Manager) Stats() Stats {
	s := Stats{Server: m.server}
	m.cache.Range(func(rec *domain.PublishRecord) bool {
		s.Entries++
		if rec.Path() != "" {
			s.Published++
		}
		if rec.Writing() {
			s.Writing++
		}
		s.Hits += rec.Hits()
		return true
	})
	m.mu.Lock()
	s.Evicted = m.evicted
	s.LastSweep = m.lastSweep
	s.LastPersist = m.lastPersist
	m.mu.Unlock()
	return s
}
