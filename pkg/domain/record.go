package domain

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// PublishRecord tracks whether, where and when an artifact was published for a cache key.
// Records are shared between request goroutines and the background sweep; all
// mutable fields are guarded.
type PublishRecord struct {
	Key              string
	StartStateID     int64
	Event            string
	PublishedStateID int64

	// Site and Section locate the artifact. They are fixed when the record is created.
	Site    string
	Section string

	mu            sync.RWMutex
	path          string
	lastPublished time.Time

	hits  atomic.Int64
	owner atomic.Uint64
}

// NewPublishRecord creates an unpublished record.
func NewPublishRecord(key string, start int64, event string, published int64) *PublishRecord {
	return &PublishRecord{
		Key:              key,
		StartStateID:     start,
		Event:            event,
		PublishedStateID: published,
	}
}

// At reports whether the record is published under site and section.
// Names are compared case-insensitively.
func (r *PublishRecord) At(site, section string) bool {
	return strings.EqualFold(r.Site, site) && strings.EqualFold(r.Section, section)
}

// Path returns the artifact locator, empty if nothing was published yet.
func (r *PublishRecord) Path() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.path
}

// LastPublished returns the last publish time and whether the record was ever published.
func (r *PublishRecord) LastPublished() (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastPublished, !r.lastPublished.IsZero()
}

// MarkPublished stores the artifact locator and publish time.
func (r *PublishRecord) MarkPublished(path string, at time.Time) {
	r.mu.Lock()
	r.path = path
	r.lastPublished = at
	r.mu.Unlock()
}

// Invalidate clears the artifact locator so the next request republishes.
func (r *PublishRecord) Invalidate() {
	r.mu.Lock()
	r.path = ""
	r.lastPublished = time.Time{}
	r.mu.Unlock()
}

// Hit increments the hit counter and returns the new value.
func (r *PublishRecord) Hit() int64 {
	return r.hits.Add(1)
}

// Hits returns the hit counter.
func (r *PublishRecord) Hits() int64 {
	return r.hits.Load()
}

// Writing reports whether a writer currently holds the record's lease.
func (r *PublishRecord) Writing() bool {
	return r.owner.Load() != 0
}

var leaseSeq atomic.Uint64

// Lease is exclusive write ownership of a PublishRecord.
// Release is idempotent and only clears the lease it acquired.
type Lease struct {
	rec   *PublishRecord
	token uint64
	once  sync.Once
}

// TryAcquire takes the writer lease with a compare-and-swap.
// It returns false if another writer holds it.
func (r *PublishRecord) TryAcquire() (*Lease, bool) {
	token := leaseSeq.Add(1)
	if !r.owner.CompareAndSwap(0, token) {
		return nil, false
	}
	return &Lease{rec: r, token: token}, true
}

// Release returns the lease. Safe to call more than once.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		l.rec.owner.CompareAndSwap(l.token, 0)
	})
}

// IndexEntry is the persisted shape of a PublishRecord.
type IndexEntry struct {
	StartState     int64      `json:"start_state" yaml:"start_state"`
	PublishedState int64      `json:"published_state" yaml:"published_state"`
	Key            string     `json:"key" yaml:"key"`
	Event          string     `json:"event" yaml:"event"`
	Site           string     `json:"site,omitempty" yaml:"site,omitempty"`
	Section        string     `json:"section,omitempty" yaml:"section,omitempty"`
	Path           string     `json:"path,omitempty" yaml:"path,omitempty"`
	LastPublished  *time.Time `json:"last_published,omitempty" yaml:"last_published,omitempty"`
	Hits           int64      `json:"hits" yaml:"hits"`
	Server         string     `json:"server" yaml:"server"`
}

// Snapshot captures the record for persistence.
func (r *PublishRecord) Snapshot(server string) IndexEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e := IndexEntry{
		StartState:     r.StartStateID,
		PublishedState: r.PublishedStateID,
		Key:            r.Key,
		Event:          r.Event,
		Site:           r.Site,
		Section:        r.Section,
		Path:           r.path,
		Hits:           r.hits.Load(),
		Server:         server,
	}
	if !r.lastPublished.IsZero() {
		t := r.lastPublished
		e.LastPublished = &t
	}
	return e
}

// RecordFromEntry rebuilds a record from its persisted shape.
func RecordFromEntry(e IndexEntry) *PublishRecord {
	r := NewPublishRecord(e.Key, e.StartState, e.Event, e.PublishedState)
	r.Site, r.Section = e.Site, e.Section
	r.path = e.Path
	if e.LastPublished != nil {
		r.lastPublished = *e.LastPublished
	}
	r.hits.Store(e.Hits)
	return r
}
