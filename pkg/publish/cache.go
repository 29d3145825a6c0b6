package publish

import (
	"strings"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

// Cache is the in-memory publish index. Keys are case-insensitive and at most
// one record exists per key.
type Cache struct {
	shards [shardCount]*shard
}

type shard struct {
	mu    sync.RWMutex
	items map[string]*domain.PublishRecord
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	c := &Cache{}
	for i := range c.shards {
		c.shards[i] = &shard{items: make(map[string]*domain.PublishRecord)}
	}
	return c
}

func normKey(key string) string {
	return strings.ToLower(key)
}

func (c *Cache) shardFor(k string) *shard {
	return c.shards[xxhash.Sum64String(k)%shardCount]
}

// Get returns the record for key.
func (c *Cache) Get(key string) (*domain.PublishRecord, bool) {
	k := normKey(key)
	s := c.shardFor(k)
	s.mu.RLock()
	rec, ok := s.items[k]
	s.mu.RUnlock()
	return rec, ok
}

// GetOrCreate returns the existing record for key, or stores the one built by
// create. created reports whether create was used.
func (c *Cache) GetOrCreate(key string, create func() *domain.PublishRecord) (rec *domain.PublishRecord, created bool) {
	k := normKey(key)
	s := c.shardFor(k)

	s.mu.RLock()
	rec, ok := s.items[k]
	s.mu.RUnlock()
	if ok {
		return rec, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.items[k]; ok {
		return rec, false
	}
	rec = create()
	s.items[k] = rec
	return rec, true
}

// Remove deletes key and reports whether it was present.
func (c *Cache) Remove(key string) bool {
	k := normKey(key)
	s := c.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[k]; !ok {
		return false
	}
	delete(s.items, k)
	return true
}

// RemoveIf deletes key only if pred holds for its current record.
func (c *Cache) RemoveIf(key string, pred func(*domain.PublishRecord) bool) bool {
	k := normKey(key)
	s := c.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[k]
	if !ok || !pred(rec) {
		return false
	}
	delete(s.items, k)
	return true
}

// RemoveWhere deletes every record matching pred and returns the count.
func (c *Cache) RemoveWhere(pred func(*domain.PublishRecord) bool) int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for k, rec := range s.items {
			if pred(rec) {
				delete(s.items, k)
				n++
			}
		}
		s.mu.Unlock()
	}
	return n
}

// Keys returns a snapshot of the stored keys.
func (c *Cache) Keys() []string {
	keys := make([]string, 0, c.Len())
	c.Range(func(rec *domain.PublishRecord) bool {
		keys = append(keys, rec.Key)
		return true
	})
	return keys
}

// Len returns the number of records.
func (c *Cache) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

// Range calls fn for each record until fn returns false.
// fn runs without shard locks held and may modify the cache.
func (c *Cache) Range(fn func(*domain.PublishRecord) bool) {
	for _, s := range c.shards {
		s.mu.RLock()
		recs := make([]*domain.PublishRecord, 0, len(s.items))
		for _, rec := range s.items {
			recs = append(recs, rec)
		}
		s.mu.RUnlock()
		for _, rec := range recs {
			if !fn(rec) {
				return
			}
		}
	}
}

// Clear removes every record and returns the count removed.
func (c *Cache) Clear() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += len(s.items)
		s.items = make(map[string]*domain.PublishRecord)
		s.mu.Unlock()
	}
	return n
}
