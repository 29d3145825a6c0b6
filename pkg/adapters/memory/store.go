package memory

import (
	"context"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
)

// Store implements ports.IndexStore in memory.
// Safe for concurrent use.
type Store struct {
	data  map[string][]domain.IndexEntry
	mu    sync.RWMutex
	saves int
}

// NewStore creates a new in-memory index store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]domain.IndexEntry),
	}
}

// Save replaces the index for server.
func (s *Store) Save(ctx context.Context, server string, entries []domain.IndexEntry) error {
	// Copy to ensure isolation, similar to serialization
	copied := append([]domain.IndexEntry{}, entries...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[server] = copied
	s.saves++
	return nil
}

// Load returns the index for server.
func (s *Store) Load(ctx context.Context, server string) ([]domain.IndexEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, ok := s.data[server]
	if !ok {
		return nil, domain.ErrIndexNotFound
	}
	return append([]domain.IndexEntry{}, entries...), nil
}

// Saves returns how many times Save was called.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Servers returns the servers with a stored index.
func (s *Store) Servers(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	servers := make([]string, 0, len(s.data))
	for id := range s.data {
		servers = append(servers, id)
	}
	return servers, nil
}
