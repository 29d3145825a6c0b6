// Package redis provides a Redis-backed publish index store and distributed locker.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "arbor:"

// Store implements ports.IndexStore. Each server's index is one JSON value.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithTTL expires an index that was not saved again within ttl, so partitions
// of retired servers disappear. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// New connects to addr.
func New(addr string, opts ...Option) *Store {
	return NewFromClient(backend.NewClient(&backend.Options{Addr: addr}), opts...)
}

// NewFromClient wraps an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client returns the underlying client, shared with the Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(server string) string {
	return s.prefix + "index:" + server
}

// Save replaces the index of server.
func (s *Store) Save(ctx context.Context, server string, entries []domain.IndexEntry) error {
	if entries == nil {
		entries = []domain.IndexEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	if err := s.client.Set(ctx, s.key(server), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis error saving index: %w", err)
	}
	return nil
}

// Load returns the index of server.
func (s *Store) Load(ctx context.Context, server string) ([]domain.IndexEntry, error) {
	data, err := s.client.Get(ctx, s.key(server)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, domain.ErrIndexNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis error loading index: %w", err)
	}
	var entries []domain.IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal index: %w", err)
	}
	return entries, nil
}

// Servers lists the servers with a stored index.
func (s *Store) Servers(ctx context.Context) ([]string, error) {
	var servers []string
	prefix := s.key("")
	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		servers = append(servers, iter.Val()[len(prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis error listing servers: %w", err)
	}
	return servers, nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}
