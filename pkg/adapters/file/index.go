package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/arbor/pkg/domain"
)

// IndexStore implements ports.IndexStore with one JSON file per server.
type IndexStore struct {
	BasePath string
}

// NewIndexStore creates a store under basePath, ".arbor/index" if empty.
func NewIndexStore(basePath string) *IndexStore {
	if basePath == "" {
		basePath = filepath.Join(".arbor", "index")
	}
	return &IndexStore{BasePath: basePath}
}

func (s *IndexStore) path(server string) string {
	return filepath.Join(s.BasePath, sanitizeServer(server)+".json")
}

// Save replaces the index of server atomically: temp file, fsync, rename.
func (s *IndexStore) Save(ctx context.Context, server string, entries []domain.IndexEntry) error {
	if server == "" {
		return fmt.Errorf("server cannot be empty")
	}
	if entries == nil {
		entries = []domain.IndexEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	return writeAtomic(s.path(server), data)
}

// Load returns the index of server.
func (s *IndexStore) Load(ctx context.Context, server string) ([]domain.IndexEntry, error) {
	data, err := os.ReadFile(s.path(server))
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrIndexNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	var entries []domain.IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal index: %w", err)
	}
	return entries, nil
}

func sanitizeServer(server string) string {
	out := []rune(server)
	for i, r := range out {
		if r == '/' || r == '\\' || r == ':' || r == os.PathSeparator {
			out[i] = '_'
		}
	}
	return string(out)
}

// writeAtomic writes data next to dest and renames it into place.
func writeAtomic(dest string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to ensure directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "tmp-"+filepath.Base(dest)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
