package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Artifacts implements ports.ArtifactStore under a root directory.
// Paths are slash-separated and relative to the root.
type Artifacts struct {
	Root string
}

// NewArtifacts creates a store rooted at root.
func NewArtifacts(root string) *Artifacts {
	return &Artifacts{Root: root}
}

func (a *Artifacts) resolve(p string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(p))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact path %q escapes the store root", p)
	}
	return filepath.Join(a.Root, clean), nil
}

// Write stores data at p, overwriting.
func (a *Artifacts) Write(ctx context.Context, p string, data []byte) error {
	full, err := a.resolve(p)
	if err != nil {
		return err
	}
	return writeAtomic(full, data)
}

// Read returns the artifact at p.
func (a *Artifacts) Read(ctx context.Context, p string) ([]byte, error) {
	full, err := a.resolve(p)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

// Exists reports whether dir exists.
func (a *Artifacts) Exists(ctx context.Context, dir string) (bool, error) {
	full, err := a.resolve(dir)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// Ensure creates dir.
func (a *Artifacts) Ensure(ctx context.Context, dir string) error {
	full, err := a.resolve(dir)
	if err != nil {
		return err
	}
	return os.MkdirAll(full, 0o755)
}
