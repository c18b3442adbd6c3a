package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/mensetsu/internal/models"
)

// DiskBlobStore implements BlobStore on the local filesystem. Keys map to paths under root.
type DiskBlobStore struct {
	root string
}

// NewDiskBlobStore creates the root directory if needed.
func NewDiskBlobStore(root string) (*DiskBlobStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create blob directory: %w", models.ErrStorage, err)
	}
	return &DiskBlobStore{root: root}, nil
}

// Root returns the directory blobs are written under.
func (s *DiskBlobStore) Root() string {
	return s.root
}

func (s *DiskBlobStore) path(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty blob key", models.ErrStorage)
	}
	p := filepath.Join(s.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: blob key escapes root: %s", models.ErrStorage, key)
	}
	return p, nil
}

// Put writes data under key, replacing any existing blob.
func (s *DiskBlobStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrStorage, err)
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("%w: failed to create blob directory: %w", models.ErrStorage, err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("%w: failed to write blob: %w", models.ErrStorage, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: failed to write blob: %w", models.ErrStorage, err)
	}
	return nil
}

// Get reads the blob stored under key.
func (s *DiskBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStorage, err)
	}
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %w: blob %s", models.ErrStorage, models.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read blob: %w", models.ErrStorage, err)
	}
	return data, nil
}

// Delete removes the blob under key. Deleting a missing blob is not an error.
func (s *DiskBlobStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: failed to delete blob: %w", models.ErrStorage, err)
	}
	return nil
}
