package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrS3NotConfigured is returned when S3 operations are attempted
// without proper configuration.
var ErrS3NotConfigured = errors.New("S3 storage is not configured")

// LocalStorage implements Storage using local disk only. Scratch
// directories live under a configurable root; uploads are unsupported
// unless wrapped by S3Storage.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates a LocalStorage rooted at root. If root is
// empty, a directory under os.TempDir() is used. The root is created
// if it doesn't exist.
func NewLocalStorage(root string) (*LocalStorage, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "sheetgen")
	}

	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}

	return &LocalStorage{root: root}, nil
}

// Root returns the scratch root directory.
func (s *LocalStorage) Root() string {
	return s.root
}

// CreateScratch creates a uniquely named scratch directory for one
// video run. The random suffix keeps concurrent runs over identically
// named videos from colliding.
func (s *LocalStorage) CreateScratch(name string) (string, error) {
	dir := filepath.Join(s.root, fmt.Sprintf(".tmp_%s_%s", sanitize(name), uuid.NewString()[:8]))
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create scratch directory: %w", err)
	}
	return dir, nil
}

// RemoveScratch deletes a scratch directory and everything in it.
func (s *LocalStorage) RemoveScratch(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove scratch directory %s: %w", path, err)
	}
	return nil
}

// UploadSheet is not supported by LocalStorage.
func (s *LocalStorage) UploadSheet(_ context.Context, _ string, _ io.Reader) (string, error) {
	return "", ErrS3NotConfigured
}

// sanitize strips path separators from a scratch name hint.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' {
			return '_'
		}
		return r
	}, name)
}
