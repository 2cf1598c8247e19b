package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FilesystemStorage stages uploads as files in one directory
type FilesystemStorage struct {
	dir string
}

// NewFilesystemStorage creates a storage rooted at dir, creating it if needed
func NewFilesystemStorage(dir string) (*FilesystemStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &FilesystemStorage{dir: dir}, nil
}

// Save writes data to a uniquely named file and returns its key
func (s *FilesystemStorage) Save(ctx context.Context, name string, data []byte) (string, error) {
	key := uuid.New().String() + "-" + sanitize(name)
	if err := os.WriteFile(filepath.Join(s.dir, key), data, 0o600); err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", name, err)
	}
	return key, nil
}

// Read returns the staged file's contents
func (s *FilesystemStorage) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, sanitize(key)))
	if err != nil {
		return nil, fmt.Errorf("failed to read staged file %s: %w", key, err)
	}
	return data, nil
}

// Remove deletes the staged file
func (s *FilesystemStorage) Remove(ctx context.Context, key string) error {
	if err := os.Remove(filepath.Join(s.dir, sanitize(key))); err != nil {
		return fmt.Errorf("failed to remove staged file %s: %w", key, err)
	}
	return nil
}

// sanitize strips path separators so keys cannot escape the staging directory
func sanitize(name string) string {
	name = filepath.Base(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
