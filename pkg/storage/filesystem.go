package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FilesystemStore implements Store using one JSON document per table on
// the local filesystem.
type FilesystemStore struct {
	rootDir string
}

// NewFilesystemStore creates a new filesystem-based snapshot store
func NewFilesystemStore(rootDir string) (*FilesystemStore, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &FilesystemStore{rootDir: rootDir}, nil
}

// Load implements Store.Load
func (s *FilesystemStore) Load(ctx context.Context, table string) ([]byte, error) {
	data, err := os.ReadFile(s.tablePath(table))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", table, err)
	}
	return data, nil
}

// Save implements Store.Save
func (s *FilesystemStore) Save(ctx context.Context, table string, data []byte) error {
	if err := os.WriteFile(s.tablePath(table), data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", table, err)
	}
	return nil
}

// Close implements Store.Close
func (s *FilesystemStore) Close() error {
	return nil
}

func (s *FilesystemStore) tablePath(table string) string {
	return filepath.Join(s.rootDir, table+".json")
}
