package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/ironsheep/artgrid/internal/errors"
	"github.com/ironsheep/artgrid/internal/layout"
)

// FileStore keeps each layout record as <dir>/<id>.json.
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		return nil, errors.Input("layout store directory is required")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, errors.Wrap(errors.CodeResourceUnavailable, err, "create layout store %s", baseDir)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) layoutPath(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || id == "." || id == ".." {
		return "", errors.Input("invalid layout id %q", id)
	}
	return filepath.Join(s.baseDir, id+".json"), nil
}

func (s *FileStore) FindLayout(ctx context.Context, id string) (*layout.Flat, error) {
	path, err := s.layoutPath(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Unavailable(err, "read layout %s", id)
	}

	var f layout.Flat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(errors.CodeSerialization, err, "parse layout %s", id)
	}
	return &f, nil
}

func (s *FileStore) SaveLayout(ctx context.Context, f *layout.Flat) error {
	path, err := s.layoutPath(f.ID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return errors.Wrap(errors.CodeSerialization, err, "marshal layout %s", f.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(errors.CodeInternal, err, "write layout %s", f.ID)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// Path returns the directory holding the records.
func (s *FileStore) Path() string {
	return s.baseDir
}

var _ Store = (*FileStore)(nil)
