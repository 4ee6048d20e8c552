// Package metastore provides dataset metadata store adapters.
// Clean Architecture: Adapters implementing ports.MetaStore.
package metastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/0xcro3dile/datachat-go/internal/domain/entities"
)

// DefaultFileName is the metadata file created inside the data directory.
const DefaultFileName = "session_meta.json"

// FileStore keeps every session's metadata in one JSON object on disk.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file-backed store. dir is created if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "./data"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &FileStore{path: filepath.Join(dir, DefaultFileName)}, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) read() (map[string]entities.DatasetMeta, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]entities.DatasetMeta{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}
	all := map[string]entities.DatasetMeta{}
	if len(data) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.path, err)
	}
	return all, nil
}

// write replaces the file via temp file + rename so readers never see a
// partial document.
func (s *FileStore) write(all map[string]entities.DatasetMeta) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session_meta-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}

// Get returns the metadata stored for session.
func (s *FileStore) Get(ctx context.Context, session string) (entities.DatasetMeta, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read()
	if err != nil {
		return entities.DatasetMeta{}, false, err
	}
	meta, ok := all[session]
	return meta, ok, nil
}

// Put stores meta for session, replacing any previous entry.
func (s *FileStore) Put(ctx context.Context, session string, meta entities.DatasetMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read()
	if err != nil {
		return err
	}
	all[session] = meta
	return s.write(all)
}

// Delete removes session. Deleting an unknown session is not an error.
func (s *FileStore) Delete(ctx context.Context, session string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := all[session]; !ok {
		return nil
	}
	delete(all, session)
	return s.write(all)
}
