package lifecycle

import (
	"fmt"

	"github.com/GoCodeAlone/hotswap/snapshot"
)

// StatusStore persists the full status map.
type StatusStore interface {
	Load() ([]Status, error)
	Save(statuses []Status) error
}

// FileStatusStore keeps statuses in a JSON array on disk, rewritten
// atomically on every save.
type FileStatusStore struct {
	file *snapshot.File
}

// NewFileStatusStore creates a store backed by path.
func NewFileStatusStore(path string) (*FileStatusStore, error) {
	f, err := snapshot.NewFile(path)
	if err != nil {
		return nil, fmt.Errorf("status store: %w", err)
	}
	return &FileStatusStore{file: f}, nil
}

// Path returns the snapshot path.
func (s *FileStatusStore) Path() string { return s.file.Path() }

// Load returns the stored statuses, or nil when no snapshot exists yet.
func (s *FileStatusStore) Load() ([]Status, error) {
	var statuses []Status
	if _, err := s.file.Read(&statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// Save replaces the snapshot with statuses.
func (s *FileStatusStore) Save(statuses []Status) error {
	if statuses == nil {
		statuses = []Status{}
	}
	return s.file.Write(statuses)
}

// ReadSnapshot loads a status snapshot without constructing a Manager.
func ReadSnapshot(path string) ([]Status, error) {
	store, err := NewFileStatusStore(path)
	if err != nil {
		return nil, err
	}
	return store.Load()
}
