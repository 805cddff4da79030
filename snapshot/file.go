// Package snapshot writes JSON documents atomically to disk.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// ErrPathEmpty is returned when a File has no path configured.
var ErrPathEmpty = errors.New("snapshot path cannot be empty")

// File is a JSON document on disk. Writes go to a temporary file in the
// same directory which is synced and then renamed over the target, so a
// crash never leaves a partially written document behind.
type File struct {
	path string
	perm fs.FileMode
	mu   sync.Mutex
}

// NewFile creates a File for path.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, ErrPathEmpty
	}
	return &File{path: path, perm: 0o644}, nil
}

// Path returns the target path.
func (f *File) Path() string { return f.path }

// Write marshals v and atomically replaces the file contents.
func (f *File) Write(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}
	data = append(data, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("snapshot: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("snapshot: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("snapshot: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("snapshot: close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, f.perm); err != nil {
		cleanup()
		return fmt.Errorf("snapshot: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return fmt.Errorf("snapshot: rename temp file: %w", err)
	}

	// Best effort: persist the rename itself.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// Read unmarshals the file into v. It reports false when the file does
// not exist.
func (f *File) Read(v any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("snapshot: read: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("snapshot: decode %s: %w", f.path, err)
	}
	return true, nil
}
