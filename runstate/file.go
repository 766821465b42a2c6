package runstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum-optimism/infra/op-conformance/types"
)

var _ Store = (*FileStore)(nil)

// FileStore keeps the full entry set in one JSON file. Every update rewrites
// the file through a synced temp file and an atomic rename, so a crash leaves
// either the old or the new set on disk.
type FileStore struct {
	path string

	mu      sync.Mutex
	entries types.RunStateEntries
}

// OpenFile loads the entries at path, starting empty if the file is missing.
func OpenFile(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("run state file path is required")
	}
	entries := make(types.RunStateEntries)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read run state: %w", err)
	case len(data) > 0:
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("decode run state %s: %w", path, err)
		}
	}
	return &FileStore{path: path, entries: entries}, nil
}

// Entries implements the Store interface
func (s *FileStore) Entries() types.RunStateEntries {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Clone()
}

// Update implements the Store interface
func (s *FileStore) Update(id string, status types.TestStatus) error {
	if err := status.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.entries.Clone()
	next[id] = status
	if err := writeEntriesFile(s.path, next); err != nil {
		return err
	}
	s.entries = next
	return nil
}

// Close implements the Store interface
func (s *FileStore) Close() error {
	return nil
}

func writeEntriesFile(path string, entries types.RunStateEntries) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run state: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create run state dir: %w", err)
	}
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create temp run state: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp run state: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync temp run state: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp run state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename run state: %w", err)
	}
	return syncDir(dir)
}

// syncDir makes a preceding rename in dir durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open run state dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync run state dir: %w", err)
	}
	return nil
}
