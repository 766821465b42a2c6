package runstate

import (
	"sync"

	"github.com/ethereum-optimism/infra/op-conformance/types"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps entries in process memory only.
type MemoryStore struct {
	mu      sync.Mutex
	entries types.RunStateEntries
}

// NewMemory creates an in-memory store seeded with a copy of initial.
func NewMemory(initial types.RunStateEntries) *MemoryStore {
	entries := initial.Clone()
	if entries == nil {
		entries = make(types.RunStateEntries)
	}
	return &MemoryStore{entries: entries}
}

func (s *MemoryStore) Entries() types.RunStateEntries {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Clone()
}

func (s *MemoryStore) Update(id string, status types.TestStatus) error {
	if err := status.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = status
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
