package store

import (
	"sync"

	"github.com/driftlabs/driftroute/internal/strategy"
)

// MemoryStore holds the snapshot in process memory. Useful for tests and for
// deployments that deliberately run without durable learning state.
type MemoryStore struct {
	mu    sync.Mutex
	snap  strategy.Snapshot
	saved bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SaveSnapshot keeps the snapshot.
func (s *MemoryStore) SaveSnapshot(snap strategy.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.saved = true
	return nil
}

// LoadSnapshot returns the last saved snapshot, if any.
func (s *MemoryStore) LoadSnapshot() (strategy.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, s.saved, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
