package store

import (
	"github.com/driftlabs/driftroute/internal/strategy"
)

// Store persists the learning state across restarts. Implementations must be
// safe for concurrent use.
type Store interface {
	// SaveSnapshot persists the snapshot, replacing any previous one.
	SaveSnapshot(snap strategy.Snapshot) error
	// LoadSnapshot returns the stored snapshot. The second result is false
	// when no snapshot has been saved yet.
	LoadSnapshot() (strategy.Snapshot, bool, error)
	// Close releases the underlying storage.
	Close() error
}
