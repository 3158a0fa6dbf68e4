package store

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/driftlabs/driftroute/internal/strategy"
)

// snapshotKey is versioned so a future snapshot format can coexist with old
// databases instead of colliding with them.
const snapshotKey = "qtable/snapshot/v1"

// BadgerStore keeps the QTable snapshot in an embedded BadgerDB. Embedded
// storage fits here: the snapshot is service infrastructure read once at
// startup and written at checkpoints, with no availability dependency.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) the database at dir. An empty dir with
// inMemory set runs fully in memory, which tests use.
func NewBadgerStore(dir string, inMemory bool) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithInMemory(inMemory)
	if inMemory {
		opts.Dir = ""
		opts.ValueDir = ""
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// SaveSnapshot gob-encodes the snapshot and writes it under the versioned key.
func (s *BadgerStore) SaveSnapshot(snap strategy.Snapshot) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(snapshotKey), buf.Bytes())
	})
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads and decodes the stored snapshot. A missing key is a
// normal first-start condition, not an error.
func (s *BadgerStore) LoadSnapshot() (strategy.Snapshot, bool, error) {
	var snap strategy.Snapshot
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := gob.NewDecoder(bytes.NewReader(val)).Decode(&snap); err != nil {
				return fmt.Errorf("decode snapshot: %w", err)
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return strategy.Snapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}
	return snap, found, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
