package db

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// Store is the key-value storage abstraction the ledger persists through.
type Store interface {
	// Put stores a key-value pair.
	Put(key, value []byte) error

	// Get retrieves a value by key, or ErrNotFound.
	Get(key []byte) ([]byte, error)

	// Delete removes a key-value pair.
	Delete(key []byte) error

	// Has checks if a key exists.
	Has(key []byte) (bool, error)

	// NewIterator returns an iterator over the half-open key range
	// [start, end). A nil bound means unbounded on that side.
	NewIterator(start, end []byte) (Iterator, error)

	// NewBatch returns a batch for atomic updates.
	NewBatch() Batch

	// Close releases the underlying resources.
	Close() error
}

// Iterator walks a key range in ascending key order.
type Iterator interface {
	// Next advances the iterator and reports whether a pair is available.
	Next() bool

	// Key returns the current key.
	Key() []byte

	// Value returns the current value.
	Value() []byte

	// Error returns any accumulated error.
	Error() error

	// Close releases associated resources.
	Close() error
}

// Batch accumulates writes that are applied atomically.
type Batch interface {
	// Put adds a key-value pair to the batch.
	Put(key, value []byte) error

	// Delete adds a key deletion to the batch.
	Delete(key []byte) error

	// Write applies the batch to the store.
	Write() error

	// Reset clears the batch.
	Reset()
}

// Backend names a storage engine.
type Backend string

const (
	// LevelDB backend.
	LevelDB Backend = "leveldb"

	// Pebble backend.
	Pebble Backend = "pebble"

	// Memory backend, non-persistent.
	Memory Backend = "memory"
)

// Open opens a store of the given backend at path. The memory backend
// ignores the path.
func Open(backend Backend, path string) (Store, error) {
	switch backend {
	case LevelDB:
		return openLevelDB(path)
	case Pebble:
		return openPebble(path)
	case Memory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported db backend %q", backend)
	}
}
