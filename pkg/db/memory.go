package db

import (
	"bytes"
	"sort"
	"sync"
)

// memoryStore is an in-memory implementation of Store, used for ephemeral
// nodes and in tests.
type memoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty non-persistent store.
func NewMemory() Store {
	return &memoryStore{data: make(map[string][]byte)}
}

func (s *memoryStore) Put(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (s *memoryStore) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (s *memoryStore) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, string(key))
	return nil
}

func (s *memoryStore) Has(key []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.data[string(key)]
	return ok, nil
}

func (s *memoryStore) NewIterator(start, end []byte) (Iterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for key := range s.data {
		k := []byte(key)
		if (start == nil || bytes.Compare(k, start) >= 0) &&
			(end == nil || bytes.Compare(k, end) < 0) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	return &memoryIterator{store: s, keys: keys, pos: -1}, nil
}

func (s *memoryStore) NewBatch() Batch {
	return &memoryBatch{
		store:   s,
		puts:    make(map[string][]byte),
		deletes: make(map[string]bool),
	}
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}

type memoryIterator struct {
	store *memoryStore
	keys  []string
	pos   int
}

func (it *memoryIterator) Next() bool {
	it.pos++
	return it.pos < len(it.keys)
}

func (it *memoryIterator) Key() []byte {
	if it.pos < 0 || it.pos >= len(it.keys) {
		return nil
	}
	return []byte(it.keys[it.pos])
}

func (it *memoryIterator) Value() []byte {
	if it.pos < 0 || it.pos >= len(it.keys) {
		return nil
	}

	it.store.mu.RLock()
	defer it.store.mu.RUnlock()

	return append([]byte(nil), it.store.data[it.keys[it.pos]]...)
}

func (it *memoryIterator) Error() error {
	return nil
}

func (it *memoryIterator) Close() error {
	return nil
}

type memoryBatch struct {
	store   *memoryStore
	puts    map[string][]byte
	deletes map[string]bool
}

func (b *memoryBatch) Put(key, value []byte) error {
	b.puts[string(key)] = append([]byte(nil), value...)
	delete(b.deletes, string(key))
	return nil
}

func (b *memoryBatch) Delete(key []byte) error {
	b.deletes[string(key)] = true
	delete(b.puts, string(key))
	return nil
}

func (b *memoryBatch) Write() error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	for key := range b.deletes {
		delete(b.store.data, key)
	}
	for key, value := range b.puts {
		b.store.data[key] = append([]byte(nil), value...)
	}
	return nil
}

func (b *memoryBatch) Reset() {
	b.puts = make(map[string][]byte)
	b.deletes = make(map[string]bool)
}
