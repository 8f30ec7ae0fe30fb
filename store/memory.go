package store

import (
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore keeps records as JSON in memory. Records are copied on every
// Load and Save, so callers never share mutable state through the store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte

	lockMu sync.Mutex
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

// Load implements Store.
func (m *MemoryStore) Load(key string, v any) error {
	if err := validateKey(key); err != nil {
		return err
	}
	m.mu.RLock()
	data, ok := m.records[key]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Save implements Store.
func (m *MemoryStore) Save(key string, v any) error {
	if err := validateKey(key); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	m.mu.Lock()
	m.records[key] = data
	m.mu.Unlock()
	return nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (m *MemoryStore) Delete(key string) {
	m.mu.Lock()
	delete(m.records, key)
	m.mu.Unlock()
}

// Lock implements Locker for callers in the same process.
func (m *MemoryStore) Lock() (func(), error) {
	m.lockMu.Lock()
	return m.lockMu.Unlock, nil
}
