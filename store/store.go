// Package store provides the key-value persistence injected into every
// relaylink component. Components never touch the filesystem directly; they
// Load and Save JSON-encodable records under fixed keys.
//
// Two implementations are provided: MemoryStore for tests and embedding, and
// FileStore, which writes one JSON file per key with atomic rename, holds an
// inter-process lock while a caller mutates state, and can encrypt records at
// rest.
package store

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrNotFound is returned by Load when no record exists under the key.
var ErrNotFound = errors.New("store: record not found")

// ErrInvalidKey is returned for record keys outside [a-z0-9_-].
var ErrInvalidKey = errors.New("store: invalid record key")

// Store loads and saves JSON-encodable records by key.
type Store interface {
	// Load decodes the record stored under key into v. It returns ErrNotFound
	// when the record does not exist.
	Load(key string, v any) error
	// Save replaces the record stored under key with v.
	Save(key string, v any) error
}

// Locker is implemented by stores that can serialize whole read-modify-write
// sequences, possibly across processes.
type Locker interface {
	Lock() (unlock func(), err error)
}

// WithLock runs fn while holding the store's lock when the store supports
// locking, and runs it directly otherwise. Calls must not be nested.
func WithLock(s Store, fn func() error) error {
	l, ok := s.(Locker)
	if !ok {
		return fn()
	}
	unlock, err := l.Lock()
	if err != nil {
		return fmt.Errorf("acquire store lock: %w", err)
	}
	defer unlock()
	return fn()
}

// LoadOrDefault loads key into v and treats a missing record as success,
// leaving v untouched.
func LoadOrDefault(s Store, key string, v any) error {
	err := s.Load(key, v)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

var keyPattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

func validateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
