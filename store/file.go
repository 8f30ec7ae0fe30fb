package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
)

const lockFileName = ".lock"

// FileStore persists each record as <dir>/<key>.json. Writes go to a
// temporary file that is renamed over the target, so readers never observe a
// partial record. Lock takes an flock on <dir>/.lock so concurrent processes
// sharing the directory serialize their read-modify-write cycles.
type FileStore struct {
	dir    string
	mu     sync.Mutex
	flock  *flock.Flock
	cipher *recordCipher
}

// NewFileStore creates the directory if needed and returns a plaintext store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileStore{
		dir:   dir,
		flock: flock.New(filepath.Join(dir, lockFileName)),
	}, nil
}

// NewEncryptedFileStore returns a store whose records are encrypted at rest
// with a key derived from passphrase. The passphrase slice is wiped.
func NewEncryptedFileStore(dir string, passphrase []byte) (*FileStore, error) {
	fs, err := NewFileStore(dir)
	if err != nil {
		return nil, err
	}
	c, err := newRecordCipher(dir, passphrase)
	if err != nil {
		return nil, err
	}
	fs.cipher = c
	return fs, nil
}

// Dir returns the directory backing the store.
func (f *FileStore) Dir() string { return f.dir }

// Load implements Store.
func (f *FileStore) Load(key string, v any) error {
	if err := validateKey(key); err != nil {
		return err
	}
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if f.cipher != nil {
		if data, err = f.cipher.open(data); err != nil {
			return fmt.Errorf("failed to decrypt %s: %w", key, err)
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// Save implements Store.
func (f *FileStore) Save(key string, v any) error {
	if err := validateKey(key); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if f.cipher != nil {
		if data, err = f.cipher.seal(data); err != nil {
			return fmt.Errorf("failed to encrypt %s: %w", key, err)
		}
	}
	return writeAtomic(f.dir, key+".json", data)
}

// Lock implements Locker. It serializes goroutines in this process and
// processes sharing the directory.
func (f *FileStore) Lock() (func(), error) {
	f.mu.Lock()
	if err := f.flock.Lock(); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	return func() {
		if err := f.flock.Unlock(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "FileStore.Lock",
				"dir":      f.dir,
				"error":    err.Error(),
			}).Warn("Failed to release store lock")
		}
		f.mu.Unlock()
	}, nil
}

// Close wipes any encryption key held in memory.
func (f *FileStore) Close() error {
	if f.cipher != nil {
		f.cipher.wipe()
	}
	return nil
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

// writeAtomic writes data to a temporary file and renames it into place.
func writeAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}
