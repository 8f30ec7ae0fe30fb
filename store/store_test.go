package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	enc, err := NewEncryptedFileStore(t.TempDir(), []byte("correct horse"))
	require.NoError(t, err)
	return map[string]Store{
		"memory":    NewMemoryStore(),
		"file":      fs,
		"encrypted": enc,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var out record
			assert.ErrorIs(t, s.Load("peers", &out), ErrNotFound)

			in := record{Name: "alice", Items: []string{"a", "b"}}
			require.NoError(t, s.Save("peers", in))
			require.NoError(t, s.Load("peers", &out))
			assert.Equal(t, in, out)

			in.Items = append(in.Items, "c")
			require.NoError(t, s.Save("peers", in))
			require.NoError(t, s.Load("peers", &out))
			assert.Equal(t, []string{"a", "b", "c"}, out.Items)
		})
	}
}

func TestStoreRejectsBadKeys(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"", "../escape", "UPPER", "a/b"} {
				assert.ErrorIs(t, s.Save(key, record{}), ErrInvalidKey, key)
			}
		})
	}
}

func TestMemoryStoreCopiesRecords(t *testing.T) {
	s := NewMemoryStore()
	in := record{Items: []string{"a"}}
	require.NoError(t, s.Save("r", in))
	in.Items[0] = "mutated"

	var out record
	require.NoError(t, s.Load("r", &out))
	assert.Equal(t, "a", out.Items[0])
}

func TestLoadOrDefault(t *testing.T) {
	s := NewMemoryStore()
	out := record{Name: "default"}
	require.NoError(t, LoadOrDefault(s, "missing", &out))
	assert.Equal(t, "default", out.Name)
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Save("identity", record{Name: "x"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
	info, err := os.Stat(filepath.Join(dir, "identity.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEncryptedFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewEncryptedFileStore(dir, []byte("secret"))
	require.NoError(t, err)
	require.NoError(t, s.Save("identity", record{Name: "plaintext-marker"}))

	raw, err := os.ReadFile(filepath.Join(dir, "identity.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "plaintext-marker")

	t.Run("reopen with same passphrase", func(t *testing.T) {
		again, err := NewEncryptedFileStore(dir, []byte("secret"))
		require.NoError(t, err)
		var out record
		require.NoError(t, again.Load("identity", &out))
		assert.Equal(t, "plaintext-marker", out.Name)
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		wrong, err := NewEncryptedFileStore(dir, []byte("guess"))
		require.NoError(t, err)
		var out record
		assert.ErrorIs(t, wrong.Load("identity", &out), ErrWrongPassphrase)
	})

	t.Run("empty passphrase", func(t *testing.T) {
		_, err := NewEncryptedFileStore(t.TempDir(), nil)
		assert.Error(t, err)
	})

	t.Run("passphrase is wiped", func(t *testing.T) {
		pass := []byte("wipe me")
		_, err := NewEncryptedFileStore(t.TempDir(), pass)
		require.NoError(t, err)
		assert.Equal(t, make([]byte, len(pass)), pass)
	})
}

func TestWithLockSerializes(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for name, s := range map[string]Store{"memory": NewMemoryStore(), "file": fs} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Save("counter", 0))

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := WithLock(s, func() error {
						var n int
						if err := s.Load("counter", &n); err != nil {
							return err
						}
						return s.Save("counter", n+1)
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			var n int
			require.NoError(t, s.Load("counter", &n))
			assert.Equal(t, 20, n)
		})
	}
}

func TestWithLockWithoutLocker(t *testing.T) {
	called := false
	err := WithLock(struct{ Store }{NewMemoryStore()}, func() error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}
