package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/opd-ai/relaylink/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// PBKDF2Iterations is the number of iterations for key derivation.
	PBKDF2Iterations = 100000
	// EncryptionVersion is the current at-rest format version.
	EncryptionVersion = 1
	// SaltSize is the size of the salt for PBKDF2.
	SaltSize = 32

	saltFileName = ".salt"
)

// ErrWrongPassphrase is returned when an encrypted record fails to
// authenticate, which almost always means the passphrase is wrong.
var ErrWrongPassphrase = errors.New("store: wrong passphrase or corrupted record")

// recordCipher seals records with AES-256-GCM under a PBKDF2-derived key.
// Format: [version:2][nonce:12][ciphertext+tag].
type recordCipher struct {
	key [32]byte
}

func newRecordCipher(dir string, passphrase []byte) (*recordCipher, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("passphrase cannot be empty")
	}

	salt, err := loadOrGenerateSalt(filepath.Join(dir, saltFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize salt: %w", err)
	}

	derived := pbkdf2.Key(passphrase, salt, PBKDF2Iterations, 32, sha256.New)
	c := &recordCipher{}
	copy(c.key[:], derived)

	crypto.ZeroBytes(derived)
	crypto.ZeroBytes(passphrase)

	return c, nil
}

func loadOrGenerateSalt(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != SaltSize {
			return nil, fmt.Errorf("invalid salt file size: got %d, want %d", len(data), SaltSize)
		}
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read salt file: %w", err)
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, fmt.Errorf("failed to save salt: %w", err)
	}
	return salt, nil
}

func (c *recordCipher) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func (c *recordCipher) seal(plaintext []byte) ([]byte, error) {
	gcm, err := c.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 2, 2+len(nonce)+len(plaintext)+gcm.Overhead())
	binary.BigEndian.PutUint16(out, EncryptionVersion)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

func (c *recordCipher) open(data []byte) ([]byte, error) {
	gcm, err := c.aead()
	if err != nil {
		return nil, err
	}

	if len(data) < 2+gcm.NonceSize()+gcm.Overhead() {
		return nil, fmt.Errorf("record too short: %d bytes", len(data))
	}
	if v := binary.BigEndian.Uint16(data[:2]); v != EncryptionVersion {
		return nil, fmt.Errorf("unsupported encryption version: %d (expected %d)", v, EncryptionVersion)
	}

	nonce := data[2 : 2+gcm.NonceSize()]
	plaintext, err := gcm.Open(nil, nonce, data[2+gcm.NonceSize():], nil)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plaintext, nil
}

func (c *recordCipher) wipe() {
	crypto.ZeroBytes(c.key[:])
}
