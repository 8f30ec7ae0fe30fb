package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// NonceSize is the size of a secretbox nonce.
const NonceSize = 24

// Nonce is a 24-byte value used for encryption.
type Nonce [NonceSize]byte

// String returns the standard base64 encoding used on the wire.
func (n Nonce) String() string {
	return base64.StdEncoding.EncodeToString(n[:])
}

// NonceFromString parses a base64 encoded nonce.
func NonceFromString(s string) (Nonce, error) {
	var n Nonce
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return n, fmt.Errorf("invalid nonce: %w", err)
	}
	if len(raw) != NonceSize {
		return n, fmt.Errorf("invalid nonce: got %d bytes, want %d", len(raw), NonceSize)
	}
	copy(n[:], raw)
	return n, nil
}

// GenerateNonce creates a cryptographically secure random nonce.
func GenerateNonce() (Nonce, error) {
	var nonce Nonce
	if _, err := rand.Read(nonce[:]); err != nil {
		return Nonce{}, err
	}
	return nonce, nil
}

// MaxMessageSize bounds a single plaintext (1MB).
const MaxMessageSize = 1024 * 1024

// Encrypt serializes plaintext as JSON and seals it under secret with a fresh
// random nonce.
func Encrypt(plaintext any, secret Key) (Nonce, []byte, error) {
	data, err := json.Marshal(plaintext)
	if err != nil {
		return Nonce{}, nil, fmt.Errorf("marshal plaintext: %w", err)
	}
	return EncryptBytes(data, secret)
}

// EncryptBytes seals message under secret using XSalsa20-Poly1305. Every call
// draws a new nonce; nonces are never reused under a key.
func EncryptBytes(message []byte, secret Key) (Nonce, []byte, error) {
	if len(message) == 0 {
		return Nonce{}, nil, errors.New("empty message")
	}
	if len(message) > MaxMessageSize {
		return Nonce{}, nil, errors.New("message too large")
	}

	nonce, err := GenerateNonce()
	if err != nil {
		return Nonce{}, nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := secretbox.Seal(nil, message, (*[NonceSize]byte)(&nonce), (*[KeySize]byte)(&secret))
	return nonce, out, nil
}
