package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// KeySize is the size of Curve25519 keys and derived shared secrets.
const KeySize = 32

// Key is a Curve25519 public or private key, or a derived shared secret.
// It encodes as standard base64 in local records and as hex on the wire.
type Key [KeySize]byte

// Hex returns the lowercase hex encoding used by the relay.
func (k Key) Hex() string {
	return hex.EncodeToString(k[:])
}

// IsZero reports whether every byte of the key is zero.
func (k Key) IsZero() bool {
	return isZeroKey(k)
}

// MarshalText implements encoding.TextMarshaler.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(base64.StdEncoding.EncodeToString(k[:])), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(text []byte) error {
	raw, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(raw) != KeySize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(raw), KeySize)
	}
	copy(k[:], raw)
	return nil
}

// KeyFromHex parses a hex encoded 32-byte key.
func KeyFromHex(s string) (Key, error) {
	var k Key
	raw, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(raw) != KeySize {
		return k, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(raw), KeySize)
	}
	copy(k[:], raw)
	return k, nil
}

// SigningKeyPair is the Ed25519 identity key pair.
type SigningKeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// ExchangeKeyPair is the Curve25519 key pair used for shared-secret derivation.
type ExchangeKeyPair struct {
	Public  Key
	Private Key
}

// GenerateIdentity creates a fresh Ed25519 signing key pair from crypto/rand.
func GenerateIdentity() (*SigningKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return &SigningKeyPair{Public: pub, Private: priv}, nil
}

// SigningKeyPairFromSeed rebuilds a signing key pair from its 32-byte seed.
func SigningKeyPairFromSeed(seed []byte) (*SigningKeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed is %d bytes, want %d", ErrInvalidKey, len(seed), ed25519.SeedSize)
	}
	var s Key
	copy(s[:], seed)
	if isZeroKey(s) {
		return nil, fmt.Errorf("%w: all-zero seed", ErrInvalidKey)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &SigningKeyPair{
		Public:  priv.Public().(ed25519.PublicKey),
		Private: priv,
	}, nil
}

// DeriveExchangeKeys derives the exchange key pair from the first 32 bytes of
// an Ed25519 private key by scalar multiplication against the base point.
// The same signing key always yields the same exchange keys.
func DeriveExchangeKeys(signingPrivate ed25519.PrivateKey) (*ExchangeKeyPair, error) {
	if len(signingPrivate) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: signing key is %d bytes, want %d",
			ErrInvalidKey, len(signingPrivate), ed25519.PrivateKeySize)
	}

	var pair ExchangeKeyPair
	copy(pair.Private[:], signingPrivate[:KeySize])

	pub, err := curve25519.X25519(pair.Private[:], curve25519.Basepoint)
	if err != nil {
		_ = WipeExchangeKeyPair(&pair)
		return nil, fmt.Errorf("derive exchange key: %w", err)
	}
	copy(pair.Public[:], pub)

	return &pair, nil
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key [KeySize]byte) bool {
	var acc byte
	for _, b := range key {
		acc |= b
	}
	return acc == 0
}
