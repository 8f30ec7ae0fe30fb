// Package identity manages the local node's long-lived key material.
//
// Only the Ed25519 signing key pair carries entropy; the Curve25519 exchange
// pair is re-derived from it on every load and checked against the stored
// copy. The private halves never leave the Store.
package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opd-ai/relaylink/crypto"
	"github.com/opd-ai/relaylink/limits"
	"github.com/opd-ai/relaylink/store"
	"github.com/sirupsen/logrus"
	"github.com/tyler-smith/go-bip39"
)

// StoreKey is the record key the identity is persisted under.
const StoreKey = "identity"

var (
	// ErrConfigurationMissing means no local identity has been created yet.
	ErrConfigurationMissing = errors.New("no local identity: run init first")
	// ErrAlreadyInitialized is returned by Create when an identity exists.
	ErrAlreadyInitialized = errors.New("identity already exists")
	// ErrCorruptIdentity means the stored record is internally inconsistent.
	ErrCorruptIdentity = errors.New("stored identity is corrupt")
	// ErrInvalidMnemonic is returned for backup phrases that fail the bip39 checksum.
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
)

// exchangeProofPrefix domain-separates exchange proofs from other signatures.
const exchangeProofPrefix = "xkey:"

// Identity is the local node's signing and exchange key material.
type Identity struct {
	Name            string             `json:"name"`
	SigningPublic   ed25519.PublicKey  `json:"public_key"`
	SigningPrivate  ed25519.PrivateKey `json:"private_key"`
	ExchangePublic  crypto.Key         `json:"exchange_public_key"`
	ExchangePrivate crypto.Key         `json:"exchange_private_key"`
	CreatedAt       time.Time          `json:"created_at"`
}

// New generates a fresh identity.
func New(name string, now time.Time) (*Identity, error) {
	signing, err := crypto.GenerateIdentity()
	if err != nil {
		return nil, err
	}
	return assemble(name, signing, now)
}

// FromSeed rebuilds an identity from a 32-byte Ed25519 seed.
func FromSeed(name string, seed []byte, createdAt time.Time) (*Identity, error) {
	signing, err := crypto.SigningKeyPairFromSeed(seed)
	if err != nil {
		return nil, err
	}
	return assemble(name, signing, createdAt)
}

func assemble(name string, signing *crypto.SigningKeyPair, createdAt time.Time) (*Identity, error) {
	name = strings.TrimSpace(name)
	if err := limits.ValidateDisplayName(name); err != nil {
		_ = crypto.WipeSigningKeyPair(signing)
		return nil, err
	}
	exchange, err := crypto.DeriveExchangeKeys(signing.Private)
	if err != nil {
		_ = crypto.WipeSigningKeyPair(signing)
		return nil, err
	}
	// The identity holds its own copy of the exchange keys.
	defer crypto.WipeExchangeKeyPair(exchange)
	return &Identity{
		Name:            name,
		SigningPublic:   signing.Public,
		SigningPrivate:  signing.Private,
		ExchangePublic:  exchange.Public,
		ExchangePrivate: exchange.Private,
		CreatedAt:       createdAt.UTC(),
	}, nil
}

// Create generates an identity and saves it. It refuses to overwrite an
// existing one.
func Create(s store.Store, name string, now time.Time) (*Identity, error) {
	if _, err := Load(s); err == nil {
		return nil, ErrAlreadyInitialized
	} else if !errors.Is(err, ErrConfigurationMissing) {
		return nil, err
	}

	id, err := New(name, now)
	if err != nil {
		return nil, err
	}
	if err := id.Save(s); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":    "identity.Create",
		"name":        id.Name,
		"fingerprint": id.Fingerprint(),
	}).Info("Created local identity")
	return id, nil
}

// Load reads the identity from s. A missing record yields
// ErrConfigurationMissing.
func Load(s store.Store) (*Identity, error) {
	var id Identity
	if err := s.Load(StoreKey, &id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConfigurationMissing
		}
		return nil, fmt.Errorf("load identity: %w", err)
	}
	if err := id.check(); err != nil {
		return nil, err
	}
	return &id, nil
}

// Save writes the identity to s.
func (id *Identity) Save(s store.Store) error {
	if err := s.Save(StoreKey, id); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

// check verifies the stored exchange pair matches the one derived from the
// signing key.
func (id *Identity) check() error {
	if len(id.SigningPrivate) != ed25519.PrivateKeySize || len(id.SigningPublic) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: bad signing key length", ErrCorruptIdentity)
	}
	if !id.SigningPublic.Equal(id.SigningPrivate.Public()) {
		return fmt.Errorf("%w: signing key pair mismatch", ErrCorruptIdentity)
	}
	exchange, err := crypto.DeriveExchangeKeys(id.SigningPrivate)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptIdentity, err)
	}
	defer crypto.WipeExchangeKeyPair(exchange)
	if exchange.Public != id.ExchangePublic || exchange.Private != id.ExchangePrivate {
		return fmt.Errorf("%w: exchange keys do not match signing key", ErrCorruptIdentity)
	}
	return nil
}

// PublicKeyHex returns the signing public key in the relay's hex encoding.
func (id *Identity) PublicKeyHex() string {
	return hex.EncodeToString(id.SigningPublic)
}

// ExchangeKeyHex returns the exchange public key in hex.
func (id *Identity) ExchangeKeyHex() string {
	return id.ExchangePublic.Hex()
}

// Fingerprint returns a short human-comparable digest of the signing key.
func (id *Identity) Fingerprint() string {
	return crypto.Fingerprint(id.SigningPublic)
}

// Sign signs msg with the identity's signing key.
func (id *Identity) Sign(msg []byte) (crypto.Signature, error) {
	return crypto.Sign(msg, id.SigningPrivate)
}

// ExchangeProof signs the identity's own exchange public key, binding it to
// the signing identity.
func (id *Identity) ExchangeProof() (crypto.Signature, error) {
	return id.Sign(ExchangeProofPayload(id.ExchangeKeyHex()))
}

// ExchangeProofPayload is the byte string an exchange proof signs.
func ExchangeProofPayload(exchangeKeyHex string) []byte {
	return []byte(exchangeProofPrefix + strings.ToLower(exchangeKeyHex))
}

// VerifyExchangeProof reports whether proof binds exchangeKeyHex to
// signingKey.
func VerifyExchangeProof(signingKey ed25519.PublicKey, exchangeKeyHex string, proof crypto.Signature) bool {
	return crypto.Verify(ExchangeProofPayload(exchangeKeyHex), proof, signingKey)
}

// Mnemonic encodes the signing seed as a 24-word bip39 phrase.
func (id *Identity) Mnemonic() (string, error) {
	return bip39.NewMnemonic(id.SigningPrivate.Seed())
}

// FromMnemonic restores an identity from a phrase produced by Mnemonic.
func FromMnemonic(name, mnemonic string, createdAt time.Time) (*Identity, error) {
	mnemonic = strings.Join(strings.Fields(strings.ToLower(mnemonic)), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	defer crypto.ZeroBytes(seed)
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: phrase encodes %d bytes, want %d", ErrInvalidMnemonic, len(seed), ed25519.SeedSize)
	}
	return FromSeed(name, seed, createdAt)
}

// Wipe zeroes the private key material held in memory.
func (id *Identity) Wipe() {
	if id.SigningPrivate != nil {
		_ = crypto.WipeSigningKeyPair(&crypto.SigningKeyPair{Public: id.SigningPublic, Private: id.SigningPrivate})
	}
	crypto.ZeroBytes(id.ExchangePrivate[:])
}
