package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
)

// SignatureSize is the size of an Ed25519 signature in bytes.
const SignatureSize = ed25519.SignatureSize

// Signature represents a detached Ed25519 signature.
type Signature [SignatureSize]byte

// Hex returns the hex encoding used by the relay.
func (s Signature) Hex() string {
	return hex.EncodeToString(s[:])
}

// SignatureFromHex parses a hex encoded signature.
func SignatureFromHex(s string) (Signature, error) {
	var sig Signature
	raw, err := hex.DecodeString(s)
	if err != nil {
		return sig, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(raw) != SignatureSize {
		return sig, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidSignature, len(raw), SignatureSize)
	}
	copy(sig[:], raw)
	return sig, nil
}

// Sign creates a detached Ed25519 signature for message.
func Sign(message []byte, privateKey ed25519.PrivateKey) (Signature, error) {
	if len(message) == 0 {
		return Signature{}, errors.New("empty message")
	}
	if len(privateKey) != ed25519.PrivateKeySize {
		return Signature{}, fmt.Errorf("%w: signing key is %d bytes", ErrInvalidKey, len(privateKey))
	}

	var signature Signature
	copy(signature[:], ed25519.Sign(privateKey, message))
	return signature, nil
}

// Verify reports whether signature is a valid signature of message by publicKey.
// The comparison inside ed25519.Verify is constant time.
func Verify(message []byte, signature Signature, publicKey ed25519.PublicKey) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(publicKey, message, signature[:])
}
