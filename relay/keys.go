package relay

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"
)

// EncodePublicKey returns the relay's hex form of a signing key.
func EncodePublicKey(pub ed25519.PublicKey) string {
	return hex.EncodeToString(pub)
}

// DecodePublicKey parses a hex signing key as sent by the relay.
func DecodePublicKey(s string) (ed25519.PublicKey, error) {
	return decodePublicKey(s)
}

func decodePublicKey(s string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %v", ErrMalformedEnvelope, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: public key is %d bytes, want %d", ErrMalformedEnvelope, len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}
