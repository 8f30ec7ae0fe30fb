package relay

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/opd-ai/relaylink/crypto"
	"github.com/opd-ai/relaylink/messaging"
)

// Counterparty is the remote side of an established relationship.
type Counterparty interface {
	SigningKey() ed25519.PublicKey
	SharedSecret() crypto.Key
}

// StaticCounterparty is a Counterparty built from raw values, used before a
// peer record exists.
type StaticCounterparty struct {
	Key    ed25519.PublicKey
	Secret crypto.Key
}

// SigningKey implements Counterparty.
func (s StaticCounterparty) SigningKey() ed25519.PublicKey { return s.Key }

// SharedSecret implements Counterparty.
func (s StaticCounterparty) SharedSecret() crypto.Key { return s.Secret }

// DecryptMessage verifies and opens env using peer's shared secret. A nil
// peer means the sender is unknown. When the envelope carries a signature it
// must verify under the peer's signing key; requireSignature additionally
// drops unsigned envelopes. Every authentication failure returns an error
// matching both ErrUndecryptableMessage and crypto.ErrCryptoFailure.
func DecryptMessage(env Envelope, peer Counterparty, requireSignature bool) (messaging.Content, error) {
	if peer == nil {
		return nil, fmt.Errorf("%w: unknown sender %.16s", ErrUndecryptableMessage, env.From)
	}

	nonce, err := crypto.NonceFromString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	ct, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", ErrMalformedEnvelope, err)
	}

	if env.Signature != "" {
		sig, err := crypto.SignatureFromHex(env.Signature)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUndecryptableMessage, err)
		}
		if !crypto.Verify(ct, sig, peer.SigningKey()) {
			return nil, fmt.Errorf("%w: %w", ErrUndecryptableMessage, crypto.ErrInvalidSignature)
		}
	} else if requireSignature {
		return nil, fmt.Errorf("%w: %w: envelope is unsigned", ErrUndecryptableMessage, crypto.ErrInvalidSignature)
	}

	plain, err := crypto.DecryptBytes(ct, nonce, peer.SharedSecret())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUndecryptableMessage, err)
	}
	defer crypto.ZeroBytes(plain)

	content, err := messaging.Unmarshal(plain)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	return content, nil
}
