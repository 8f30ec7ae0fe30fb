package crypto

import (
	"errors"
	"fmt"
)

// ErrCryptoFailure is the parent of every authentication failure. Signature
// failures and decryption failures both match it so callers can treat them
// identically.
var ErrCryptoFailure = errors.New("crypto failure")

var (
	// ErrDecryptionFailed covers both tampering and wrong-key cases.
	ErrDecryptionFailed = fmt.Errorf("%w: decryption failed", ErrCryptoFailure)
	// ErrInvalidSignature is returned when a detached signature does not verify.
	ErrInvalidSignature = fmt.Errorf("%w: invalid signature", ErrCryptoFailure)
	// ErrInvalidKey is returned for keys of the wrong size or shape.
	ErrInvalidKey = errors.New("invalid key")
	// ErrMalformedPlaintext is returned when an authenticated plaintext is not valid JSON.
	ErrMalformedPlaintext = errors.New("malformed plaintext")
)
