package crypto

import (
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// Decrypt opens ciphertext under secret and decodes the JSON plaintext into v.
func Decrypt(ciphertext []byte, nonce Nonce, secret Key, v any) error {
	plain, err := DecryptBytes(ciphertext, nonce, secret)
	if err != nil {
		return err
	}
	defer ZeroBytes(plain)

	if err := json.Unmarshal(plain, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPlaintext, err)
	}
	return nil
}

// DecryptBytes opens ciphertext under secret. Any authentication failure,
// whether caused by tampering or by the wrong key, returns ErrDecryptionFailed.
func DecryptBytes(ciphertext []byte, nonce Nonce, secret Key) ([]byte, error) {
	if len(ciphertext) < secretbox.Overhead {
		return nil, ErrDecryptionFailed
	}

	out, ok := secretbox.Open(nil, ciphertext, (*[NonceSize]byte)(&nonce), (*[KeySize]byte)(&secret))
	if !ok {
		return nil, ErrDecryptionFailed
	}
	return out, nil
}
