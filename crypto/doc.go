// Package crypto implements the cryptographic primitives used by relaylink.
//
// # Keys
//
// Every node owns one Ed25519 signing key pair ([SigningKeyPair]). The
// Curve25519 exchange pair ([ExchangeKeyPair]) is derived from the first 32
// bytes of the signing private key, so it never has to be stored separately:
//
//	signing, _ := crypto.GenerateIdentity()
//	exchange, _ := crypto.DeriveExchangeKeys(signing.Private)
//
// # Shared secrets and encryption
//
// Two nodes that know each other's exchange public keys derive the same
// 32-byte secret with [DeriveSharedSecret]. Objects are serialized as JSON and
// sealed with XSalsa20-Poly1305 under a fresh 24-byte nonce:
//
//	secret, _ := crypto.DeriveSharedSecret(exchange.Private, peerExchangePublic)
//	nonce, box, _ := crypto.Encrypt(payload, secret)
//	err := crypto.Decrypt(box, nonce, secret, &payload)
//
// Decryption failures never say whether the key or the ciphertext was wrong;
// both surface as [ErrDecryptionFailed].
//
// # Signatures
//
//	sig, _ := crypto.Sign(message, signing.Private)
//	ok := crypto.Verify(message, sig, signing.Public)
//
// [ErrInvalidSignature] and [ErrDecryptionFailed] both match
// [ErrCryptoFailure] with errors.Is.
package crypto
