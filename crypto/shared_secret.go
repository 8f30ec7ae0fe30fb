package crypto

import (
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// DeriveSharedSecret computes the symmetric key shared with a peer: X25519
// followed by HSalsa20 whitening (NaCl's crypto_box_beforenm). For matching
// key pairs DeriveSharedSecret(a.Private, b.Public) equals
// DeriveSharedSecret(b.Private, a.Public).
func DeriveSharedSecret(localPrivate, remotePublic Key) (Key, error) {
	log := NewLogger("DeriveSharedSecret").WithFields(SecureFieldHash(remotePublic[:], "peer_key"))
	log.Debug("Computing shared secret")

	// X25519 rejects low-order points; box.Precompute does not.
	raw, err := curve25519.X25519(localPrivate[:], remotePublic[:])
	if err != nil {
		log.WithError(err, "x25519").Debug("X25519 computation failed")
		return Key{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	ZeroBytes(raw)

	var shared [KeySize]byte
	pub := [KeySize]byte(remotePublic)
	priv := [KeySize]byte(localPrivate)
	box.Precompute(&shared, &pub, &priv)
	ZeroBytes(priv[:])

	return Key(shared), nil
}
