package crypto

import (
	"bytes"
	"errors"
	"testing"
)

// FuzzEncryptDecrypt checks the round trip and that a flipped bit is caught.
func FuzzEncryptDecrypt(f *testing.F) {
	f.Add([]byte("Hello, World!"), uint16(0))
	f.Add([]byte("x"), uint16(7))
	f.Add(make([]byte, 100), uint16(1000))

	f.Fuzz(func(t *testing.T, plaintext []byte, flip uint16) {
		if len(plaintext) == 0 || len(plaintext) > 10000 {
			return
		}
		var secret Key
		copy(secret[:], bytes.Repeat([]byte{0x5a}, KeySize))

		nonce, ct, err := EncryptBytes(plaintext, secret)
		if err != nil {
			t.Fatalf("EncryptBytes: %v", err)
		}
		got, err := DecryptBytes(ct, nonce, secret)
		if err != nil {
			t.Fatalf("DecryptBytes: %v", err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Fatalf("round trip mismatch: got %q, want %q", got, plaintext)
		}

		bit := int(flip) % (len(ct) * 8)
		ct[bit/8] ^= 1 << (bit % 8)
		if _, err := DecryptBytes(ct, nonce, secret); !errors.Is(err, ErrDecryptionFailed) {
			t.Fatalf("tampered ciphertext decrypted, err=%v", err)
		}
	})
}

// FuzzSharedSecret checks symmetry for exchange keys derived from arbitrary
// seeds.
func FuzzSharedSecret(f *testing.F) {
	seed := make([]byte, 64)
	for i := range seed {
		seed[i] = byte(i)
	}
	f.Add(seed)
	f.Add(bytes.Repeat([]byte{0xff}, 64))

	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) < 64 {
			return
		}
		a, err := SigningKeyPairFromSeed(data[:32])
		if err != nil {
			return
		}
		b, err := SigningKeyPairFromSeed(data[32:64])
		if err != nil {
			return
		}
		ax, err := DeriveExchangeKeys(a.Private)
		if err != nil {
			t.Fatal(err)
		}
		bx, err := DeriveExchangeKeys(b.Private)
		if err != nil {
			t.Fatal(err)
		}

		ab, errAB := DeriveSharedSecret(ax.Private, bx.Public)
		ba, errBA := DeriveSharedSecret(bx.Private, ax.Public)
		if (errAB == nil) != (errBA == nil) {
			t.Fatalf("asymmetric failure: %v / %v", errAB, errBA)
		}
		if errAB == nil && ab != ba {
			t.Fatal("shared secrets differ")
		}
	})
}

// FuzzSignVerify checks that a signature never verifies for a changed
// message.
func FuzzSignVerify(f *testing.F) {
	f.Add([]byte("poll:1767225600"), byte(0))
	f.Add([]byte("a:b:c:d"), byte(3))

	kp, err := GenerateIdentity()
	if err != nil {
		f.Fatal(err)
	}

	f.Fuzz(func(t *testing.T, msg []byte, pos byte) {
		if len(msg) == 0 {
			return
		}
		sig, err := Sign(msg, kp.Private)
		if err != nil {
			t.Fatal(err)
		}
		if !Verify(msg, sig, kp.Public) {
			t.Fatal("valid signature rejected")
		}
		mutated := append([]byte(nil), msg...)
		mutated[int(pos)%len(mutated)] ^= 0x01
		if Verify(mutated, sig, kp.Public) {
			t.Fatal("signature verified for mutated message")
		}
	})
}

// FuzzNonceFromString must reject or accept without panicking, and accepted
// nonces must round trip.
func FuzzNonceFromString(f *testing.F) {
	n, err := GenerateNonce()
	if err != nil {
		f.Fatal(err)
	}
	f.Add(n.String())
	f.Add("")
	f.Add("not base64!")

	f.Fuzz(func(t *testing.T, s string) {
		got, err := NonceFromString(s)
		if err != nil {
			return
		}
		again, err := NonceFromString(got.String())
		if err != nil || again != got {
			t.Fatalf("nonce %q does not round trip", s)
		}
	})
}
