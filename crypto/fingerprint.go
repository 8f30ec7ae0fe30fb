package crypto

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns a short, human-comparable digest of a public key, e.g.
// "3f1a-9c2e-77b0-d415". Two people can read it to each other to confirm a
// friend link was not substituted in transit.
func Fingerprint(publicKey []byte) string {
	sum := blake2b.Sum256(publicKey)
	digest := hex.EncodeToString(sum[:8])

	groups := make([]string, 0, 4)
	for i := 0; i < len(digest); i += 4 {
		groups = append(groups, digest[i:i+4])
	}
	return strings.Join(groups, "-")
}
