package friend

import (
	"encoding/hex"
	"testing"

	"github.com/opd-ai/relaylink/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkRoundTrip(t *testing.T) {
	kp, err := crypto.GenerateIdentity()
	require.NoError(t, err)

	link := BuildLink(kp.Public, "Alice Smith")
	assert.Contains(t, link, "relaylink://add?")

	pub, name, err := ParseLink(link)
	require.NoError(t, err)
	assert.Equal(t, kp.Public, pub)
	assert.Equal(t, "Alice Smith", name)
}

func TestParseLink(t *testing.T) {
	kp, err := crypto.GenerateIdentity()
	require.NoError(t, err)

	t.Run("hex key", func(t *testing.T) {
		pub, name, err := ParseLink("relaylink://add?key=ed25519:" + hex.EncodeToString(kp.Public))
		require.NoError(t, err)
		assert.Equal(t, kp.Public, pub)
		assert.Empty(t, name)
	})

	bad := []struct {
		name string
		link string
	}{
		{"missing key", "relaylink://add?name=bob"},
		{"wrong scheme", "https://add?key=ed25519:abc"},
		{"unknown algorithm", "relaylink://add?key=rsa:abc"},
		{"short key", "relaylink://add?key=ed25519:3mJr7AoUXx2Wqd"},
		{"not base58", "relaylink://add?key=ed25519:0OIl"},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseLink(tt.link)
			assert.ErrorIs(t, err, ErrMalformedLink)
		})
	}
}
