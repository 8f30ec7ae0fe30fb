package identity

import (
	"strings"
	"testing"
	"time"

	"github.com/opd-ai/relaylink/crypto"
	"github.com/opd-ai/relaylink/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCreateAndLoad(t *testing.T) {
	s := store.NewMemoryStore()

	_, err := Load(s)
	assert.ErrorIs(t, err, ErrConfigurationMissing)

	id, err := Create(s, "  Alice ", epoch)
	require.NoError(t, err)
	assert.Equal(t, "Alice", id.Name)

	loaded, err := Load(s)
	require.NoError(t, err)
	assert.Equal(t, id.SigningPublic, loaded.SigningPublic)
	assert.Equal(t, id.ExchangePublic, loaded.ExchangePublic)
	assert.True(t, loaded.CreatedAt.Equal(epoch))

	_, err = Create(s, "Alice", epoch)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestCreateRejectsBadName(t *testing.T) {
	_, err := Create(store.NewMemoryStore(), "   ", epoch)
	assert.Error(t, err)
	_, err = New(strings.Repeat("x", 200), epoch)
	assert.Error(t, err)
}

func TestExchangeKeysAreDeterministic(t *testing.T) {
	id, err := New("alice", epoch)
	require.NoError(t, err)

	again, err := FromSeed("alice", id.SigningPrivate.Seed(), epoch)
	require.NoError(t, err)
	assert.Equal(t, id.ExchangePublic, again.ExchangePublic)
	assert.Equal(t, id.ExchangePrivate, again.ExchangePrivate)
}

func TestLoadDetectsTamperedExchangeKey(t *testing.T) {
	s := store.NewMemoryStore()
	id, err := New("alice", epoch)
	require.NoError(t, err)
	id.ExchangePublic[0] ^= 0xff
	require.NoError(t, id.Save(s))

	_, err = Load(s)
	assert.ErrorIs(t, err, ErrCorruptIdentity)
}

func TestExchangeProof(t *testing.T) {
	alice, err := New("alice", epoch)
	require.NoError(t, err)
	mallory, err := New("mallory", epoch)
	require.NoError(t, err)

	proof, err := alice.ExchangeProof()
	require.NoError(t, err)

	assert.True(t, VerifyExchangeProof(alice.SigningPublic, alice.ExchangeKeyHex(), proof))
	assert.True(t, VerifyExchangeProof(alice.SigningPublic, strings.ToUpper(alice.ExchangeKeyHex()), proof))
	assert.False(t, VerifyExchangeProof(mallory.SigningPublic, alice.ExchangeKeyHex(), proof))
	assert.False(t, VerifyExchangeProof(alice.SigningPublic, mallory.ExchangeKeyHex(), proof))

	// A proof is not a valid signature over the bare key.
	assert.False(t, crypto.Verify([]byte(alice.ExchangeKeyHex()), proof, alice.SigningPublic))
}

func TestMnemonicRoundTrip(t *testing.T) {
	id, err := New("alice", epoch)
	require.NoError(t, err)

	words, err := id.Mnemonic()
	require.NoError(t, err)
	assert.Len(t, strings.Fields(words), 24)

	restored, err := FromMnemonic("alice", "  "+strings.ToUpper(words)+"\n", epoch)
	require.NoError(t, err)
	assert.Equal(t, id.SigningPublic, restored.SigningPublic)
	assert.Equal(t, id.ExchangePublic, restored.ExchangePublic)

	_, err = FromMnemonic("alice", "not a real phrase", epoch)
	assert.ErrorIs(t, err, ErrInvalidMnemonic)
}

func TestFingerprintAndHex(t *testing.T) {
	id, err := New("alice", epoch)
	require.NoError(t, err)
	assert.Len(t, id.PublicKeyHex(), 64)
	assert.Len(t, id.ExchangeKeyHex(), 64)
	assert.Equal(t, crypto.Fingerprint(id.SigningPublic), id.Fingerprint())
}

func TestWipe(t *testing.T) {
	id, err := New("alice", epoch)
	require.NoError(t, err)
	// Wiping the derivation scratch pair must not touch the identity's copy.
	require.False(t, id.ExchangePrivate.IsZero())
	require.NoError(t, id.check())

	exchangePub := id.ExchangePublic
	signingPub := append([]byte(nil), id.SigningPublic...)
	id.Wipe()
	assert.True(t, id.ExchangePrivate.IsZero())
	assert.Equal(t, make([]byte, len(id.SigningPrivate)), []byte(id.SigningPrivate))
	assert.Equal(t, exchangePub, id.ExchangePublic)
	assert.Equal(t, signingPub, []byte(id.SigningPublic))
	assert.ErrorIs(t, id.check(), ErrCorruptIdentity)

	// Wiping twice or wiping an empty identity is harmless.
	id.Wipe()
	(&Identity{}).Wipe()
}
