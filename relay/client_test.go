package relay_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opd-ai/relaylink/crypto"
	"github.com/opd-ai/relaylink/identity"
	"github.com/opd-ai/relaylink/messaging"
	"github.com/opd-ai/relaylink/relay"
	"github.com/opd-ai/relaylink/relay/memrelay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type pair struct {
	alice, bob *identity.Identity
	// aliceView is Bob as seen by Alice, bobView is Alice as seen by Bob.
	aliceView, bobView relay.StaticCounterparty
}

func newPair(t *testing.T) pair {
	t.Helper()
	alice, err := identity.New("alice", epoch)
	require.NoError(t, err)
	bob, err := identity.New("bob", epoch)
	require.NoError(t, err)

	ab, err := crypto.DeriveSharedSecret(alice.ExchangePrivate, bob.ExchangePublic)
	require.NoError(t, err)
	ba, err := crypto.DeriveSharedSecret(bob.ExchangePrivate, alice.ExchangePublic)
	require.NoError(t, err)
	require.Equal(t, ab, ba)

	return pair{
		alice:     alice,
		bob:       bob,
		aliceView: relay.StaticCounterparty{Key: bob.SigningPublic, Secret: ab},
		bobView:   relay.StaticCounterparty{Key: alice.SigningPublic, Secret: ba},
	}
}

func newRelay(t *testing.T, clock crypto.TimeProvider) *relay.Client {
	t.Helper()
	srv := httptest.NewServer(memrelay.New(memrelay.WithClock(clock)))
	t.Cleanup(srv.Close)
	c, err := relay.NewClient(srv.URL, relay.WithTimeProvider(clock), relay.WithTimeout(5*time.Second))
	require.NoError(t, err)
	return c
}

func TestSendPollDecrypt(t *testing.T) {
	clock := crypto.NewFixedTimeProvider(epoch)
	c := newRelay(t, clock)
	p := newPair(t)
	ctx := context.Background()

	receipt, err := c.SendMessage(ctx, p.alice, p.aliceView, messaging.Message{Text: "hello bob", SentAt: epoch})
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.ID)
	assert.True(t, receipt.Timestamp.Equal(epoch))

	envs, err := c.PollMessages(ctx, p.bob)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	env := envs[0]
	assert.Equal(t, receipt.ID, env.ID)
	assert.Equal(t, p.alice.PublicKeyHex(), env.From)
	assert.Equal(t, p.alice.ExchangeKeyHex(), env.FromExchangeKey)

	content, err := relay.DecryptMessage(env, p.bobView, true)
	require.NoError(t, err)
	assert.Equal(t, "hello bob", content.(messaging.Message).Text)

	// Polling does not consume.
	envs, err = c.PollMessages(ctx, p.bob)
	require.NoError(t, err)
	assert.Len(t, envs, 1)

	// Alice has nothing.
	envs, err = c.PollMessages(ctx, p.alice)
	require.NoError(t, err)
	assert.Empty(t, envs)
}

func TestPollDrainsPages(t *testing.T) {
	clock := crypto.NewFixedTimeProvider(epoch)
	srv := httptest.NewServer(memrelay.New(
		memrelay.WithClock(clock),
		memrelay.WithRateLimit(0, 0),
		memrelay.WithPageSize(3),
	))
	t.Cleanup(srv.Close)
	c, err := relay.NewClient(srv.URL, relay.WithTimeProvider(clock))
	require.NoError(t, err)
	p := newPair(t)
	ctx := context.Background()

	sent := make(map[string]bool)
	for i := 0; i < 10; i++ {
		receipt, err := c.SendMessage(ctx, p.alice, p.aliceView, messaging.Message{Text: "hello", SentAt: epoch})
		require.NoError(t, err)
		sent[receipt.ID] = true
	}

	envs, err := c.PollMessages(ctx, p.bob)
	require.NoError(t, err)
	require.Len(t, envs, 10)
	for _, env := range envs {
		assert.True(t, sent[env.ID])
	}
}

func TestPollStuckCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"a","from":"x"}],"next":"7"}`))
	}))
	defer srv.Close()

	c, err := relay.NewClient(srv.URL)
	require.NoError(t, err)
	_, err = c.PollMessages(context.Background(), newPair(t).bob)
	assert.ErrorIs(t, err, relay.ErrMalformedEnvelope)
}

func TestDecryptMessageFailures(t *testing.T) {
	clock := crypto.NewFixedTimeProvider(epoch)
	c := newRelay(t, clock)
	p := newPair(t)
	ctx := context.Background()

	_, err := c.SendMessage(ctx, p.alice, p.aliceView, messaging.Message{Text: "secret"})
	require.NoError(t, err)
	envs, err := c.PollMessages(ctx, p.bob)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	env := envs[0]

	t.Run("unknown sender", func(t *testing.T) {
		_, err := relay.DecryptMessage(env, nil, false)
		assert.ErrorIs(t, err, relay.ErrUndecryptableMessage)
	})

	t.Run("wrong secret", func(t *testing.T) {
		wrong := p.bobView
		wrong.Secret[0] ^= 1
		_, err := relay.DecryptMessage(env, wrong, false)
		assert.ErrorIs(t, err, relay.ErrUndecryptableMessage)
		assert.ErrorIs(t, err, crypto.ErrCryptoFailure)
	})

	t.Run("wrong signer", func(t *testing.T) {
		other := p.bobView
		other.Key = p.bob.SigningPublic
		_, err := relay.DecryptMessage(env, other, false)
		assert.ErrorIs(t, err, crypto.ErrInvalidSignature)
	})

	t.Run("unsigned", func(t *testing.T) {
		unsigned := env
		unsigned.Signature = ""
		_, err := relay.DecryptMessage(unsigned, p.bobView, true)
		assert.ErrorIs(t, err, relay.ErrUndecryptableMessage)

		content, err := relay.DecryptMessage(unsigned, p.bobView, false)
		require.NoError(t, err)
		assert.Equal(t, messaging.TypeMessage, content.ContentType())
	})

	t.Run("malformed nonce", func(t *testing.T) {
		bad := env
		bad.Nonce = "!!"
		_, err := relay.DecryptMessage(bad, p.bobView, false)
		assert.ErrorIs(t, err, relay.ErrMalformedEnvelope)
	})
}

func TestFriendRequestRoundTrip(t *testing.T) {
	clock := crypto.NewFixedTimeProvider(epoch)
	c := newRelay(t, clock)
	p := newPair(t)
	ctx := context.Background()

	payload := relay.FriendRequestPayload{
		From:            p.alice.PublicKeyHex(),
		To:              p.bob.PublicKeyHex(),
		FromName:        "alice",
		FromExchangeKey: p.alice.ExchangeKeyHex(),
		Message:         "hi, it's alice",
	}
	sig, err := p.alice.Sign(relay.RequestSignPayload(payload.From, payload.To, payload.FromName, payload.Message))
	require.NoError(t, err)
	payload.Signature = sig.Hex()

	id, err := c.SubmitFriendRequest(ctx, payload)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	reqs, err := c.FetchFriendRequests(ctx, p.bob)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, id, reqs[0].ID)
	assert.Equal(t, "hi, it's alice", reqs[0].Message)
	assert.NoError(t, relay.VerifyRequestSignature(reqs[0].From, p.bob.PublicKeyHex(), reqs[0].FromName, reqs[0].Message, reqs[0].Signature))

	t.Run("forged signature rejected", func(t *testing.T) {
		forged := payload
		forged.FromName = "mallory"
		_, err := c.SubmitFriendRequest(ctx, forged)
		var rerr *relay.Error
		require.True(t, errors.As(err, &rerr))
		assert.Equal(t, http.StatusUnauthorized, rerr.StatusCode)
		assert.ErrorIs(t, err, relay.ErrRelayRejected)
		assert.False(t, relay.IsRetryable(err))
	})
}

func TestPollAuthStaleTimestamp(t *testing.T) {
	serverClock := crypto.NewFixedTimeProvider(epoch)
	srv := httptest.NewServer(memrelay.New(memrelay.WithClock(serverClock)))
	defer srv.Close()

	clientClock := crypto.NewFixedTimeProvider(epoch.Add(-time.Hour))
	c, err := relay.NewClient(srv.URL, relay.WithTimeProvider(clientClock))
	require.NoError(t, err)

	p := newPair(t)
	_, err = c.PollMessages(context.Background(), p.bob)
	assert.ErrorIs(t, err, relay.ErrRelayRejected)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    error
		message string
	}{
		{"server error", http.StatusBadGateway, "", relay.ErrRelayUnavailable, "502 Bad Gateway"},
		{"client error with json", http.StatusBadRequest, `{"error":"recipient unknown"}`, relay.ErrRelayRejected, "recipient unknown"},
		{"client error with text", http.StatusForbidden, "nope", relay.ErrRelayRejected, "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := relay.NewClient(srv.URL)
			require.NoError(t, err)
			_, err = c.CheckHealth(context.Background())
			require.ErrorIs(t, err, tt.want)

			var rerr *relay.Error
			require.True(t, errors.As(err, &rerr))
			assert.Equal(t, "health", rerr.Op)
			assert.Equal(t, tt.status, rerr.StatusCode)
			assert.Equal(t, tt.message, rerr.Message)
		})
	}
}

func TestRetryableRejections(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c, err := relay.NewClient(srv.URL)
			require.NoError(t, err)
			_, err = c.CheckHealth(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.want, relay.IsRetryable(err))
		})
	}
}

func TestUnreachableRelay(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := relay.NewClient(url, relay.WithTimeout(time.Second))
	require.NoError(t, err)
	_, err = c.CheckHealth(context.Background())
	assert.ErrorIs(t, err, relay.ErrRelayUnavailable)
	assert.True(t, relay.IsRetryable(err))
}

func TestTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := relay.NewClient(srv.URL, relay.WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	_, err = c.CheckHealth(context.Background())
	assert.ErrorIs(t, err, relay.ErrRelayUnavailable)
}

func TestHealth(t *testing.T) {
	c := newRelay(t, crypto.DefaultTimeProvider{})
	h, err := c.CheckHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, memrelay.Version, h.Version)
}

func TestNewClientValidatesURL(t *testing.T) {
	for _, u := range []string{"", "ftp://relay", "http://", "://bad"} {
		_, err := relay.NewClient(u)
		assert.Error(t, err, u)
	}
}
