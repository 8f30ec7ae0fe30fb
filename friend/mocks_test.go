package friend

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/relaylink/crypto"
	"github.com/opd-ai/relaylink/identity"
	"github.com/opd-ai/relaylink/messaging"
	"github.com/opd-ai/relaylink/relay"
	"github.com/opd-ai/relaylink/relay/memrelay"
	"github.com/opd-ai/relaylink/store"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var errInjected = &relay.Error{Op: "send", Message: "injected", Err: relay.ErrRelayUnavailable}

// flakyRelay wraps a real client and can fail sends on demand.
type flakyRelay struct {
	*relay.Client
	mu      sync.Mutex
	sendErr error
	sends   int
}

func (f *flakyRelay) setFailSend(fail bool) {
	if fail {
		f.setSendErr(errInjected)
		return
	}
	f.setSendErr(nil)
}

func (f *flakyRelay) setSendErr(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

func (f *flakyRelay) sendAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

func (f *flakyRelay) SendMessage(ctx context.Context, id *identity.Identity, peer relay.Counterparty, content messaging.Content) (*relay.Receipt, error) {
	f.mu.Lock()
	err := f.sendErr
	f.sends++
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Client.SendMessage(ctx, id, peer, content)
}

type node struct {
	id    *identity.Identity
	store *store.MemoryStore
	relay *flakyRelay
	hs    *Handshake
}

func newNetwork(t *testing.T) (clock *crypto.FixedTimeProvider, newNode func(name string) *node) {
	t.Helper()
	clock = crypto.NewFixedTimeProvider(epoch)
	srv := httptest.NewServer(memrelay.New(memrelay.WithClock(clock)))
	t.Cleanup(srv.Close)

	return clock, func(name string) *node {
		id, err := identity.New(name, epoch)
		require.NoError(t, err)
		c, err := relay.NewClient(srv.URL, relay.WithTimeProvider(clock))
		require.NoError(t, err)
		fr := &flakyRelay{Client: c}
		st := store.NewMemoryStore()
		return &node{
			id:    id,
			store: st,
			relay: fr,
			hs:    NewHandshake(id, fr, st, WithClock(clock)),
		}
	}
}

func (n *node) link() string { return BuildLink(n.id.SigningPublic, n.id.Name) }

// pollAccepts feeds every polled envelope from an awaited sender through
// HandleFriendAccept.
func (n *node) pollAccepts(t *testing.T) []*Peer {
	t.Helper()
	envs, err := n.relay.PollMessages(context.Background(), n.id)
	require.NoError(t, err)
	var out []*Peer
	for _, env := range envs {
		ok, err := n.hs.AwaitingAccept(env.From)
		require.NoError(t, err)
		if !ok {
			continue
		}
		p, err := n.hs.HandleFriendAccept(env)
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}
