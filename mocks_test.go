package relaylink

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/relaylink/crypto"
	"github.com/opd-ai/relaylink/relay/memrelay"
	"github.com/opd-ai/relaylink/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// faultyTransport fails requests to chosen relay paths with a network error.
type faultyTransport struct {
	mu   sync.Mutex
	fail map[string]bool
}

func (f *faultyTransport) set(path string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail == nil {
		f.fail = make(map[string]bool)
	}
	f.fail[path] = fail
}

func (f *faultyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	f.mu.Lock()
	fail := f.fail[r.URL.Path]
	f.mu.Unlock()
	if fail {
		return nil, errors.New("connection refused")
	}
	return http.DefaultTransport.RoundTrip(r)
}

type testNet struct {
	clock *crypto.FixedTimeProvider
	url   string
}

func newTestNet(t *testing.T, opts ...memrelay.Option) *testNet {
	t.Helper()
	clock := crypto.NewFixedTimeProvider(epoch)
	srv := httptest.NewServer(memrelay.New(append([]memrelay.Option{memrelay.WithClock(clock)}, opts...)...))
	t.Cleanup(srv.Close)
	return &testNet{clock: clock, url: srv.URL}
}

type testNode struct {
	*Node
	store     *store.MemoryStore
	transport *faultyTransport
	registry  *prometheus.Registry
}

func (tn *testNet) options(ft *faultyTransport, reg prometheus.Registerer) *Options {
	opts := NewOptions()
	opts.RelayURL = tn.url
	opts.Clock = tn.clock
	opts.HTTPClient = &http.Client{Transport: ft}
	opts.Registerer = reg
	return opts
}

func (tn *testNet) node(t *testing.T, name string) *testNode {
	t.Helper()
	ft := &faultyTransport{}
	reg := prometheus.NewRegistry()
	st := store.NewMemoryStore()
	n, err := Init(st, name, tn.options(ft, reg))
	require.NoError(t, err)
	t.Cleanup(n.Close)
	return &testNode{Node: n, store: st, transport: ft, registry: reg}
}
