package relaylink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opd-ai/relaylink/crypto"
	"github.com/opd-ai/relaylink/delivery"
	"github.com/opd-ai/relaylink/friend"
	"github.com/opd-ai/relaylink/identity"
	"github.com/opd-ai/relaylink/messaging"
	"github.com/opd-ai/relaylink/metrics"
	"github.com/opd-ai/relaylink/relay"
	"github.com/opd-ai/relaylink/store"
	"github.com/sirupsen/logrus"
)

// Node is one local identity wired to a relay and a store. Its methods are
// not meant to be called concurrently with each other; top-level operations
// take the store lock so separate processes sharing a data directory are
// serialized.
type Node struct {
	options   *Options
	store     store.Store
	id        *identity.Identity
	client    *relay.Client
	handshake *friend.Handshake
	prefs     *delivery.Manager
	queue     *delivery.Queue
	engine    *delivery.Engine
	metrics   *metrics.Metrics
	clock     crypto.TimeProvider
	log       *logrus.Entry
}

// New loads the identity from s and returns a node. It returns
// identity.ErrConfigurationMissing when Init has not been run.
func New(s store.Store, options *Options) (*Node, error) {
	var id *identity.Identity
	err := store.WithLock(s, func() error {
		var err error
		id, err = identity.Load(s)
		return err
	})
	if err != nil {
		return nil, err
	}
	return newNode(s, id, options)
}

// Init creates a new identity named name in s and returns a node for it.
func Init(s store.Store, name string, options *Options) (*Node, error) {
	options = options.withDefaults()
	var id *identity.Identity
	err := store.WithLock(s, func() error {
		var err error
		id, err = identity.Create(s, name, options.Clock.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return newNode(s, id, options)
}

// Restore recreates an identity from its backup mnemonic and saves it in s.
// An existing identity is not overwritten.
func Restore(s store.Store, name, mnemonic string, options *Options) (*Node, error) {
	options = options.withDefaults()
	var id *identity.Identity
	err := store.WithLock(s, func() error {
		if _, err := identity.Load(s); err == nil {
			return identity.ErrAlreadyInitialized
		} else if !errors.Is(err, identity.ErrConfigurationMissing) {
			return err
		}
		var err error
		id, err = identity.FromMnemonic(name, mnemonic, options.Clock.Now())
		if err != nil {
			return err
		}
		return id.Save(s)
	})
	if err != nil {
		return nil, err
	}
	return newNode(s, id, options)
}

func newNode(s store.Store, id *identity.Identity, options *Options) (*Node, error) {
	options = options.withDefaults()

	clientOpts := []relay.Option{
		relay.WithTimeout(options.Timeout),
		relay.WithTimeProvider(options.Clock),
		relay.WithLogger(options.Logger.WithField("component", "relay")),
	}
	if options.HTTPClient != nil {
		clientOpts = append(clientOpts, relay.WithHTTPClient(options.HTTPClient))
	}
	client, err := relay.NewClient(options.RelayURL, clientOpts...)
	if err != nil {
		return nil, err
	}

	m, err := metrics.New(options.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	prefs := delivery.NewManager(s)
	queue := delivery.NewQueue(s)
	n := &Node{
		options: options,
		store:   s,
		id:      id,
		client:  client,
		handshake: friend.NewHandshake(id, client, s,
			friend.WithClock(options.Clock),
			friend.WithLogger(options.Logger.WithField("component", "friend")),
			friend.WithRequireSignatures(options.RequireSignatures),
		),
		prefs:   prefs,
		queue:   queue,
		engine:  delivery.NewEngine(prefs, queue, options.Clock, options.BatchTolerance),
		metrics: m,
		clock:   options.Clock,
		log:     options.Logger.WithField("identity", id.Fingerprint()),
	}
	return n, nil
}

// Identity returns the local identity.
func (n *Node) Identity() *identity.Identity { return n.id }

// FriendLink returns the link others use to send this node a request.
func (n *Node) FriendLink() string { return friend.BuildLink(n.id.SigningPublic, n.id.Name) }

// Preferences returns the delivery preference manager. Setters persist
// immediately; wrap them in store.WithLock when other processes share the
// store.
func (n *Node) Preferences() *delivery.Manager { return n.prefs }

// Backup returns the identity's recovery mnemonic.
func (n *Node) Backup() (string, error) { return n.id.Mnemonic() }

// AddFriend sends a friend request to the identity in link.
func (n *Node) AddFriend(ctx context.Context, link, message string) (*friend.OutgoingRequest, error) {
	var out *friend.OutgoingRequest
	err := n.locked(func() error {
		var err error
		out, err = n.handshake.SendFriendRequest(ctx, link, message)
		return err
	})
	if err != nil {
		n.relayError(err)
		return nil, err
	}
	n.metrics.Request(metrics.OutcomeSent, 1)
	return out, nil
}

// AcceptFriend accepts the incoming request matching query by id or name.
// When the peer is connected but the notice could not be sent, the peer is
// returned together with an error matching friend.ErrNotifyFailed. While
// peer.NotifyPending is set the next Tick retries the notice.
func (n *Node) AcceptFriend(ctx context.Context, query string) (*friend.Peer, error) {
	var peer *friend.Peer
	err := n.locked(func() error {
		var err error
		peer, err = n.handshake.AcceptFriendRequest(ctx, query)
		return err
	})
	if peer != nil {
		n.metrics.Request(metrics.OutcomeAccepted, 1)
	}
	if err != nil {
		n.relayError(err)
	}
	return peer, err
}

// RemoveFriend deletes the peer matching query along with its delivery
// override.
func (n *Node) RemoveFriend(query string) (*friend.Peer, error) {
	var peer *friend.Peer
	err := n.locked(func() error {
		var err error
		peer, err = n.handshake.RemoveFriend(query)
		if err != nil {
			return err
		}
		_, err = n.prefs.ClearPeerOverride(peer.KeyHex())
		return err
	})
	return peer, err
}

// Friends returns the connected peers.
func (n *Node) Friends() (friend.Peers, error) {
	return friend.LoadPeers(n.store)
}

// PendingRequests returns the incoming and outgoing requests not yet
// completed.
func (n *Node) PendingRequests() (*friend.Pending, error) {
	return friend.LoadPending(n.store)
}

// MessageOption adjusts an outgoing message.
type MessageOption func(*messaging.Message)

// Urgent marks the message urgent.
func Urgent() MessageOption {
	return func(m *messaging.Message) { m.Urgent = true }
}

// WithContext tags the message with a short context label.
func WithContext(tag string) MessageOption {
	return func(m *messaging.Message) { m.Context = tag }
}

// RespondBy asks the recipient to reply before t.
func RespondBy(t time.Time) MessageOption {
	return func(m *messaging.Message) {
		t = t.UTC()
		m.RespondBy = &t
	}
}

// SendMessage encrypts text for the peer matching query and publishes it.
func (n *Node) SendMessage(ctx context.Context, query, text string, opts ...MessageOption) (*relay.Receipt, error) {
	peers, err := friend.LoadPeers(n.store)
	if err != nil {
		return nil, err
	}
	peer, err := peers.Lookup(query)
	if err != nil {
		return nil, err
	}

	msg := messaging.Message{Text: text, SentAt: n.clock.Now().UTC()}
	for _, opt := range opts {
		opt(&msg)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	receipt, err := n.client.SendMessage(ctx, n.id, peer, msg)
	if err != nil {
		n.relayError(err)
		return nil, err
	}
	n.log.WithFields(logrus.Fields{
		"function": "SendMessage",
		"peer":     peer.Name,
		"id":       receipt.ID,
	}).Debug("Message published")
	return receipt, nil
}

// Health queries the relay status. It never gates other operations.
func (n *Node) Health(ctx context.Context) (*relay.Health, error) {
	return n.client.CheckHealth(ctx)
}

// Close wipes the private key material held in memory. The node must not be
// used afterwards.
func (n *Node) Close() {
	n.id.Wipe()
}

func (n *Node) relayError(err error) {
	var rerr *relay.Error
	if errors.As(err, &rerr) {
		n.metrics.RelayError(rerr.Op)
	}
}
