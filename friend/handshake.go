package friend

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/opd-ai/relaylink/crypto"
	"github.com/opd-ai/relaylink/identity"
	"github.com/opd-ai/relaylink/limits"
	"github.com/opd-ai/relaylink/messaging"
	"github.com/opd-ai/relaylink/relay"
	"github.com/opd-ai/relaylink/store"
	"github.com/sirupsen/logrus"
)

var (
	// ErrSelfRequest is returned when a link points at the local identity.
	ErrSelfRequest = errors.New("cannot befriend yourself")
	// ErrNotifyFailed is returned by AcceptFriendRequest when the peer was
	// connected locally but the friend_accept notice could not be sent. The
	// peer keeps NotifyPending only if the failure is transient.
	ErrNotifyFailed = errors.New("friend accepted but notification failed")
	// ErrUnexpectedContent is returned when a friend_accept envelope holds
	// other content.
	ErrUnexpectedContent = errors.New("unexpected content")
)

// Relay is the subset of the relay client the handshake uses.
type Relay interface {
	SendMessage(ctx context.Context, id *identity.Identity, peer relay.Counterparty, content messaging.Content) (*relay.Receipt, error)
	SubmitFriendRequest(ctx context.Context, req relay.FriendRequestPayload) (string, error)
	FetchFriendRequests(ctx context.Context, id *identity.Identity) ([]relay.IncomingRequest, error)
}

// Handshake runs the friend-request protocol for one local identity. It does
// not lock the store; callers serialize operations.
type Handshake struct {
	id                *identity.Identity
	relay             Relay
	store             store.Store
	clock             crypto.TimeProvider
	log               *logrus.Entry
	requireSignatures bool
}

// Option configures a Handshake.
type Option func(*Handshake)

// WithClock sets the clock used for record timestamps.
func WithClock(tp crypto.TimeProvider) Option {
	return func(h *Handshake) { h.clock = tp }
}

// WithLogger sets the log entry.
func WithLogger(entry *logrus.Entry) Option {
	return func(h *Handshake) { h.log = entry }
}

// WithRequireSignatures drops incoming requests and notices that carry no
// signature.
func WithRequireSignatures(require bool) Option {
	return func(h *Handshake) { h.requireSignatures = require }
}

// NewHandshake returns a handshake for id.
func NewHandshake(id *identity.Identity, r Relay, s store.Store, opts ...Option) *Handshake {
	h := &Handshake{
		id:    id,
		relay: r,
		store: s,
		clock: crypto.DefaultTimeProvider{},
		log:   logrus.WithField("component", "friend"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SendFriendRequest signs and submits a request to the identity in link and
// records it as outgoing.
func (h *Handshake) SendFriendRequest(ctx context.Context, link, message string) (*OutgoingRequest, error) {
	pub, name, err := ParseLink(link)
	if err != nil {
		return nil, err
	}
	message = strings.TrimSpace(message)
	if err := limits.ValidateRequestMessage(message); err != nil {
		return nil, fmt.Errorf("request message: %w", err)
	}
	if pub.Equal(h.id.SigningPublic) {
		return nil, ErrSelfRequest
	}

	to := relay.EncodePublicKey(pub)
	peers, err := LoadPeers(h.store)
	if err != nil {
		return nil, err
	}
	if peers.ByKey(to) != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyFriends, displayName(name, to))
	}

	payload := relay.FriendRequestPayload{
		From:            h.id.PublicKeyHex(),
		To:              to,
		FromName:        h.id.Name,
		FromExchangeKey: h.id.ExchangeKeyHex(),
		Message:         message,
	}
	sig, err := h.id.Sign(relay.RequestSignPayload(payload.From, payload.To, payload.FromName, payload.Message))
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	proof, err := h.id.ExchangeProof()
	if err != nil {
		return nil, fmt.Errorf("sign exchange proof: %w", err)
	}
	payload.Signature = sig.Hex()
	payload.ExchangeProof = proof.Hex()

	relayID, err := h.relay.SubmitFriendRequest(ctx, payload)
	if err != nil {
		return nil, err
	}

	out := OutgoingRequest{
		Name:      displayName(name, to),
		PublicKey: pub,
		RelayID:   relayID,
		Message:   message,
		SentAt:    h.clock.Now().UTC(),
		Status:    OutgoingStatusSent,
	}
	pending, err := LoadPending(h.store)
	if err != nil {
		return nil, err
	}
	pending.AddOutgoing(out)
	if err := pending.Save(h.store); err != nil {
		return nil, err
	}

	h.log.WithFields(logrus.Fields{
		"function": "SendFriendRequest",
		"to":       out.Name,
		"relay_id": relayID,
	}).Info("Sent friend request")
	return &out, nil
}

// FetchFriendRequests polls the relay and records requests not seen before.
// It returns only the newly recorded ones. Requests with a bad signature, or
// from existing peers, are skipped.
func (h *Handshake) FetchFriendRequests(ctx context.Context) ([]IncomingRequest, error) {
	remote, err := h.relay.FetchFriendRequests(ctx, h.id)
	if err != nil {
		return nil, err
	}

	peers, err := LoadPeers(h.store)
	if err != nil {
		return nil, err
	}
	pending, err := LoadPending(h.store)
	if err != nil {
		return nil, err
	}

	var fresh []IncomingRequest
	for _, rr := range remote {
		if peers.ByKey(rr.From) != nil {
			continue
		}
		in, err := h.toIncoming(rr)
		if err != nil {
			h.log.WithFields(logrus.Fields{
				"function": "FetchFriendRequests",
				"id":       rr.ID,
				"error":    err.Error(),
			}).Debug("Dropping friend request")
			continue
		}
		if pending.AddIncoming(in) {
			fresh = append(fresh, in)
		}
	}

	if len(fresh) > 0 {
		if err := pending.Save(h.store); err != nil {
			return nil, err
		}
	}
	return fresh, nil
}

func (h *Handshake) toIncoming(rr relay.IncomingRequest) (IncomingRequest, error) {
	pub, err := relay.DecodePublicKey(rr.From)
	if err != nil {
		return IncomingRequest{}, err
	}
	xkey, err := crypto.KeyFromHex(rr.FromExchangeKey)
	if err != nil {
		return IncomingRequest{}, fmt.Errorf("%w: exchange key: %v", relay.ErrMalformedEnvelope, err)
	}
	if err := limits.ValidateDisplayName(rr.FromName); err != nil {
		return IncomingRequest{}, fmt.Errorf("%w: %v", relay.ErrMalformedEnvelope, err)
	}

	signed := false
	if rr.Signature != "" {
		if err := relay.VerifyRequestSignature(rr.From, h.id.PublicKeyHex(), rr.FromName, rr.Message, rr.Signature); err != nil {
			return IncomingRequest{}, err
		}
		signed = true
	} else if h.requireSignatures {
		return IncomingRequest{}, fmt.Errorf("%w: request is unsigned", crypto.ErrInvalidSignature)
	}

	return IncomingRequest{
		ID:            rr.ID,
		Name:          rr.FromName,
		PublicKey:     pub,
		ExchangeKey:   xkey,
		ExchangeProof: rr.ExchangeProof,
		Message:       rr.Message,
		ReceivedAt:    h.clock.Now().UTC(),
		Signed:        signed,
	}, nil
}

// AcceptFriendRequest connects with the incoming request matching query (id
// or name) and notifies the requester. The peer is saved before the notice
// is sent. When the notice fails the returned peer is valid and the error
// matches ErrNotifyFailed; NotifyPending stays set if the failure is
// transient.
func (h *Handshake) AcceptFriendRequest(ctx context.Context, query string) (*Peer, error) {
	pending, err := LoadPending(h.store)
	if err != nil {
		return nil, err
	}
	i, err := pending.FindIncoming(query)
	if err != nil {
		return nil, err
	}
	req := pending.Incoming[i]

	verified, err := verifyProof(req.PublicKey, req.ExchangeKey.Hex(), req.ExchangeProof)
	if err != nil {
		return nil, fmt.Errorf("request from %s: %w", req.Name, err)
	}

	peers, err := LoadPeers(h.store)
	if err != nil {
		return nil, err
	}
	if peers.ByKey(req.KeyHex()) != nil {
		pending.RemoveIncoming(i)
		if err := pending.Save(h.store); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrAlreadyFriends, req.Name)
	}

	secret, err := crypto.DeriveSharedSecret(h.id.ExchangePrivate, req.ExchangeKey)
	if err != nil {
		return nil, fmt.Errorf("derive shared secret: %w", err)
	}

	peer := &Peer{
		ID:               crypto.RandomID(),
		Name:             req.Name,
		PublicKey:        req.PublicKey,
		ExchangeKey:      req.ExchangeKey,
		Secret:           secret,
		Status:           StatusConnected,
		CreatedAt:        h.clock.Now().UTC(),
		ExchangeVerified: verified,
		NotifyPending:    true,
	}
	peers = append(peers, peer)
	if err := SavePeers(h.store, peers); err != nil {
		return nil, err
	}
	pending.RemoveIncoming(i)
	pending.RemoveOutgoing(peer.KeyHex())
	if err := pending.Save(h.store); err != nil {
		return nil, err
	}

	log := h.log.WithFields(logrus.Fields{
		"function":    "AcceptFriendRequest",
		"peer":        peer.Name,
		"fingerprint": peer.Fingerprint(),
		"verified":    verified,
	})
	log.Info("Accepted friend request")

	if err := h.notify(ctx, peer); err != nil {
		log = log.WithField("error", err.Error())
		if relay.IsRetryable(err) {
			log.Warn("Friend accept notice not delivered; will retry")
			return peer, fmt.Errorf("%w: %w", ErrNotifyFailed, err)
		}
		log.Error("Friend accept notice rejected; not retrying")
		peer.NotifyPending = false
		if serr := SavePeers(h.store, peers); serr != nil {
			return peer, serr
		}
		return peer, fmt.Errorf("%w: %w", ErrNotifyFailed, err)
	}
	peer.NotifyPending = false
	if err := SavePeers(h.store, peers); err != nil {
		return peer, err
	}
	return peer, nil
}

// notify sends the friend_accept notice under the peer's stored secret.
func (h *Handshake) notify(ctx context.Context, peer *Peer) error {
	proof, err := h.id.ExchangeProof()
	if err != nil {
		return err
	}
	notice := messaging.FriendAccept{
		Name:          h.id.Name,
		ExchangeKey:   h.id.ExchangeKeyHex(),
		ExchangeProof: proof.Hex(),
		AcceptedAt:    peer.CreatedAt,
	}
	_, err = h.relay.SendMessage(ctx, h.id, peer, notice)
	return err
}

// RetryNotifications resends friend_accept notices that previously failed.
// It returns how many were delivered; the first failure is returned after
// every pending notice has been tried. A notice the relay rejects for good
// is reported once and no longer pending.
func (h *Handshake) RetryNotifications(ctx context.Context) (int, error) {
	peers, err := LoadPeers(h.store)
	if err != nil {
		return 0, err
	}

	sent, dropped := 0, 0
	var firstErr error
	for _, p := range peers {
		if !p.NotifyPending {
			continue
		}
		if err := h.notify(ctx, p); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("notify %s: %w", p.Name, err)
			}
			if !relay.IsRetryable(err) {
				h.log.WithFields(logrus.Fields{
					"function": "RetryNotifications",
					"peer":     p.Name,
					"error":    err.Error(),
				}).Error("Friend accept notice rejected; not retrying")
				p.NotifyPending = false
				dropped++
			}
			continue
		}
		p.NotifyPending = false
		sent++
	}

	if sent+dropped > 0 {
		if err := SavePeers(h.store, peers); err != nil {
			return sent, err
		}
	}
	if sent > 0 {
		h.log.WithFields(logrus.Fields{
			"function": "RetryNotifications",
			"sent":     sent,
		}).Info("Delivered pending friend accept notices")
	}
	return sent, firstErr
}

// AwaitingAccept reports whether an outgoing request to keyHex is pending.
func (h *Handshake) AwaitingAccept(keyHex string) (bool, error) {
	pending, err := LoadPending(h.store)
	if err != nil {
		return false, err
	}
	return pending.OutgoingByKey(keyHex) != nil, nil
}

// HandleFriendAccept completes an outgoing request from a friend_accept
// envelope. The sender must match an outgoing request, the envelope must
// decrypt under the secret derived from its declared exchange key, and the
// notice must carry an exchange proof that verifies. The new peer is saved
// and returned.
func (h *Handshake) HandleFriendAccept(env relay.Envelope) (*Peer, error) {
	pending, err := LoadPending(h.store)
	if err != nil {
		return nil, err
	}
	out := pending.OutgoingByKey(env.From)
	if out == nil {
		return nil, fmt.Errorf("%w: no outgoing request to %.16s", relay.ErrUndecryptableMessage, env.From)
	}
	if env.FromExchangeKey == "" {
		return nil, fmt.Errorf("%w: accept notice without exchange key", relay.ErrMalformedEnvelope)
	}
	xkey, err := crypto.KeyFromHex(env.FromExchangeKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", relay.ErrMalformedEnvelope, err)
	}

	secret, err := crypto.DeriveSharedSecret(h.id.ExchangePrivate, xkey)
	if err != nil {
		return nil, fmt.Errorf("derive shared secret: %w", err)
	}
	content, err := relay.DecryptMessage(env, relay.StaticCounterparty{Key: out.PublicKey, Secret: secret}, h.requireSignatures)
	if err != nil {
		return nil, err
	}
	accept, ok := content.(messaging.FriendAccept)
	if !ok {
		return nil, fmt.Errorf("%w: %s from pending peer", ErrUnexpectedContent, content.ContentType())
	}
	if !strings.EqualFold(accept.ExchangeKey, env.FromExchangeKey) {
		return nil, fmt.Errorf("%w: exchange key in notice does not match envelope", crypto.ErrCryptoFailure)
	}

	if accept.ExchangeProof == "" {
		return nil, fmt.Errorf("exchange proof: %w: missing from accept notice", crypto.ErrInvalidSignature)
	}
	if _, err := verifyProof(out.PublicKey, accept.ExchangeKey, accept.ExchangeProof); err != nil {
		return nil, err
	}

	peers, err := LoadPeers(h.store)
	if err != nil {
		return nil, err
	}
	if existing := peers.ByKey(env.From); existing != nil {
		pending.RemoveOutgoing(env.From)
		return existing, pending.Save(h.store)
	}

	name := accept.Name
	if name == "" {
		name = out.Name
	}
	peer := &Peer{
		ID:               crypto.RandomID(),
		Name:             name,
		PublicKey:        out.PublicKey,
		ExchangeKey:      xkey,
		Secret:           secret,
		Status:           StatusConnected,
		CreatedAt:        h.clock.Now().UTC(),
		ExchangeVerified: true,
	}
	if err := SavePeers(h.store, append(peers, peer)); err != nil {
		return nil, err
	}
	pending.RemoveOutgoing(env.From)
	pending.DropIncomingFrom(env.From)
	if err := pending.Save(h.store); err != nil {
		return nil, err
	}

	h.log.WithFields(logrus.Fields{
		"function":    "HandleFriendAccept",
		"peer":        peer.Name,
		"fingerprint": peer.Fingerprint(),
	}).Info("Friend request accepted by peer")
	return peer, nil
}

func verifyProof(signer ed25519.PublicKey, exchangeHex, proofHex string) (bool, error) {
	if proofHex == "" {
		return false, nil
	}
	proof, err := crypto.SignatureFromHex(proofHex)
	if err != nil {
		return false, err
	}
	if !identity.VerifyExchangeProof(signer, exchangeHex, proof) {
		return false, fmt.Errorf("exchange proof: %w", crypto.ErrInvalidSignature)
	}
	return true, nil
}

// RemoveFriend deletes the peer matching query and returns it.
func (h *Handshake) RemoveFriend(query string) (*Peer, error) {
	peers, err := LoadPeers(h.store)
	if err != nil {
		return nil, err
	}
	p, err := peers.Lookup(query)
	if err != nil {
		return nil, err
	}
	if err := SavePeers(h.store, peers.Without(p.ID)); err != nil {
		return nil, err
	}
	h.log.WithFields(logrus.Fields{
		"function": "RemoveFriend",
		"peer":     p.Name,
	}).Info("Removed friend")
	return p, nil
}

func displayName(name, keyHex string) string {
	if name != "" {
		return name
	}
	return keyHex[:12]
}
