package friend

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/opd-ai/relaylink/crypto"
	"github.com/opd-ai/relaylink/store"
)

// PeersKey is the store key of the peer list.
const PeersKey = "peers"

// Status is the state of an established relationship.
type Status string

// StatusConnected is the only state a Peer record can hold.
const StatusConnected Status = "connected"

var (
	// ErrAlreadyFriends is returned when the target is already a Peer.
	ErrAlreadyFriends = errors.New("already friends")
	// ErrUnknownFriend is returned when no Peer matches a lookup.
	ErrUnknownFriend = errors.New("unknown friend")
)

// Peer is an established relationship.
type Peer struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	PublicKey   ed25519.PublicKey `json:"public_key"`
	ExchangeKey crypto.Key        `json:"exchange_key"`
	Secret      crypto.Key        `json:"shared_secret"`
	Status      Status            `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`

	// ExchangeVerified is set when the peer proved possession of its
	// exchange key.
	ExchangeVerified bool `json:"exchange_verified"`
	// NotifyPending is set while our friend_accept notice is undelivered.
	NotifyPending bool `json:"notify_pending,omitempty"`
}

// SigningKey implements relay.Counterparty.
func (p *Peer) SigningKey() ed25519.PublicKey { return p.PublicKey }

// SharedSecret implements relay.Counterparty.
func (p *Peer) SharedSecret() crypto.Key { return p.Secret }

// KeyHex returns the peer's signing key in relay encoding.
func (p *Peer) KeyHex() string { return hex.EncodeToString(p.PublicKey) }

// Fingerprint returns a short digest of the peer's signing key for
// out-of-band comparison.
func (p *Peer) Fingerprint() string { return crypto.Fingerprint(p.PublicKey) }

// Peers is the persisted peer list.
type Peers []*Peer

// LoadPeers reads the peer list. A missing record is an empty list.
func LoadPeers(s store.Store) (Peers, error) {
	var peers Peers
	if err := store.LoadOrDefault(s, PeersKey, &peers); err != nil {
		return nil, fmt.Errorf("load peers: %w", err)
	}
	return peers, nil
}

// SavePeers writes the peer list.
func SavePeers(s store.Store, peers Peers) error {
	if peers == nil {
		peers = Peers{}
	}
	if err := s.Save(PeersKey, peers); err != nil {
		return fmt.Errorf("save peers: %w", err)
	}
	return nil
}

// ByKey returns the peer with the given hex signing key, or nil.
func (ps Peers) ByKey(keyHex string) *Peer {
	for _, p := range ps {
		if p.KeyHex() == keyHex {
			return p
		}
	}
	return nil
}

// Lookup resolves a peer by id or name. See Resolve for the match order.
func (ps Peers) Lookup(query string) (*Peer, error) {
	i, err := Resolve(ps, query, func(p *Peer) (string, string) { return p.ID, p.Name })
	if errors.Is(err, errNoMatch) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFriend, query)
	}
	if err != nil {
		return nil, err
	}
	return ps[i], nil
}

// Without returns the list minus the peer with the given id.
func (ps Peers) Without(id string) Peers {
	out := make(Peers, 0, len(ps))
	for _, p := range ps {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}
