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

// PendingKey is the store key of the pending-requests record.
const PendingKey = "pending_requests"

// OutgoingStatusSent is the only status this node assigns an outgoing request.
const OutgoingStatusSent = "sent"

// ErrRequestNotFound is returned when no incoming request matches a lookup.
var ErrRequestNotFound = errors.New("friend request not found")

// OutgoingRequest is a request this node sent. The peer transitions it
// remotely; locally it is removed once the peer's friend_accept arrives.
type OutgoingRequest struct {
	Name      string            `json:"name"`
	PublicKey ed25519.PublicKey `json:"public_key"`
	RelayID   string            `json:"relay_id,omitempty"`
	Message   string            `json:"message,omitempty"`
	SentAt    time.Time         `json:"sent_at"`
	Status    string            `json:"status"`
}

// KeyHex returns the recipient's signing key in relay encoding.
func (o OutgoingRequest) KeyHex() string { return hex.EncodeToString(o.PublicKey) }

// IncomingRequest is a request discovered by polling. It is removed only when
// accepted.
type IncomingRequest struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	PublicKey     ed25519.PublicKey `json:"public_key"`
	ExchangeKey   crypto.Key        `json:"exchange_key"`
	ExchangeProof string            `json:"exchange_proof,omitempty"`
	Message       string            `json:"message"`
	ReceivedAt    time.Time         `json:"received_at"`
	// Signed is set when the request carried a signature that verified.
	Signed bool `json:"signed"`
}

// KeyHex returns the sender's signing key in relay encoding.
func (r IncomingRequest) KeyHex() string { return hex.EncodeToString(r.PublicKey) }

// Pending holds both directions of unanswered requests.
type Pending struct {
	Incoming []IncomingRequest `json:"incoming"`
	Outgoing []OutgoingRequest `json:"outgoing"`
}

// LoadPending reads the pending record. A missing record is empty.
func LoadPending(s store.Store) (*Pending, error) {
	p := &Pending{}
	if err := store.LoadOrDefault(s, PendingKey, p); err != nil {
		return nil, fmt.Errorf("load pending requests: %w", err)
	}
	return p, nil
}

// Save writes the pending record.
func (p *Pending) Save(s store.Store) error {
	if p.Incoming == nil {
		p.Incoming = []IncomingRequest{}
	}
	if p.Outgoing == nil {
		p.Outgoing = []OutgoingRequest{}
	}
	if err := s.Save(PendingKey, p); err != nil {
		return fmt.Errorf("save pending requests: %w", err)
	}
	return nil
}

// AddIncoming records r unless a request with the same id is known. A new
// request from a known sender replaces the older one. It reports whether r
// was new.
func (p *Pending) AddIncoming(r IncomingRequest) bool {
	for i, existing := range p.Incoming {
		if existing.ID == r.ID {
			return false
		}
		if existing.KeyHex() == r.KeyHex() {
			p.Incoming[i] = r
			return true
		}
	}
	p.Incoming = append(p.Incoming, r)
	return true
}

// FindIncoming resolves an incoming request by relay id or sender name.
func (p *Pending) FindIncoming(query string) (int, error) {
	i, err := Resolve(p.Incoming, query, func(r IncomingRequest) (string, string) { return r.ID, r.Name })
	if errors.Is(err, errNoMatch) {
		return -1, fmt.Errorf("%w: %q", ErrRequestNotFound, query)
	}
	return i, err
}

// RemoveIncoming drops the request at index i.
func (p *Pending) RemoveIncoming(i int) {
	p.Incoming = append(p.Incoming[:i], p.Incoming[i+1:]...)
}

// AddOutgoing records an outgoing request, replacing any earlier one to the
// same key.
func (p *Pending) AddOutgoing(o OutgoingRequest) {
	for i, existing := range p.Outgoing {
		if existing.KeyHex() == o.KeyHex() {
			p.Outgoing[i] = o
			return
		}
	}
	p.Outgoing = append(p.Outgoing, o)
}

// OutgoingByKey returns the outgoing request to keyHex, or nil.
func (p *Pending) OutgoingByKey(keyHex string) *OutgoingRequest {
	for i := range p.Outgoing {
		if p.Outgoing[i].KeyHex() == keyHex {
			return &p.Outgoing[i]
		}
	}
	return nil
}

// RemoveOutgoing drops the outgoing request to keyHex.
func (p *Pending) RemoveOutgoing(keyHex string) {
	out := p.Outgoing[:0]
	for _, o := range p.Outgoing {
		if o.KeyHex() != keyHex {
			out = append(out, o)
		}
	}
	p.Outgoing = out
}

// DropIncomingFrom removes every incoming request from keyHex.
func (p *Pending) DropIncomingFrom(keyHex string) {
	in := p.Incoming[:0]
	for _, r := range p.Incoming {
		if r.KeyHex() != keyHex {
			in = append(in, r)
		}
	}
	p.Incoming = in
}
