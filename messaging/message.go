package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opd-ai/relaylink/crypto"
	"github.com/opd-ai/relaylink/limits"
)

// ContentType discriminates decrypted content.
type ContentType string

const (
	// TypeMessage is an ordinary text message.
	TypeMessage ContentType = "message"
	// TypeFriendAccept notifies a requester that their request was accepted.
	TypeFriendAccept ContentType = "friend_accept"
)

// MaxContextLength bounds the free-form context tag on a message.
const MaxContextLength = 64

var (
	// ErrUnknownContentType is returned for a discriminator this build does
	// not understand.
	ErrUnknownContentType = errors.New("unknown content type")
	// ErrMalformedContent is returned for content that does not decode or
	// fails validation.
	ErrMalformedContent = errors.New("malformed content")
)

// Content is implemented by Message and FriendAccept only.
type Content interface {
	ContentType() ContentType
	Validate() error
	sealed()
}

// Message is an ordinary text message.
type Message struct {
	Text      string     `json:"text"`
	Urgent    bool       `json:"urgent,omitempty"`
	Context   string     `json:"context,omitempty"`
	RespondBy *time.Time `json:"respond_by,omitempty"`
	SentAt    time.Time  `json:"sent_at"`
}

// ContentType implements Content.
func (Message) ContentType() ContentType { return TypeMessage }

func (Message) sealed() {}

// Validate checks the message text and context tag.
func (m Message) Validate() error {
	if err := limits.ValidateMessageText(m.Text); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedContent, err)
	}
	if len(m.Context) > MaxContextLength {
		return fmt.Errorf("%w: context tag exceeds %d bytes", ErrMalformedContent, MaxContextLength)
	}
	return nil
}

// MarshalJSON emits the message with its type discriminator.
func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	return json.Marshal(struct {
		Type ContentType `json:"type"`
		plain
	}{TypeMessage, plain(m)})
}

// FriendAccept is sent by the acceptor of a friend request under the freshly
// derived shared secret. It carries the acceptor's exchange key and a proof
// binding that key to the acceptor's signing identity.
type FriendAccept struct {
	Name          string    `json:"from_name"`
	ExchangeKey   string    `json:"exchange_key"`
	ExchangeProof string    `json:"exchange_proof,omitempty"`
	AcceptedAt    time.Time `json:"accepted_at"`
}

// ContentType implements Content.
func (FriendAccept) ContentType() ContentType { return TypeFriendAccept }

func (FriendAccept) sealed() {}

// Validate checks the acceptor's name and key encodings.
func (a FriendAccept) Validate() error {
	if err := limits.ValidateDisplayName(a.Name); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedContent, err)
	}
	if _, err := crypto.KeyFromHex(a.ExchangeKey); err != nil {
		return fmt.Errorf("%w: exchange key: %v", ErrMalformedContent, err)
	}
	if a.ExchangeProof != "" {
		if _, err := crypto.SignatureFromHex(a.ExchangeProof); err != nil {
			return fmt.Errorf("%w: exchange proof: %v", ErrMalformedContent, err)
		}
	}
	return nil
}

// MarshalJSON emits the notice with its type discriminator.
func (a FriendAccept) MarshalJSON() ([]byte, error) {
	type plain FriendAccept
	return json.Marshal(struct {
		Type ContentType `json:"type"`
		plain
	}{TypeFriendAccept, plain(a)})
}

// Unmarshal decodes content by its discriminator and validates it.
func Unmarshal(data []byte) (Content, error) {
	var head struct {
		Type ContentType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContent, err)
	}

	var c Content
	switch head.Type {
	case TypeMessage:
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedContent, err)
		}
		c = m
	case TypeFriendAccept:
		var a FriendAccept
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedContent, err)
		}
		c = a
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedContent)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownContentType, head.Type)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
