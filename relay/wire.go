package relay

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/opd-ai/relaylink/crypto"
)

// SendRequest is the body of POST /send.
type SendRequest struct {
	From            string `json:"from"`
	To              string `json:"to"`
	Ciphertext      string `json:"ciphertext"`
	Nonce           string `json:"nonce"`
	Signature       string `json:"signature"`
	FromExchangeKey string `json:"from_exchange_key,omitempty"`
}

// SendResponse is returned by POST /send.
type SendResponse struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

// Envelope is one message returned by GET /poll.
type Envelope struct {
	ID              string `json:"id"`
	From            string `json:"from"`
	Ciphertext      string `json:"ciphertext"`
	Nonce           string `json:"nonce"`
	Timestamp       int64  `json:"timestamp"`
	Signature       string `json:"signature,omitempty"`
	FromExchangeKey string `json:"from_exchange_key,omitempty"`
}

// PollResponse is returned by GET /poll. A non-empty Next means more
// messages are waiting; pass it back as the cursor query parameter.
type PollResponse struct {
	Messages []Envelope `json:"messages"`
	Next     string     `json:"next,omitempty"`
}

// FriendRequestPayload is the body of POST /request.
type FriendRequestPayload struct {
	From            string `json:"from"`
	To              string `json:"to"`
	FromName        string `json:"from_name"`
	FromExchangeKey string `json:"from_exchange_key"`
	Message         string `json:"message"`
	Signature       string `json:"signature"`
	ExchangeProof   string `json:"exchange_proof,omitempty"`
}

// RequestResponse is returned by POST /request.
type RequestResponse struct {
	ID string `json:"id"`
}

// IncomingRequest is one request returned by GET /requests.
type IncomingRequest struct {
	ID              string `json:"id"`
	From            string `json:"from"`
	FromName        string `json:"from_name"`
	FromExchangeKey string `json:"from_exchange_key"`
	Message         string `json:"message"`
	Signature       string `json:"signature,omitempty"`
	ExchangeProof   string `json:"exchange_proof,omitempty"`
	Timestamp       int64  `json:"timestamp,omitempty"`
}

// RequestsResponse is returned by GET /requests.
type RequestsResponse struct {
	Requests []IncomingRequest `json:"requests"`
}

// Health is returned by GET /health.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is the body of any non-2xx relay response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Poll authentication headers.
const (
	HeaderKey       = "X-Key"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
)

// Poll paging query parameters.
const (
	QueryCursor = "cursor"
	QueryLimit  = "limit"
)

// MessageTTL is how long a relay keeps messages and friend requests.
const MessageTTL = 7 * 24 * time.Hour

// RequestSignPayload is the canonical byte string a friend request signs.
func RequestSignPayload(from, to, fromName, message string) []byte {
	return []byte(from + ":" + to + ":" + fromName + ":" + message)
}

// PollSignPayload is the byte string signed to authenticate a poll or
// request fetch at unix time ts.
func PollSignPayload(ts int64) []byte {
	return []byte("poll:" + strconv.FormatInt(ts, 10))
}

// VerifyRequestSignature checks the signature of a friend request addressed
// to the given recipient.
func VerifyRequestSignature(from, to, fromName, message, signatureHex string) error {
	pub, err := decodePublicKey(from)
	if err != nil {
		return err
	}
	sig, err := crypto.SignatureFromHex(signatureHex)
	if err != nil {
		return err
	}
	if !crypto.Verify(RequestSignPayload(from, to, fromName, message), sig, pub) {
		return crypto.ErrInvalidSignature
	}
	return nil
}

// VerifySendSignature checks that a send request's ciphertext was signed by
// its claimed sender.
func VerifySendSignature(req SendRequest) error {
	pub, err := decodePublicKey(req.From)
	if err != nil {
		return err
	}
	ct, err := base64.StdEncoding.DecodeString(req.Ciphertext)
	if err != nil {
		return fmt.Errorf("%w: ciphertext: %v", ErrMalformedEnvelope, err)
	}
	sig, err := crypto.SignatureFromHex(req.Signature)
	if err != nil {
		return err
	}
	if !crypto.Verify(ct, sig, pub) {
		return crypto.ErrInvalidSignature
	}
	return nil
}

// VerifyPollAuth checks the signed-timestamp headers of a poll.
func VerifyPollAuth(keyHex, timestamp, signatureHex string) (int64, error) {
	pub, err := decodePublicKey(keyHex)
	if err != nil {
		return 0, err
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: timestamp: %v", ErrMalformedEnvelope, err)
	}
	sig, err := crypto.SignatureFromHex(signatureHex)
	if err != nil {
		return 0, err
	}
	if !crypto.Verify(PollSignPayload(ts), sig, pub) {
		return 0, crypto.ErrInvalidSignature
	}
	return ts, nil
}
