package relay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/opd-ai/relaylink/crypto"
	"github.com/opd-ai/relaylink/identity"
	"github.com/opd-ai/relaylink/limits"
	"github.com/opd-ai/relaylink/messaging"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds each relay call.
const DefaultTimeout = 15 * time.Second

// Client talks to one relay. It holds no per-identity state and is safe for
// concurrent use.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	timeout time.Duration
	clock   crypto.TimeProvider
	log     *logrus.Entry
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithTimeProvider sets the clock used for signed poll timestamps.
func WithTimeProvider(tp crypto.TimeProvider) Option {
	return func(c *Client) { c.clock = tp }
}

// WithLogger sets the log entry used by the client.
func WithLogger(entry *logrus.Entry) Option {
	return func(c *Client) { c.log = entry }
}

// NewClient returns a client for the relay at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid relay URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid relay URL %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid relay URL %q: missing host", baseURL)
	}

	c := &Client{
		baseURL: u,
		http:    http.DefaultClient,
		timeout: DefaultTimeout,
		clock:   crypto.DefaultTimeProvider{},
		log:     logrus.WithField("component", "relay"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Receipt acknowledges a published message.
type Receipt struct {
	ID        string
	Timestamp time.Time
}

// SendMessage encrypts content for peer, signs the ciphertext with the local
// identity and publishes it.
func (c *Client) SendMessage(ctx context.Context, id *identity.Identity, peer Counterparty, content messaging.Content) (*Receipt, error) {
	if err := content.Validate(); err != nil {
		return nil, err
	}

	nonce, ct, err := crypto.Encrypt(content, peer.SharedSecret())
	if err != nil {
		return nil, fmt.Errorf("encrypt message: %w", err)
	}
	sig, err := id.Sign(ct)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}

	req := SendRequest{
		From:            id.PublicKeyHex(),
		To:              EncodePublicKey(peer.SigningKey()),
		Ciphertext:      base64.StdEncoding.EncodeToString(ct),
		Nonce:           nonce.String(),
		Signature:       sig.Hex(),
		FromExchangeKey: id.ExchangeKeyHex(),
	}

	var resp SendResponse
	if err := c.do(ctx, "send", http.MethodPost, "/send", req, nil, &resp); err != nil {
		return nil, err
	}
	return &Receipt{ID: resp.ID, Timestamp: time.Unix(resp.Timestamp, 0).UTC()}, nil
}

// maxPollPages stops a relay that never ends a poll from holding a tick.
const maxPollPages = 1024

// PollMessages returns every unexpired envelope addressed to the identity,
// following the relay's paging cursor until the mailbox is drained. Expired
// messages are simply absent.
func (c *Client) PollMessages(ctx context.Context, id *identity.Identity) ([]Envelope, error) {
	var (
		out    []Envelope
		cursor string
	)
	for page := 0; page < maxPollPages; page++ {
		headers, err := c.pollHeaders(id)
		if err != nil {
			return nil, err
		}
		path := "/poll"
		if cursor != "" {
			path += "?" + url.Values{QueryCursor: {cursor}}.Encode()
		}
		var resp PollResponse
		if err := c.do(ctx, "poll", http.MethodGet, path, nil, headers, &resp); err != nil {
			return nil, err
		}
		out = append(out, resp.Messages...)
		if resp.Next == "" {
			return out, nil
		}
		if resp.Next == cursor {
			return nil, fmt.Errorf("%w: poll cursor %q did not advance", ErrMalformedEnvelope, cursor)
		}
		cursor = resp.Next
	}
	c.log.WithFields(logrus.Fields{
		"op":       "poll",
		"pages":    maxPollPages,
		"messages": len(out),
	}).Warn("Poll stopped before the mailbox was drained")
	return out, nil
}

// SubmitFriendRequest publishes a signed friend request and returns its id.
func (c *Client) SubmitFriendRequest(ctx context.Context, req FriendRequestPayload) (string, error) {
	var resp RequestResponse
	if err := c.do(ctx, "request", http.MethodPost, "/request", req, nil, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// FetchFriendRequests returns the friend requests addressed to the identity.
func (c *Client) FetchFriendRequests(ctx context.Context, id *identity.Identity) ([]IncomingRequest, error) {
	headers, err := c.pollHeaders(id)
	if err != nil {
		return nil, err
	}
	var resp RequestsResponse
	if err := c.do(ctx, "requests", http.MethodGet, "/requests", nil, headers, &resp); err != nil {
		return nil, err
	}
	return resp.Requests, nil
}

// CheckHealth queries the relay status. It is diagnostic only.
func (c *Client) CheckHealth(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, "health", http.MethodGet, "/health", nil, nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) pollHeaders(id *identity.Identity) (http.Header, error) {
	ts := c.clock.Now().Unix()
	sig, err := id.Sign(PollSignPayload(ts))
	if err != nil {
		return nil, fmt.Errorf("sign poll: %w", err)
	}
	h := http.Header{}
	h.Set(HeaderKey, id.PublicKeyHex())
	h.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	h.Set(HeaderSignature, sig.Hex())
	return h, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, headers http.Header, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		if err := limits.ValidateSize(data, limits.MaxWirePayload); err != nil {
			return fmt.Errorf("%s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	path, query, _ := strings.Cut(path, "?")
	target := c.baseURL.JoinPath(path)
	target.RawQuery = query

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		rerr := &Error{Op: op, Message: err.Error(), Err: ErrRelayUnavailable}
		c.log.WithFields(logrus.Fields{"op": op, "error": err.Error()}).Warn("Relay unreachable")
		return rerr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, limits.MaxWirePayload+1))
	if err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: err.Error(), Err: ErrRelayUnavailable}
	}
	if len(data) > limits.MaxWirePayload {
		return &Error{Op: op, StatusCode: resp.StatusCode, Message: "response too large", Err: ErrRelayUnavailable}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rerr := &Error{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(data, resp.Status)}
		if resp.StatusCode >= 500 {
			rerr.Err = ErrRelayUnavailable
			c.log.WithFields(logrus.Fields{"op": op, "status": resp.StatusCode}).Warn("Relay unavailable")
		} else {
			rerr.Err = ErrRelayRejected
			c.log.WithFields(logrus.Fields{
				"op":     op,
				"status": resp.StatusCode,
				"reason": rerr.Message,
			}).Error("Relay rejected request")
		}
		return rerr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s response: %v", ErrMalformedEnvelope, op, err)
	}
	return nil
}

// errorMessage extracts the relay's error text, falling back to the body or
// the HTTP status line.
func errorMessage(body []byte, status string) string {
	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		return er.Error
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) < 512 {
		return text
	}
	return status
}
