// Package memrelay is an in-memory implementation of the relay HTTP contract
// for local development and integration tests.
//
// It verifies send and request signatures, authenticates polls with signed
// timestamps, expires items after a TTL and rate-limits writes per sender
// key. Each sender may hold a bounded number of bytes in a recipient's
// mailbox. Polling does not delete messages; clients deduplicate by id and
// drain large mailboxes page by page.
package memrelay

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/relaylink/crypto"
	"github.com/opd-ai/relaylink/limits"
	"github.com/opd-ai/relaylink/relay"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	// Version is reported by /health.
	Version = "memrelay/1"
	// DefaultTTL is how long messages and requests are retained.
	DefaultTTL = relay.MessageTTL
	// DefaultMaxSkew bounds the age of a signed poll timestamp.
	DefaultMaxSkew = 5 * time.Minute
	// DefaultMailboxQuota is the number of ciphertext bytes one sender may
	// keep queued for one recipient.
	DefaultMailboxQuota = 8 << 20
	// DefaultPageSize is the most messages returned by one poll.
	DefaultPageSize = 500
	// pageBytes bounds the encoded size of one poll page, well under the
	// client's response limit.
	pageBytes = limits.MaxWirePayload / 4
)

type storedMessage struct {
	seq  uint64
	to   string
	env  relay.Envelope
	at   time.Time
	size int
}

func mailbox(from, to string) string { return from + ">" + to }

type storedRequest struct {
	to  string
	req relay.IncomingRequest
	at  time.Time
}

// Server is an http.Handler serving the relay contract from memory.
type Server struct {
	mu       sync.Mutex
	messages []storedMessage
	requests []storedRequest
	seq      uint64
	usage    map[string]int

	clock    crypto.TimeProvider
	ttl      time.Duration
	maxSkew  time.Duration
	quota    int
	pageSize int
	limiter  *keyLimiter
	log      *logrus.Entry
	mux      *http.ServeMux

	received *prometheus.CounterVec
	rejected *prometheus.CounterVec
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the server clock.
func WithClock(tp crypto.TimeProvider) Option {
	return func(s *Server) { s.clock = tp }
}

// WithTTL sets the retention period.
func WithTTL(ttl time.Duration) Option {
	return func(s *Server) { s.ttl = ttl }
}

// WithRateLimit limits writes per sender key. Non-positive values disable it.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) { s.limiter = newKeyLimiter(rps, burst) }
}

// WithMailboxQuota bounds the ciphertext bytes one sender may keep queued
// for one recipient. Non-positive values disable it.
func WithMailboxQuota(bytes int) Option {
	return func(s *Server) { s.quota = bytes }
}

// WithPageSize sets the most messages returned by one poll.
func WithPageSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithLogger sets the server log entry.
func WithLogger(entry *logrus.Entry) Option {
	return func(s *Server) { s.log = entry }
}

// WithRegisterer registers the server's counters on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Server) {
		reg.MustRegister(s.received, s.rejected)
	}
}

// New returns an empty relay.
func New(opts ...Option) *Server {
	s := &Server{
		usage:    make(map[string]int),
		clock:    crypto.DefaultTimeProvider{},
		ttl:      DefaultTTL,
		maxSkew:  DefaultMaxSkew,
		quota:    DefaultMailboxQuota,
		pageSize: DefaultPageSize,
		limiter:  newKeyLimiter(20, 40),
		log:      logrus.WithField("component", "memrelay"),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memrelay_items_received_total",
			Help: "Messages and friend requests accepted by the relay.",
		}, []string{"kind"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memrelay_requests_rejected_total",
			Help: "Relay calls rejected, by reason.",
		}, []string{"reason"}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("POST /send", s.handleSend)
	s.mux.HandleFunc("GET /poll", s.handlePoll)
	s.mux.HandleFunc("POST /request", s.handleRequest)
	s.mux.HandleFunc("GET /requests", s.handleRequests)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, limits.MaxWirePayload)
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req relay.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.reject(w, http.StatusBadRequest, "bad_body", "invalid request body")
		return
	}
	if req.To == "" || req.Nonce == "" || req.Ciphertext == "" {
		s.reject(w, http.StatusBadRequest, "missing_field", "from, to, ciphertext, nonce and signature are required")
		return
	}
	if _, err := relay.DecodePublicKey(req.To); err != nil {
		s.reject(w, http.StatusBadRequest, "bad_key", "invalid recipient key")
		return
	}
	if _, err := crypto.NonceFromString(req.Nonce); err != nil {
		s.reject(w, http.StatusBadRequest, "bad_nonce", "invalid nonce")
		return
	}
	if err := relay.VerifySendSignature(req); err != nil {
		s.reject(w, http.StatusUnauthorized, "bad_signature", "signature verification failed")
		return
	}

	now := s.clock.Now()
	if !s.limiter.allow(req.From, now) {
		s.reject(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
		return
	}

	env := relay.Envelope{
		ID:              uuid.NewString(),
		From:            req.From,
		Ciphertext:      req.Ciphertext,
		Nonce:           req.Nonce,
		Timestamp:       now.Unix(),
		Signature:       req.Signature,
		FromExchangeKey: req.FromExchangeKey,
	}
	size := len(req.Ciphertext)
	box := mailbox(req.From, req.To)

	s.mu.Lock()
	s.expireLocked(now)
	if s.quota > 0 && s.usage[box]+size > s.quota {
		s.mu.Unlock()
		s.reject(w, http.StatusTooManyRequests, "mailbox_full", "recipient mailbox quota exceeded")
		return
	}
	s.seq++
	s.messages = append(s.messages, storedMessage{seq: s.seq, to: req.To, env: env, at: now, size: size})
	s.usage[box] += size
	s.mu.Unlock()

	s.received.WithLabelValues("message").Inc()
	writeJSON(w, http.StatusOK, relay.SendResponse{ID: env.ID, Timestamp: env.Timestamp})
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	key, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var after uint64
	if c := r.URL.Query().Get(relay.QueryCursor); c != "" {
		v, err := strconv.ParseUint(c, 10, 64)
		if err != nil {
			s.reject(w, http.StatusBadRequest, "bad_cursor", "invalid cursor")
			return
		}
		after = v
	}
	limit := s.pageSize
	if l := r.URL.Query().Get(relay.QueryLimit); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v <= 0 {
			s.reject(w, http.StatusBadRequest, "bad_limit", "invalid limit")
			return
		}
		limit = min(v, s.pageSize)
	}
	now := s.clock.Now()

	resp := relay.PollResponse{Messages: make([]relay.Envelope, 0)}
	s.mu.Lock()
	s.expireLocked(now)
	var last uint64
	budget := pageBytes
	for _, m := range s.messages {
		if m.to != key || m.seq <= after {
			continue
		}
		cost := envelopeSize(m.env)
		if len(resp.Messages) == limit || (len(resp.Messages) > 0 && cost > budget) {
			resp.Next = strconv.FormatUint(last, 10)
			break
		}
		resp.Messages = append(resp.Messages, m.env)
		budget -= cost
		last = m.seq
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// envelopeSize approximates the JSON encoding of env.
func envelopeSize(env relay.Envelope) int {
	return 160 + len(env.ID) + len(env.From) + len(env.Ciphertext) + len(env.Nonce) +
		len(env.Signature) + len(env.FromExchangeKey)
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	var req relay.FriendRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.reject(w, http.StatusBadRequest, "bad_body", "invalid request body")
		return
	}
	if _, err := relay.DecodePublicKey(req.To); err != nil {
		s.reject(w, http.StatusBadRequest, "bad_key", "invalid recipient key")
		return
	}
	if req.From == req.To {
		s.reject(w, http.StatusBadRequest, "self_request", "cannot send a friend request to yourself")
		return
	}
	if _, err := crypto.KeyFromHex(req.FromExchangeKey); err != nil {
		s.reject(w, http.StatusBadRequest, "bad_key", "invalid exchange key")
		return
	}
	if err := limits.ValidateDisplayName(req.FromName); err != nil {
		s.reject(w, http.StatusBadRequest, "bad_name", err.Error())
		return
	}
	if err := limits.ValidateRequestMessage(req.Message); err != nil {
		s.reject(w, http.StatusBadRequest, "bad_message", err.Error())
		return
	}
	if err := relay.VerifyRequestSignature(req.From, req.To, req.FromName, req.Message, req.Signature); err != nil {
		s.reject(w, http.StatusUnauthorized, "bad_signature", "signature verification failed")
		return
	}

	now := s.clock.Now()
	if !s.limiter.allow(req.From, now) {
		s.reject(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
		return
	}

	in := relay.IncomingRequest{
		ID:              uuid.NewString(),
		From:            req.From,
		FromName:        req.FromName,
		FromExchangeKey: req.FromExchangeKey,
		Message:         req.Message,
		Signature:       req.Signature,
		ExchangeProof:   req.ExchangeProof,
		Timestamp:       now.Unix(),
	}

	s.mu.Lock()
	s.expireLocked(now)
	replaced := false
	for i := range s.requests {
		// A repeated request from the same sender replaces the earlier one.
		if s.requests[i].to == req.To && s.requests[i].req.From == req.From {
			in.ID = s.requests[i].req.ID
			s.requests[i] = storedRequest{to: req.To, req: in, at: now}
			replaced = true
			break
		}
	}
	if !replaced {
		s.requests = append(s.requests, storedRequest{to: req.To, req: in, at: now})
	}
	s.mu.Unlock()

	s.received.WithLabelValues("request").Inc()
	writeJSON(w, http.StatusOK, relay.RequestResponse{ID: in.ID})
}

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	key, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	now := s.clock.Now()

	s.mu.Lock()
	s.expireLocked(now)
	out := make([]relay.IncomingRequest, 0)
	for _, sr := range s.requests {
		if sr.to == key {
			out = append(out, sr.req)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	writeJSON(w, http.StatusOK, relay.RequestsResponse{Requests: out})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, relay.Health{Status: "ok", Version: Version})
}

// authenticate checks the signed-timestamp headers and returns the caller's key.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := r.Header.Get(relay.HeaderKey)
	ts, err := relay.VerifyPollAuth(key, r.Header.Get(relay.HeaderTimestamp), r.Header.Get(relay.HeaderSignature))
	if err != nil {
		if errors.Is(err, relay.ErrMalformedEnvelope) {
			s.reject(w, http.StatusBadRequest, "bad_auth", "missing or malformed auth headers")
		} else {
			s.reject(w, http.StatusUnauthorized, "bad_signature", "signature verification failed")
		}
		return "", false
	}
	skew := s.clock.Now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > s.maxSkew {
		s.reject(w, http.StatusUnauthorized, "stale_timestamp", "timestamp outside allowed window")
		return "", false
	}
	return key, true
}

// expireLocked drops items older than the TTL. Callers hold s.mu.
func (s *Server) expireLocked(now time.Time) {
	cutoff := now.Add(-s.ttl)
	msgs := s.messages[:0]
	for _, m := range s.messages {
		if m.at.After(cutoff) {
			msgs = append(msgs, m)
			continue
		}
		box := mailbox(m.env.From, m.to)
		if s.usage[box] -= m.size; s.usage[box] <= 0 {
			delete(s.usage, box)
		}
	}
	s.messages = msgs

	reqs := s.requests[:0]
	for _, r := range s.requests {
		if r.at.After(cutoff) {
			reqs = append(reqs, r)
		}
	}
	s.requests = reqs
}

func (s *Server) reject(w http.ResponseWriter, status int, reason, message string) {
	s.rejected.WithLabelValues(reason).Inc()
	s.log.WithFields(logrus.Fields{"status": status, "reason": reason}).Debug("Rejected relay call")
	writeJSON(w, status, relay.ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
