package relay

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRelayUnavailable covers network errors, timeouts and 5xx responses.
	// Callers retry on the next tick.
	ErrRelayUnavailable = errors.New("relay unavailable")
	// ErrRelayRejected covers 4xx responses. It is surfaced once and not
	// retried, except for 429 (see IsRetryable).
	ErrRelayRejected = errors.New("relay rejected request")
	// ErrMalformedEnvelope is returned for wire data that does not decode.
	ErrMalformedEnvelope = errors.New("malformed envelope")
	// ErrUndecryptableMessage is returned when an envelope's sender is unknown
	// or its authentication fails.
	ErrUndecryptableMessage = errors.New("undecryptable message")
)

// Error describes a failed relay call.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("relay %s: %v (status %d): %s", e.Op, e.Err, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("relay %s: %v: %s", e.Op, e.Err, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient relay failure. A 429 is
// a rejection that clears with time, so it counts as transient.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRelayUnavailable) {
		return true
	}
	var rerr *Error
	return errors.As(err, &rerr) && rerr.StatusCode == http.StatusTooManyRequests
}
