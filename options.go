package relaylink

import (
	"net/http"
	"time"

	"github.com/opd-ai/relaylink/crypto"
	"github.com/opd-ai/relaylink/delivery"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Options contains the configuration for a Node.
type Options struct {
	// RelayURL is the base URL of the relay, e.g. https://relay.example.org.
	RelayURL string
	// Timeout bounds each relay call. A timed out call counts as the relay
	// being unavailable.
	Timeout time.Duration
	// BatchTolerance is how close to a batch time counts as inside it.
	BatchTolerance time.Duration
	// SummaryThreshold is the body length above which a summary is shown.
	SummaryThreshold int
	// RequireSignatures drops unsigned envelopes and requests instead of
	// relying on authenticated decryption alone.
	RequireSignatures bool

	Clock      crypto.TimeProvider
	Logger     *logrus.Entry
	Registerer prometheus.Registerer
	HTTPClient *http.Client
}

// NewOptions creates a new Options instance with default values.
func NewOptions() *Options {
	return &Options{
		RelayURL:         "http://localhost:8787",
		Timeout:          15 * time.Second,
		BatchTolerance:   delivery.DefaultBatchTolerance,
		SummaryThreshold: 280,
		Clock:            crypto.DefaultTimeProvider{},
		Logger:           logrus.WithField("component", "relaylink"),
	}
}

func (o *Options) withDefaults() *Options {
	d := NewOptions()
	if o == nil {
		return d
	}
	out := *o
	if out.RelayURL == "" {
		out.RelayURL = d.RelayURL
	}
	if out.Timeout <= 0 {
		out.Timeout = d.Timeout
	}
	if out.BatchTolerance <= 0 {
		out.BatchTolerance = d.BatchTolerance
	}
	if out.SummaryThreshold <= 0 {
		out.SummaryThreshold = d.SummaryThreshold
	}
	if out.Clock == nil {
		out.Clock = d.Clock
	}
	if out.Logger == nil {
		out.Logger = d.Logger
	}
	return &out
}
