// Package metrics exposes prometheus counters for the per-tick cycle. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Message outcomes.
const (
	OutcomeDelivered = "delivered"
	OutcomeHeld      = "held"
	OutcomeReleased  = "released"
	OutcomeDropped   = "dropped"
)

// Request outcomes.
const (
	OutcomeReceived = "received"
	OutcomeAccepted = "accepted"
	OutcomeSent     = "sent"
)

// Metrics holds the node's collectors.
type Metrics struct {
	Messages    *prometheus.CounterVec
	Requests    *prometheus.CounterVec
	RelayErrors *prometheus.CounterVec
	Held        prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg returns
// nil, which disables metrics.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}
	m := &Metrics{
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relaylink_messages_total",
			Help: "Inbound messages by outcome.",
		}, []string{"outcome"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relaylink_requests_total",
			Help: "Friend requests by outcome.",
		}, []string{"outcome"}),
		RelayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relaylink_relay_errors_total",
			Help: "Failed relay calls by operation.",
		}, []string{"op"}),
		Held: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relaylink_held_messages",
			Help: "Messages currently held by delivery preferences.",
		}),
	}
	for _, c := range []prometheus.Collector{m.Messages, m.Requests, m.RelayErrors, m.Held} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Message counts n messages with the given outcome.
func (m *Metrics) Message(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Messages.WithLabelValues(outcome).Add(float64(n))
}

// Request counts n friend requests with the given outcome.
func (m *Metrics) Request(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Requests.WithLabelValues(outcome).Add(float64(n))
}

// RelayError counts a failed relay call.
func (m *Metrics) RelayError(op string) {
	if m == nil {
		return
	}
	m.RelayErrors.WithLabelValues(op).Inc()
}

// SetHeld records the current held-queue length.
func (m *Metrics) SetHeld(n int) {
	if m == nil {
		return
	}
	m.Held.Set(float64(n))
}
