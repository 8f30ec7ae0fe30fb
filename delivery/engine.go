package delivery

import (
	"time"

	"github.com/opd-ai/relaylink/crypto"
	"github.com/opd-ai/relaylink/messaging"
	"github.com/sirupsen/logrus"
)

// DefaultBatchTolerance is how close to a batch time counts as inside it.
const DefaultBatchTolerance = 5 * time.Minute

// Reason explains a delivery decision.
type Reason string

const (
	ReasonAlwaysDeliver Reason = "always_deliver"
	ReasonUrgent        Reason = "urgent"
	ReasonHighPriority  Reason = "high_priority"
	ReasonBatchTime     Reason = "batch_time"
	ReasonDefault       Reason = "default"
	ReasonQuietHours    Reason = "quiet_hours"
	ReasonBatchWindow   Reason = "batch_window"
)

// Item is a decrypted message awaiting a delivery decision.
type Item struct {
	EnvelopeID string            `json:"envelope_id"`
	PeerKey    string            `json:"peer_key"`
	PeerName   string            `json:"peer_name"`
	Message    messaging.Message `json:"message"`
	ReceivedAt time.Time         `json:"received_at"`
}

// Verdict is the outcome of Evaluate.
type Verdict struct {
	Deliver bool
	Reason  Reason
}

// Evaluate decides whether item is delivered now or held.
func Evaluate(p Preferences, item Item, now time.Time, tolerance time.Duration) Verdict {
	override := p.Override(item.PeerKey)
	if override.AlwaysDeliver {
		return Verdict{Deliver: true, Reason: ReasonAlwaysDeliver}
	}

	loc := p.Location()
	urgent := item.Message.Urgent

	if InQuietHours(p.QuietHours, now, loc) {
		if urgent && p.Rules.AllowUrgentDuringQuiet {
			return Verdict{Deliver: true, Reason: ReasonUrgent}
		}
		return Verdict{Deliver: false, Reason: ReasonQuietHours}
	}

	if p.Batch.Enabled {
		switch {
		case override.Priority == PriorityHigh:
			return Verdict{Deliver: true, Reason: ReasonHighPriority}
		case InBatchWindow(p.Batch, now, loc, tolerance):
			return Verdict{Deliver: true, Reason: ReasonBatchTime}
		case urgent:
			return Verdict{Deliver: true, Reason: ReasonUrgent}
		default:
			return Verdict{Deliver: false, Reason: ReasonBatchWindow}
		}
	}

	return Verdict{Deliver: true, Reason: ReasonDefault}
}

// Result is the outcome of one Engine pass.
type Result struct {
	// Deliver holds new items to surface now.
	Deliver []Item
	// Released holds previously held messages surfaced now.
	Released []HeldMessage
	// Held holds new items deferred by this pass.
	Held []HeldMessage
	// Flushed is set when a batch window emptied the whole queue.
	Flushed bool
}

// Engine applies Evaluate to incoming items and manages the held queue.
type Engine struct {
	prefs     *Manager
	queue     *Queue
	clock     crypto.TimeProvider
	tolerance time.Duration
	log       *logrus.Entry
}

// NewEngine returns an engine. A zero tolerance uses DefaultBatchTolerance.
func NewEngine(prefs *Manager, queue *Queue, clock crypto.TimeProvider, tolerance time.Duration) *Engine {
	if clock == nil {
		clock = crypto.DefaultTimeProvider{}
	}
	if tolerance <= 0 {
		tolerance = DefaultBatchTolerance
	}
	return &Engine{
		prefs:     prefs,
		queue:     queue,
		clock:     clock,
		tolerance: tolerance,
		log:       logrus.WithField("component", "delivery"),
	}
}

// Release surfaces held messages that may now be delivered. Inside a batch
// window outside quiet hours the queue is flushed whole, once; otherwise
// each held message is re-evaluated and its hold reason refreshed.
func (e *Engine) Release() (released []HeldMessage, flushed bool, err error) {
	p, err := e.prefs.Load()
	if err != nil {
		return nil, false, err
	}
	return e.release(p, e.clock.Now())
}

func (e *Engine) release(p Preferences, now time.Time) ([]HeldMessage, bool, error) {
	loc := p.Location()
	if InBatchWindow(p.Batch, now, loc, e.tolerance) && !InQuietHours(p.QuietHours, now, loc) {
		held, err := e.queue.Flush()
		if err != nil {
			return nil, false, err
		}
		if len(held) > 0 {
			e.log.WithFields(logrus.Fields{
				"function": "Release",
				"count":    len(held),
			}).Info("Batch window reached; flushing held messages")
		}
		return held, len(held) > 0, nil
	}

	released, err := e.queue.Sweep(func(h *HeldMessage) bool {
		v := Evaluate(p, h.Item, now, e.tolerance)
		if !v.Deliver {
			h.Reason = v.Reason
		}
		return v.Deliver
	})
	return released, false, err
}

// Process releases what the queue allows, then evaluates each new item and
// either returns it for delivery or holds it.
func (e *Engine) Process(items []Item) (*Result, error) {
	p, err := e.prefs.Load()
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()

	released, flushed, err := e.release(p, now)
	if err != nil {
		return nil, err
	}
	res := &Result{Released: released, Flushed: flushed}

	for _, it := range items {
		v := Evaluate(p, it, now, e.tolerance)
		if v.Deliver {
			res.Deliver = append(res.Deliver, it)
			continue
		}
		res.Held = append(res.Held, HeldMessage{Item: it, Reason: v.Reason, HeldAt: now.UTC()})
		e.log.WithFields(logrus.Fields{
			"function": "Process",
			"peer":     it.PeerName,
			"reason":   v.Reason,
		}).Debug("Holding message")
	}

	if err := e.queue.Hold(res.Held...); err != nil {
		return nil, err
	}
	return res, nil
}
