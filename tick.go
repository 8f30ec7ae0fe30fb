package relaylink

import (
	"context"
	"errors"
	"fmt"

	"github.com/opd-ai/relaylink/crypto"
	"github.com/opd-ai/relaylink/delivery"
	"github.com/opd-ai/relaylink/friend"
	"github.com/opd-ai/relaylink/metrics"
	"github.com/opd-ai/relaylink/store"
	"github.com/opd-ai/relaylink/style"
	"github.com/sirupsen/logrus"
)

// TickResult is everything one Tick produced.
type TickResult struct {
	Requests  []friend.IncomingRequest
	Accepted  []*friend.Peer
	Delivered []delivery.Item
	Released  []delivery.HeldMessage
	Held      []delivery.HeldMessage
	// Flushed is set when a batch window released the whole queue.
	Flushed bool
	// Notified counts friend accept notices resent this tick.
	Notified int
	// Output is the formatted text, ready to display, in order: new
	// requests, acceptances, released messages, then new messages.
	Output []string
	// Errors holds sub-operation failures. They are retried next tick.
	Errors []error
}

// Tick runs one scheduling cycle: resend pending accept notices, process
// incoming traffic, apply delivery preferences and format the result. It
// returns an error only when local state cannot be read or written; relay
// failures land in TickResult.Errors.
func (n *Node) Tick(ctx context.Context) (*TickResult, error) {
	var res *TickResult
	err := n.locked(func() error {
		var err error
		res, err = n.tick(ctx)
		return err
	})
	return res, err
}

func (n *Node) tick(ctx context.Context) (*TickResult, error) {
	res := &TickResult{}

	sent, err := n.handshake.RetryNotifications(ctx)
	res.Notified = sent
	if err != nil {
		n.relayError(err)
		n.log.WithFields(logrus.Fields{
			"function": "Tick",
			"error":    err.Error(),
		}).Warn("Friend accept notice retry failed")
		res.Errors = append(res.Errors, fmt.Errorf("RetryNotifications: %w", err))
	}

	in, err := n.processIncoming(ctx)
	if err != nil {
		return nil, err
	}
	res.Requests = in.Requests
	res.Accepted = in.Accepted
	res.Errors = append(res.Errors, in.Errors...)

	out, err := n.engine.Process(in.Messages)
	if err != nil {
		return nil, fmt.Errorf("apply delivery preferences: %w", err)
	}
	res.Delivered = out.Deliver
	res.Released = out.Released
	res.Held = out.Held
	res.Flushed = out.Flushed

	n.metrics.Message(metrics.OutcomeDelivered, len(out.Deliver))
	n.metrics.Message(metrics.OutcomeReleased, len(out.Released))
	n.metrics.Message(metrics.OutcomeHeld, len(out.Held))
	if held, err := n.queue.Len(); err == nil {
		n.metrics.SetHeld(held)
	}

	if err := n.render(res); err != nil {
		return nil, err
	}

	n.log.WithFields(logrus.Fields{
		"function":  "Tick",
		"requests":  len(res.Requests),
		"accepted":  len(res.Accepted),
		"delivered": len(res.Delivered),
		"released":  len(res.Released),
		"held":      len(res.Held),
		"errors":    len(res.Errors),
	}).Debug("Tick complete")
	return res, nil
}

func (n *Node) render(res *TickResult) error {
	prefs, err := n.prefs.Load()
	if err != nil {
		return err
	}
	f := style.NewFormatter(prefs, n.clock.Now())
	f.SummaryThreshold = n.options.SummaryThreshold

	for _, r := range res.Requests {
		res.Output = append(res.Output, f.FriendRequest(r.Name, r.Message, crypto.Fingerprint(r.PublicKey)))
	}
	for _, p := range res.Accepted {
		res.Output = append(res.Output, f.Accepted(p.Name))
	}
	if len(res.Released) > 0 {
		items := make([]delivery.Item, len(res.Released))
		for i, h := range res.Released {
			items[i] = h.Item
		}
		res.Output = append(res.Output, f.Batch(items))
	}
	for _, it := range res.Delivered {
		res.Output = append(res.Output, f.Message(it))
	}
	return nil
}

// Err joins the tick's sub-operation errors, or returns nil.
func (r *TickResult) Err() error {
	return errors.Join(r.Errors...)
}

func (n *Node) locked(fn func() error) error {
	return store.WithLock(n.store, fn)
}
