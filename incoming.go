package relaylink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/relaylink/crypto"
	"github.com/opd-ai/relaylink/delivery"
	"github.com/opd-ai/relaylink/friend"
	"github.com/opd-ai/relaylink/messaging"
	"github.com/opd-ai/relaylink/metrics"
	"github.com/opd-ai/relaylink/relay"
	"github.com/sirupsen/logrus"
)

// Incoming is the result of one poll-and-decrypt cycle.
type Incoming struct {
	// Requests are friend requests seen for the first time.
	Requests []friend.IncomingRequest
	// Messages are decrypted messages from connected peers.
	Messages []delivery.Item
	// Accepted are peers that accepted one of our requests.
	Accepted []*friend.Peer
	// Errors holds the failures of sub-operations that did not stop the
	// cycle.
	Errors []error
}

// ProcessIncoming fetches friend requests and polls messages, then decrypts
// what arrived. A failure in one sub-operation is recorded in Errors and does
// not prevent the other from running. Envelopes that fail authentication are
// dropped and logged at debug level.
func (n *Node) ProcessIncoming(ctx context.Context) (*Incoming, error) {
	var in *Incoming
	err := n.locked(func() error {
		var err error
		in, err = n.processIncoming(ctx)
		return err
	})
	return in, err
}

func (n *Node) processIncoming(ctx context.Context) (*Incoming, error) {
	in := &Incoming{}

	var (
		wg       sync.WaitGroup
		requests []friend.IncomingRequest
		reqErr   error
		envs     []relay.Envelope
		pollErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		requests, reqErr = n.handshake.FetchFriendRequests(ctx)
	}()
	go func() {
		defer wg.Done()
		envs, pollErr = n.client.PollMessages(ctx, n.id)
	}()
	wg.Wait()

	if reqErr != nil {
		n.subError(in, "FetchFriendRequests", reqErr)
	} else {
		in.Requests = requests
		n.metrics.Request(metrics.OutcomeReceived, len(requests))
	}
	if pollErr != nil {
		n.subError(in, "PollMessages", pollErr)
		return in, nil
	}

	if err := n.openEnvelopes(in, envs); err != nil {
		return nil, err
	}
	return in, nil
}

// openEnvelopes decrypts envs not seen before. Only store failures are
// returned; per-envelope problems are logged or recorded in in.Errors.
func (n *Node) openEnvelopes(in *Incoming, envs []relay.Envelope) error {
	now := n.clock.Now()
	processed, err := loadProcessed(n.store, now)
	if err != nil {
		return err
	}
	peers, err := friend.LoadPeers(n.store)
	if err != nil {
		return err
	}

	for _, env := range envs {
		if env.ID == "" || processed.Has(env.ID) {
			continue
		}
		log := n.log.WithFields(logrus.Fields{
			"function": "ProcessIncoming",
			"envelope": env.ID,
		})
		if processed.Stale(env.Timestamp, now) {
			log.Debug("Skipping envelope past relay retention")
			continue
		}
		stamp := receivedAt(env, now)

		peer := peers.ByKey(env.From)
		if peer == nil {
			accepted, err := n.acceptNotice(env)
			switch {
			case err == nil && accepted == nil:
				log.WithField("error", fmt.Errorf("%w: unknown sender", relay.ErrUndecryptableMessage).Error()).
					Debug("Dropping envelope")
				n.metrics.Message(metrics.OutcomeDropped, 1)
			case err == nil:
				peers = append(peers, accepted)
				in.Accepted = append(in.Accepted, accepted)
			case isDroppable(err):
				log.WithField("error", err.Error()).Debug("Dropping friend accept notice")
				n.metrics.Message(metrics.OutcomeDropped, 1)
			default:
				in.Errors = append(in.Errors, fmt.Errorf("envelope %s: %w", env.ID, err))
				continue
			}
			processed.Add(env.ID, stamp.Unix())
			continue
		}

		content, err := relay.DecryptMessage(env, peer, n.options.RequireSignatures)
		if err != nil {
			log.WithField("error", err.Error()).Debug("Dropping envelope")
			n.metrics.Message(metrics.OutcomeDropped, 1)
			processed.Add(env.ID, stamp.Unix())
			continue
		}

		switch c := content.(type) {
		case messaging.Message:
			in.Messages = append(in.Messages, delivery.Item{
				EnvelopeID: env.ID,
				PeerKey:    env.From,
				PeerName:   peer.Name,
				Message:    c,
				ReceivedAt: stamp,
			})
		case messaging.FriendAccept:
			log.Debug("Ignoring repeated friend accept notice")
		}
		processed.Add(env.ID, stamp.Unix())
	}

	return processed.save(n.store)
}

// acceptNotice handles an envelope from a sender that is not a peer. It
// returns nil, nil when no request to the sender is outstanding.
func (n *Node) acceptNotice(env relay.Envelope) (*friend.Peer, error) {
	awaiting, err := n.handshake.AwaitingAccept(env.From)
	if err != nil || !awaiting {
		return nil, err
	}
	return n.handshake.HandleFriendAccept(env)
}

// isDroppable reports whether err comes from bad input rather than from
// local state, so retrying the envelope cannot succeed.
func isDroppable(err error) bool {
	for _, target := range []error{
		crypto.ErrCryptoFailure,
		relay.ErrUndecryptableMessage,
		relay.ErrMalformedEnvelope,
		messaging.ErrMalformedContent,
		messaging.ErrUnknownContentType,
		friend.ErrUnexpectedContent,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (n *Node) subError(in *Incoming, op string, err error) {
	n.relayError(err)
	entry := n.log.WithFields(logrus.Fields{
		"function": op,
		"error":    err.Error(),
	})
	if errors.Is(err, relay.ErrRelayUnavailable) {
		entry.Warn("Relay unavailable; will retry next tick")
	} else {
		entry.Error("Sub-operation failed")
	}
	in.Errors = append(in.Errors, fmt.Errorf("%s: %w", op, err))
}

func receivedAt(env relay.Envelope, now time.Time) time.Time {
	if env.Timestamp > 0 {
		return time.Unix(env.Timestamp, 0).UTC()
	}
	return now.UTC()
}
