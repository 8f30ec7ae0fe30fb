package delivery

import (
	"fmt"
	"time"

	"github.com/opd-ai/relaylink/store"
)

// HeldKey is the store key of the held-message queue.
const HeldKey = "held_messages"

// HeldMessage is an item deferred by Evaluate.
type HeldMessage struct {
	Item   Item      `json:"item"`
	Reason Reason    `json:"reason"`
	HeldAt time.Time `json:"held_at"`
}

// Queue is the persisted, ordered list of held messages.
type Queue struct {
	store store.Store
}

// NewQueue returns a queue backed by s.
func NewQueue(s store.Store) *Queue {
	return &Queue{store: s}
}

// List returns the held messages in the order they were held.
func (q *Queue) List() ([]HeldMessage, error) {
	var held []HeldMessage
	if err := store.LoadOrDefault(q.store, HeldKey, &held); err != nil {
		return nil, fmt.Errorf("load held messages: %w", err)
	}
	return held, nil
}

// Len returns the number of held messages.
func (q *Queue) Len() (int, error) {
	held, err := q.List()
	return len(held), err
}

// Hold appends messages to the queue.
func (q *Queue) Hold(msgs ...HeldMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	held, err := q.List()
	if err != nil {
		return err
	}
	return q.save(append(held, msgs...))
}

// Flush empties the queue and returns everything that was in it. A second
// Flush returns nothing.
func (q *Queue) Flush() ([]HeldMessage, error) {
	held, err := q.List()
	if err != nil {
		return nil, err
	}
	if len(held) == 0 {
		return nil, nil
	}
	if err := q.save(nil); err != nil {
		return nil, err
	}
	return held, nil
}

// Sweep calls decide for each held message in order. Messages for which
// decide returns release are removed and returned; the rest are kept with
// whatever changes decide made to them.
func (q *Queue) Sweep(decide func(*HeldMessage) (release bool)) ([]HeldMessage, error) {
	held, err := q.List()
	if err != nil {
		return nil, err
	}
	if len(held) == 0 {
		return nil, nil
	}

	var released []HeldMessage
	kept := make([]HeldMessage, 0, len(held))
	for i := range held {
		if decide(&held[i]) {
			released = append(released, held[i])
		} else {
			kept = append(kept, held[i])
		}
	}
	if err := q.save(kept); err != nil {
		return nil, err
	}
	return released, nil
}

func (q *Queue) save(held []HeldMessage) error {
	if held == nil {
		held = []HeldMessage{}
	}
	if err := q.store.Save(HeldKey, held); err != nil {
		return fmt.Errorf("save held messages: %w", err)
	}
	return nil
}
