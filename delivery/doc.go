// Package delivery decides when a received message reaches its recipient.
//
// Evaluate is a pure function of the message, the sender's override and the
// current Preferences. In order:
//
//  1. an always-deliver override delivers;
//  2. inside quiet hours only urgent messages deliver, and only when the
//     rules allow it; everything else is held with reason quiet_hours;
//  3. with batch delivery on, high-priority senders and urgent messages
//     deliver, as does anything arriving within the tolerance of a batch
//     time; everything else is held with reason batch_window;
//  4. otherwise the message delivers.
//
// Held messages go to a Queue persisted in the Store. Engine.Release flushes
// the queue at most once per call when a batch window is open, and otherwise
// re-evaluates each held message so that, for example, quiet-hours holds are
// released once quiet hours end.
package delivery
