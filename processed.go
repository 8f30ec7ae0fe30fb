package relaylink

import (
	"time"

	"github.com/opd-ai/relaylink/relay"
	"github.com/opd-ai/relaylink/store"
)

const (
	processedKey = "processed"
	// processedRetention outlives the relay's retention window with a day
	// of slack for clock skew between node and relay.
	processedRetention = relay.MessageTTL + 24*time.Hour
)

type processedEntry struct {
	ID string `json:"id"`
	At int64  `json:"at"`
}

// processedSet remembers envelope ids already handled, each with the
// envelope timestamp. Ids are forgotten only once the relay can no longer
// serve the envelope.
type processedSet struct {
	Entries []processedEntry `json:"entries"`
	// IDs holds records written before entries carried timestamps. They
	// are migrated on load.
	IDs []string `json:"ids,omitempty"`

	index map[string]struct{}
	dirty bool
}

func loadProcessed(s store.Store, now time.Time) (*processedSet, error) {
	ps := &processedSet{}
	if err := store.LoadOrDefault(s, processedKey, ps); err != nil {
		return nil, err
	}
	for _, id := range ps.IDs {
		ps.Entries = append(ps.Entries, processedEntry{ID: id, At: now.Unix()})
		ps.dirty = true
	}
	ps.IDs = nil
	ps.prune(now)

	ps.index = make(map[string]struct{}, len(ps.Entries))
	for _, e := range ps.Entries {
		ps.index[e.ID] = struct{}{}
	}
	return ps, nil
}

func (ps *processedSet) Has(id string) bool {
	_, ok := ps.index[id]
	return ok
}

// Stale reports whether an envelope timestamp lies outside the retention
// window. Such an envelope may already have been pruned and must not be
// opened again.
func (ps *processedSet) Stale(ts int64, now time.Time) bool {
	return ts > 0 && ts < now.Add(-processedRetention).Unix()
}

func (ps *processedSet) Add(id string, at int64) {
	if ps.Has(id) {
		return
	}
	ps.Entries = append(ps.Entries, processedEntry{ID: id, At: at})
	ps.index[id] = struct{}{}
	ps.dirty = true
}

func (ps *processedSet) prune(now time.Time) {
	cutoff := now.Add(-processedRetention).Unix()
	kept := ps.Entries[:0]
	for _, e := range ps.Entries {
		if e.At >= cutoff {
			kept = append(kept, e)
			continue
		}
		delete(ps.index, e.ID)
		ps.dirty = true
	}
	ps.Entries = kept
}

func (ps *processedSet) save(s store.Store) error {
	if !ps.dirty {
		return nil
	}
	if err := s.Save(processedKey, ps); err != nil {
		return err
	}
	ps.dirty = false
	return nil
}
