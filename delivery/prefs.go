package delivery

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	// Embedded zone data so timezone preferences work on hosts without it.
	_ "time/tzdata"

	"github.com/opd-ai/relaylink/store"
)

// PreferencesKey is the store key of the preference record.
const PreferencesKey = "preferences"

// Tone is the register used when rendering messages.
type Tone string

const (
	ToneFriendly     Tone = "friendly"
	ToneProfessional Tone = "professional"
	ToneCasual       Tone = "casual"
)

// Valid reports whether t is a known tone.
func (t Tone) Valid() bool {
	switch t {
	case ToneFriendly, ToneProfessional, ToneCasual:
		return true
	}
	return false
}

// GreetingStyle selects the greeting template family.
type GreetingStyle string

const (
	GreetingPersonal GreetingStyle = "personal"
	GreetingFormal   GreetingStyle = "formal"
	GreetingMinimal  GreetingStyle = "minimal"
)

// Valid reports whether g is a known greeting style.
func (g GreetingStyle) Valid() bool {
	switch g {
	case GreetingPersonal, GreetingFormal, GreetingMinimal:
		return true
	}
	return false
}

// Priority ranks a peer for batch delivery.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityNormal, PriorityHigh, PriorityLow:
		return true
	}
	return false
}

// ErrInvalidPreference is returned by setters for out-of-range values.
var ErrInvalidPreference = errors.New("invalid preference")

// QuietHours is a daily window during which non-urgent messages are held.
// Start and End are HH:MM wall-clock times in Timezone; a window with
// Start after End wraps past midnight. Timezone applies to every
// preference clock, including batch times.
type QuietHours struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Start    string `json:"start" yaml:"start"`
	End      string `json:"end" yaml:"end"`
	Timezone string `json:"timezone" yaml:"timezone"`
}

// BatchDelivery releases held messages at fixed daily times.
type BatchDelivery struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Times   []string `json:"times" yaml:"times"`
}

// Rules tune delivery and rendering.
type Rules struct {
	AllowUrgentDuringQuiet bool `json:"allow_urgent_during_quiet" yaml:"allow_urgent_during_quiet"`
	SummarizeLong          bool `json:"summarize_long" yaml:"summarize_long"`
	IncludeContext         bool `json:"include_context" yaml:"include_context"`
}

// PeerOverride customizes handling for one peer.
type PeerOverride struct {
	Priority      Priority `json:"priority,omitempty" yaml:"priority,omitempty"`
	AlwaysDeliver bool     `json:"always_deliver,omitempty" yaml:"always_deliver,omitempty"`
	Tone          Tone     `json:"tone,omitempty" yaml:"tone,omitempty"`
}

// Preferences is the process-wide delivery configuration. Overrides are
// keyed by the peer's hex signing key.
type Preferences struct {
	QuietHours QuietHours              `json:"quiet_hours" yaml:"quiet_hours"`
	Batch      BatchDelivery           `json:"batch" yaml:"batch"`
	Rules      Rules                   `json:"rules" yaml:"rules"`
	Tone       Tone                    `json:"tone" yaml:"tone"`
	Greeting   GreetingStyle           `json:"greeting" yaml:"greeting"`
	Overrides  map[string]PeerOverride `json:"overrides" yaml:"overrides"`
}

// DefaultPreferences returns the defaults used before anything is set:
// quiet hours and batching off, urgent messages allowed through, long
// messages summarized.
func DefaultPreferences() Preferences {
	return Preferences{
		QuietHours: QuietHours{Start: "22:00", End: "07:00", Timezone: "UTC"},
		Batch:      BatchDelivery{Times: []string{"09:00", "18:00"}},
		Rules: Rules{
			AllowUrgentDuringQuiet: true,
			SummarizeLong:          true,
			IncludeContext:         true,
		},
		Tone:      ToneFriendly,
		Greeting:  GreetingPersonal,
		Overrides: map[string]PeerOverride{},
	}
}

// Normalize fills unset fields with defaults.
func (p *Preferences) Normalize() {
	def := DefaultPreferences()
	if p.QuietHours.Start == "" {
		p.QuietHours.Start = def.QuietHours.Start
	}
	if p.QuietHours.End == "" {
		p.QuietHours.End = def.QuietHours.End
	}
	if p.QuietHours.Timezone == "" {
		p.QuietHours.Timezone = def.QuietHours.Timezone
	}
	if p.Batch.Times == nil {
		p.Batch.Times = def.Batch.Times
	}
	if p.Tone == "" {
		p.Tone = def.Tone
	}
	if p.Greeting == "" {
		p.Greeting = def.Greeting
	}
	if p.Overrides == nil {
		p.Overrides = map[string]PeerOverride{}
	}
}

// Validate checks every field.
func (p Preferences) Validate() error {
	if _, err := parseClock(p.QuietHours.Start); err != nil {
		return err
	}
	if _, err := parseClock(p.QuietHours.End); err != nil {
		return err
	}
	if _, err := time.LoadLocation(p.QuietHours.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q", ErrInvalidPreference, p.QuietHours.Timezone)
	}
	for _, t := range p.Batch.Times {
		if _, err := parseClock(t); err != nil {
			return err
		}
	}
	if p.Batch.Enabled && len(p.Batch.Times) == 0 {
		return fmt.Errorf("%w: batch delivery needs at least one time", ErrInvalidPreference)
	}
	if !p.Tone.Valid() {
		return fmt.Errorf("%w: tone %q", ErrInvalidPreference, p.Tone)
	}
	if !p.Greeting.Valid() {
		return fmt.Errorf("%w: greeting %q", ErrInvalidPreference, p.Greeting)
	}
	for key, o := range p.Overrides {
		if err := o.validate(); err != nil {
			return fmt.Errorf("override %.12s: %w", key, err)
		}
	}
	return nil
}

func (o PeerOverride) validate() error {
	if o.Priority != "" && !o.Priority.Valid() {
		return fmt.Errorf("%w: priority %q", ErrInvalidPreference, o.Priority)
	}
	if o.Tone != "" && !o.Tone.Valid() {
		return fmt.Errorf("%w: tone %q", ErrInvalidPreference, o.Tone)
	}
	return nil
}

// Location returns the configured timezone, falling back to UTC.
func (p Preferences) Location() *time.Location {
	loc, err := time.LoadLocation(p.QuietHours.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Override returns the override for a peer, or the zero value.
func (p Preferences) Override(peerKey string) PeerOverride {
	return p.Overrides[peerKey]
}

// ToneFor returns the peer's tone override, or the global tone.
func (p Preferences) ToneFor(peerKey string) Tone {
	if o, ok := p.Overrides[peerKey]; ok && o.Tone != "" {
		return o.Tone
	}
	return p.Tone
}

// Manager loads preferences and persists every mutation immediately.
type Manager struct {
	store store.Store
}

// NewManager returns a manager backed by s.
func NewManager(s store.Store) *Manager {
	return &Manager{store: s}
}

// Load returns the stored preferences, or the defaults if none are stored.
func (m *Manager) Load() (Preferences, error) {
	p := DefaultPreferences()
	if err := store.LoadOrDefault(m.store, PreferencesKey, &p); err != nil {
		return Preferences{}, fmt.Errorf("load preferences: %w", err)
	}
	p.Normalize()
	return p, nil
}

func (m *Manager) update(fn func(*Preferences) error) (Preferences, error) {
	p, err := m.Load()
	if err != nil {
		return Preferences{}, err
	}
	if err := fn(&p); err != nil {
		return Preferences{}, err
	}
	if err := p.Validate(); err != nil {
		return Preferences{}, err
	}
	if err := m.store.Save(PreferencesKey, p); err != nil {
		return Preferences{}, fmt.Errorf("save preferences: %w", err)
	}
	return p, nil
}

// SetQuietHours enables quiet hours from start to end (HH:MM) in timezone.
// An empty timezone keeps the current one.
func (m *Manager) SetQuietHours(start, end, timezone string) (Preferences, error) {
	return m.update(func(p *Preferences) error {
		p.QuietHours.Enabled = true
		p.QuietHours.Start = strings.TrimSpace(start)
		p.QuietHours.End = strings.TrimSpace(end)
		if tz := strings.TrimSpace(timezone); tz != "" {
			p.QuietHours.Timezone = tz
		}
		return nil
	})
}

// DisableQuietHours turns quiet hours off, keeping the configured window.
func (m *Manager) DisableQuietHours() (Preferences, error) {
	return m.update(func(p *Preferences) error {
		p.QuietHours.Enabled = false
		return nil
	})
}

// SetBatchTimes enables batch delivery at the given HH:MM times.
func (m *Manager) SetBatchTimes(times []string) (Preferences, error) {
	return m.update(func(p *Preferences) error {
		cleaned := make([]string, 0, len(times))
		seen := map[string]bool{}
		for _, t := range times {
			t = strings.TrimSpace(t)
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			cleaned = append(cleaned, t)
		}
		sort.Strings(cleaned)
		p.Batch.Enabled = true
		p.Batch.Times = cleaned
		return nil
	})
}

// DisableBatch turns batch delivery off.
func (m *Manager) DisableBatch() (Preferences, error) {
	return m.update(func(p *Preferences) error {
		p.Batch.Enabled = false
		return nil
	})
}

// SetTone sets the global tone.
func (m *Manager) SetTone(t Tone) (Preferences, error) {
	return m.update(func(p *Preferences) error {
		p.Tone = t
		return nil
	})
}

// SetGreeting sets the greeting style.
func (m *Manager) SetGreeting(g GreetingStyle) (Preferences, error) {
	return m.update(func(p *Preferences) error {
		p.Greeting = g
		return nil
	})
}

// SetRules replaces the delivery rules.
func (m *Manager) SetRules(r Rules) (Preferences, error) {
	return m.update(func(p *Preferences) error {
		p.Rules = r
		return nil
	})
}

// SetPeerOverride sets the override for the peer with hex signing key
// peerKey.
func (m *Manager) SetPeerOverride(peerKey string, o PeerOverride) (Preferences, error) {
	return m.update(func(p *Preferences) error {
		if peerKey == "" {
			return fmt.Errorf("%w: empty peer key", ErrInvalidPreference)
		}
		if o.Priority == "" {
			o.Priority = PriorityNormal
		}
		p.Overrides[peerKey] = o
		return nil
	})
}

// ClearPeerOverride removes a peer's override.
func (m *Manager) ClearPeerOverride(peerKey string) (Preferences, error) {
	return m.update(func(p *Preferences) error {
		delete(p.Overrides, peerKey)
		return nil
	})
}
