// Package style renders delivered content as human-readable text according
// to the recipient's tone and greeting preferences.
package style

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/opd-ai/relaylink/delivery"
	"github.com/opd-ai/relaylink/messaging"
)

const (
	// DefaultSummaryThreshold is the body length, in runes, above which a
	// summary is prepended when summarizing is enabled.
	DefaultSummaryThreshold = 280
	// summaryLength caps a summary that has no sentence break.
	summaryLength = 100
)

// greetings is keyed by greeting style then tone. %s is the sender name.
var greetings = map[delivery.GreetingStyle]map[delivery.Tone]string{
	delivery.GreetingPersonal: {
		delivery.ToneFriendly:     "Hey! %s sent you a message:",
		delivery.ToneProfessional: "%s sent you a message:",
		delivery.ToneCasual:       "yo, %s says:",
	},
	delivery.GreetingFormal: {
		delivery.ToneFriendly:     "You have a new message from %s.",
		delivery.ToneProfessional: "Message received from %s.",
		delivery.ToneCasual:       "New message from %s.",
	},
	delivery.GreetingMinimal: {
		delivery.ToneFriendly:     "%s:",
		delivery.ToneProfessional: "%s:",
		delivery.ToneCasual:       "%s:",
	},
}

// Formatter renders content for one evaluation cycle.
type Formatter struct {
	prefs            delivery.Preferences
	now              time.Time
	SummaryThreshold int
}

// NewFormatter returns a formatter using prefs, with relative times measured
// from now.
func NewFormatter(prefs delivery.Preferences, now time.Time) *Formatter {
	prefs.Normalize()
	return &Formatter{prefs: prefs, now: now, SummaryThreshold: DefaultSummaryThreshold}
}

// Greeting returns the greeting line for a sender, honoring the sender's
// tone override.
func (f *Formatter) Greeting(peerKey, name string) string {
	byTone, ok := greetings[f.prefs.Greeting]
	if !ok {
		byTone = greetings[delivery.GreetingPersonal]
	}
	tmpl, ok := byTone[f.prefs.ToneFor(peerKey)]
	if !ok {
		tmpl = byTone[delivery.ToneFriendly]
	}
	return fmt.Sprintf(tmpl, name)
}

// Message renders a single delivered message.
func (f *Formatter) Message(item delivery.Item) string {
	var b strings.Builder
	b.WriteString(f.Greeting(item.PeerKey, item.PeerName))
	b.WriteByte('\n')
	f.writeBody(&b, item, "")
	return b.String()
}

func (f *Formatter) writeBody(b *strings.Builder, item delivery.Item, indent string) {
	if badges := f.Badges(item.Message); badges != "" {
		b.WriteString(indent + badges + "\n")
	}
	if s, ok := f.Summary(item.Message.Text); ok {
		b.WriteString(indent + "Summary: " + s + "\n")
	}
	for _, line := range strings.Split(item.Message.Text, "\n") {
		b.WriteString(indent + line + "\n")
	}
	b.WriteString(indent + "(" + f.Humanize(sentAt(item)) + ")")
}

func sentAt(item delivery.Item) time.Time {
	if !item.Message.SentAt.IsZero() {
		return item.Message.SentAt
	}
	return item.ReceivedAt
}

// Badges returns the urgency, context and deadline badges for m, or "".
func (f *Formatter) Badges(m messaging.Message) string {
	var badges []string
	if m.Urgent {
		badges = append(badges, "[URGENT]")
	}
	if f.prefs.Rules.IncludeContext && m.Context != "" {
		badges = append(badges, "[#"+m.Context+"]")
	}
	if m.RespondBy != nil {
		badges = append(badges, "[reply by "+m.RespondBy.In(f.prefs.Location()).Format("Mon Jan 2 15:04")+"]")
	}
	return strings.Join(badges, " ")
}

// Summary returns a one-line summary of text when summarizing is enabled and
// text exceeds the threshold: its first sentence, or its first 100 runes.
func (f *Formatter) Summary(text string) (string, bool) {
	if !f.prefs.Rules.SummarizeLong || utf8.RuneCountInString(text) <= f.SummaryThreshold {
		return "", false
	}
	flat := strings.Join(strings.Fields(text), " ")
	if i := sentenceEnd(flat); i > 0 && utf8.RuneCountInString(flat[:i]) <= summaryLength {
		return flat[:i], true
	}
	runes := []rune(flat)
	if len(runes) > summaryLength {
		return strings.TrimSpace(string(runes[:summaryLength])) + "...", true
	}
	return flat, true
}

// sentenceEnd returns the byte index just past the first sentence
// terminator followed by a space, or -1.
func sentenceEnd(s string) int {
	for i := 0; i+1 < len(s); i++ {
		switch s[i] {
		case '.', '!', '?':
			if s[i+1] == ' ' {
				return i + 1
			}
		}
	}
	return -1
}

// Humanize renders t relative to the formatter's now.
func (f *Formatter) Humanize(t time.Time) string {
	d := f.now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute") + " ago"
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour") + " ago"
	default:
		return t.In(f.prefs.Location()).Format("Jan 2, 2006 at 15:04")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// FriendRequest renders an incoming friend request.
func (f *Formatter) FriendRequest(name, message, fingerprint string) string {
	var b strings.Builder
	switch f.prefs.Tone {
	case delivery.ToneProfessional:
		fmt.Fprintf(&b, "Friend request from %s.", name)
	case delivery.ToneCasual:
		fmt.Fprintf(&b, "%s wants to connect", name)
	default:
		fmt.Fprintf(&b, "%s would like to be your friend!", name)
	}
	if fingerprint != "" {
		fmt.Fprintf(&b, " [%s]", fingerprint)
	}
	if message = strings.TrimSpace(message); message != "" {
		fmt.Fprintf(&b, "\n%q", message)
	}
	fmt.Fprintf(&b, "\nAccept with: accept %s", name)
	return b.String()
}

// Accepted renders the notice that a peer accepted our request.
func (f *Formatter) Accepted(name string) string {
	switch f.prefs.Tone {
	case delivery.ToneProfessional:
		return fmt.Sprintf("%s accepted your friend request. You can now exchange messages.", name)
	case delivery.ToneCasual:
		return fmt.Sprintf("%s is in! say hi", name)
	default:
		return fmt.Sprintf("Good news: %s accepted your friend request!", name)
	}
}

// Batch renders held messages as a numbered digest. A single message is
// rendered as an ordinary message.
func (f *Formatter) Batch(items []delivery.Item) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return f.Message(items[0])
	}

	var b strings.Builder
	switch f.prefs.Tone {
	case delivery.ToneProfessional:
		fmt.Fprintf(&b, "%d messages were held for delivery:", len(items))
	case delivery.ToneCasual:
		fmt.Fprintf(&b, "%d messages piled up:", len(items))
	default:
		fmt.Fprintf(&b, "You have %d messages waiting:", len(items))
	}
	for i, it := range items {
		fmt.Fprintf(&b, "\n\n%d. %s\n", i+1, it.PeerName)
		f.writeBody(&b, it, "   ")
	}
	return b.String()
}
