package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/opd-ai/relaylink"
	"github.com/opd-ai/relaylink/delivery"
	"github.com/opd-ai/relaylink/friend"
	"github.com/opd-ai/relaylink/store"
	"gopkg.in/yaml.v3"
)

type commands struct {
	node  *relaylink.Node
	store store.Store
}

func (c *commands) add(ctx context.Context, cmd *addCmd) error {
	out, err := c.node.AddFriend(ctx, cmd.Link, cmd.Message)
	if err != nil {
		return err
	}
	fmt.Printf("Friend request sent to %s.\n", out.Name)
	return nil
}

func (c *commands) requests() error {
	p, err := c.node.PendingRequests()
	if err != nil {
		return err
	}
	if len(p.Incoming) == 0 && len(p.Outgoing) == 0 {
		fmt.Println("No pending requests.")
		return nil
	}
	for _, r := range p.Incoming {
		fmt.Printf("from  %-20s id=%s  received %s\n", r.Name, r.ID, r.ReceivedAt.Local().Format(time.DateTime))
		if r.Message != "" {
			fmt.Printf("      %q\n", r.Message)
		}
	}
	for _, o := range p.Outgoing {
		fmt.Printf("to    %-20s sent %s\n", o.Name, o.SentAt.Local().Format(time.DateTime))
	}
	return nil
}

func (c *commands) accept(ctx context.Context, cmd *acceptCmd) error {
	peer, err := c.node.AcceptFriend(ctx, cmd.Query)
	if errors.Is(err, friend.ErrNotifyFailed) {
		if peer.NotifyPending {
			fmt.Printf("You are now friends with %s. They have not been told yet; the next tick retries.\n", peer.Name)
			return nil
		}
		fmt.Printf("You are now friends with %s, but the relay refused to tell them.\n", peer.Name)
		return err
	}
	if err != nil {
		return err
	}
	fmt.Printf("You are now friends with %s (%s).\n", peer.Name, peer.Fingerprint())
	return nil
}

func (c *commands) send(ctx context.Context, cmd *sendCmd) error {
	var opts []relaylink.MessageOption
	if cmd.Urgent {
		opts = append(opts, relaylink.Urgent())
	}
	if cmd.Context != "" {
		opts = append(opts, relaylink.WithContext(cmd.Context))
	}
	if cmd.RespondBy != "" {
		t, err := time.Parse(time.RFC3339, cmd.RespondBy)
		if err != nil {
			return fmt.Errorf("--respond-by: %w", err)
		}
		opts = append(opts, relaylink.RespondBy(t))
	}
	receipt, err := c.node.SendMessage(ctx, cmd.To, cmd.Text, opts...)
	if err != nil {
		return err
	}
	fmt.Printf("Sent (%s).\n", receipt.ID)
	return nil
}

func (c *commands) tick(ctx context.Context) error {
	res, err := c.node.Tick(ctx)
	if err != nil {
		return err
	}
	for i, out := range res.Output {
		if i > 0 {
			fmt.Println()
		}
		fmt.Println(out)
	}
	for _, err := range res.Errors {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
	return nil
}

func (c *commands) friends() error {
	peers, err := c.node.Friends()
	if err != nil {
		return err
	}
	if len(peers) == 0 {
		fmt.Println("No friends yet. Share your link: relaylink link")
		return nil
	}
	for _, p := range peers {
		note := ""
		if !p.ExchangeVerified {
			note = "  (unverified exchange key)"
		}
		if p.NotifyPending {
			note += "  (not yet notified)"
		}
		fmt.Printf("%-20s id=%s  %s%s\n", p.Name, p.ID, p.Fingerprint(), note)
	}
	return nil
}

func (c *commands) remove(cmd *removeCmd) error {
	p, err := c.node.RemoveFriend(cmd.Query)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %s.\n", p.Name)
	return nil
}

func (c *commands) backup() error {
	words, err := c.node.Backup()
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Anyone with these words can impersonate you. Store them offline.")
	fmt.Println(words)
	return nil
}

func (c *commands) health(ctx context.Context) error {
	h, err := c.node.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s)\n", h.Status, h.Version)
	return nil
}

func (c *commands) prefs(cmd *prefsCmd) error {
	err := store.WithLock(c.store, func() error {
		return applyPrefs(c.node, cmd)
	})
	if err != nil {
		return err
	}
	p, err := c.node.Preferences().Load()
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

func applyPrefs(node *relaylink.Node, cmd *prefsCmd) error {
	m := node.Preferences()
	cur, err := m.Load()
	if err != nil {
		return err
	}

	switch {
	case strings.EqualFold(cmd.Quiet, "off"):
		if _, err := m.DisableQuietHours(); err != nil {
			return err
		}
	case cmd.Quiet != "" || cmd.Timezone != "":
		start, end := cur.QuietHours.Start, cur.QuietHours.End
		if cmd.Quiet != "" {
			if start, end, err = parseWindow(cmd.Quiet); err != nil {
				return err
			}
		}
		tz := cur.QuietHours.Timezone
		if cmd.Timezone != "" {
			tz = cmd.Timezone
		}
		if _, err := m.SetQuietHours(start, end, tz); err != nil {
			return err
		}
		if cmd.Quiet == "" && !cur.QuietHours.Enabled {
			if _, err := m.DisableQuietHours(); err != nil {
				return err
			}
		}
	}

	switch {
	case strings.EqualFold(cmd.Batch, "off"):
		if _, err := m.DisableBatch(); err != nil {
			return err
		}
	case cmd.Batch != "":
		if _, err := m.SetBatchTimes(splitList(cmd.Batch)); err != nil {
			return err
		}
	}

	if cmd.Tone != "" {
		if _, err := m.SetTone(delivery.Tone(cmd.Tone)); err != nil {
			return err
		}
	}
	if cmd.Greeting != "" {
		if _, err := m.SetGreeting(delivery.GreetingStyle(cmd.Greeting)); err != nil {
			return err
		}
	}

	if cmd.UrgentInQuiet != "" || cmd.Summarize != "" || cmd.IncludeContext != "" {
		rules := cur.Rules
		for _, f := range []struct {
			flag, value string
			dst         *bool
		}{
			{"--urgent-in-quiet", cmd.UrgentInQuiet, &rules.AllowUrgentDuringQuiet},
			{"--summarize", cmd.Summarize, &rules.SummarizeLong},
			{"--include-context", cmd.IncludeContext, &rules.IncludeContext},
		} {
			if err := setSwitch(f.flag, f.value, f.dst); err != nil {
				return err
			}
		}
		if _, err := m.SetRules(rules); err != nil {
			return err
		}
	}

	if cmd.Peer == "" {
		if cmd.Priority != "" || cmd.AlwaysDeliver != "" || cmd.PeerTone != "" || cmd.ClearPeer {
			return errors.New("--peer is required for per-friend settings")
		}
		return nil
	}
	peers, err := node.Friends()
	if err != nil {
		return err
	}
	peer, err := peers.Lookup(cmd.Peer)
	if err != nil {
		return err
	}
	if cmd.ClearPeer {
		_, err := m.ClearPeerOverride(peer.KeyHex())
		return err
	}
	o := cur.Override(peer.KeyHex())
	if cmd.Priority != "" {
		o.Priority = delivery.Priority(cmd.Priority)
	}
	if cmd.PeerTone != "" {
		o.Tone = delivery.Tone(cmd.PeerTone)
	}
	if err := setSwitch("--always-deliver", cmd.AlwaysDeliver, &o.AlwaysDeliver); err != nil {
		return err
	}
	_, err = m.SetPeerOverride(peer.KeyHex(), o)
	return err
}

// parseWindow splits "22:00-07:00". Times are validated by the preference
// setters.
func parseWindow(s string) (start, end string, err error) {
	start, end, ok := strings.Cut(s, "-")
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if !ok || start == "" || end == "" {
		return "", "", fmt.Errorf("--quiet: want HH:MM-HH:MM, got %q", s)
	}
	return start, end, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// setSwitch parses on/off style values into dst. An empty value leaves dst
// unchanged.
func setSwitch(flag, value string, dst *bool) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return nil
	case "on", "yes":
		*dst = true
		return nil
	case "off", "no":
		*dst = false
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%s: want on or off, got %q", flag, value)
	}
	*dst = b
	return nil
}

func joinWords(words []string) string {
	return strings.Join(words, " ")
}
