package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/alexflint/go-arg"
	"github.com/opd-ai/relaylink"
	"github.com/opd-ai/relaylink/config"
	"github.com/opd-ai/relaylink/identity"
	"github.com/opd-ai/relaylink/store"
	"github.com/sirupsen/logrus"
)

func main() {
	var a args
	p := arg.MustParse(&a)
	if p.Subcommand() == nil {
		p.Fail("missing command")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, a)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, a args) error {
	cfg, err := loadConfig(a)
	if err != nil {
		return err
	}

	fs, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := fs.Close(); err != nil {
			logrus.WithError(err).Warn("Closing store")
		}
	}()

	opts := nodeOptions(cfg)

	switch {
	case a.Init != nil:
		node, err := relaylink.Init(fs, a.Init.Name, opts)
		if err != nil {
			return err
		}
		defer node.Close()
		fmt.Printf("Created identity %q (%s)\n", node.Identity().Name, node.Identity().Fingerprint())
		fmt.Println("Share this link with friends:")
		fmt.Println(node.FriendLink())
		fmt.Println("Run `relaylink backup` and keep the words somewhere safe.")
		return nil
	case a.Restore != nil:
		node, err := relaylink.Restore(fs, a.Restore.Name, joinWords(a.Restore.Words), opts)
		if err != nil {
			return err
		}
		defer node.Close()
		fmt.Printf("Restored identity %q (%s)\n", node.Identity().Name, node.Identity().Fingerprint())
		return nil
	}

	node, err := relaylink.New(fs, opts)
	if errors.Is(err, identity.ErrConfigurationMissing) {
		return fmt.Errorf("no identity in %s; run `relaylink init <name>` first", fs.Dir())
	}
	if err != nil {
		return err
	}
	defer node.Close()

	c := &commands{node: node, store: fs}
	switch {
	case a.Link != nil:
		fmt.Println(node.FriendLink())
		return nil
	case a.Add != nil:
		return c.add(ctx, a.Add)
	case a.Requests != nil:
		return c.requests()
	case a.Accept != nil:
		return c.accept(ctx, a.Accept)
	case a.Send != nil:
		return c.send(ctx, a.Send)
	case a.Tick != nil:
		return c.tick(ctx)
	case a.Friends != nil:
		return c.friends()
	case a.Remove != nil:
		return c.remove(a.Remove)
	case a.Prefs != nil:
		return c.prefs(a.Prefs)
	case a.Backup != nil:
		return c.backup()
	case a.Health != nil:
		return c.health(ctx)
	}
	return nil
}

func loadConfig(a args) (config.Config, error) {
	cfg, err := config.LoadFromPath(a.Config)
	if err != nil {
		return config.Config{}, err
	}
	if a.DataDir != "" {
		cfg.DataDir = a.DataDir
	}
	if a.RelayURL != "" {
		cfg.RelayURL = a.RelayURL
	}
	if a.Verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.ConfigureLogging(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func openStore(cfg config.Config) (*store.FileStore, error) {
	if cfg.Passphrase != "" {
		return store.NewEncryptedFileStore(cfg.DataDir, []byte(cfg.Passphrase))
	}
	return store.NewFileStore(cfg.DataDir)
}

func nodeOptions(cfg config.Config) *relaylink.Options {
	opts := relaylink.NewOptions()
	opts.RelayURL = cfg.RelayURL
	opts.Timeout = cfg.Timeout
	opts.BatchTolerance = cfg.BatchTolerance
	opts.SummaryThreshold = cfg.SummaryThreshold
	opts.RequireSignatures = cfg.RequireSignatures
	return opts
}
