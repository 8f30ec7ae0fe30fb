// Package relaylink implements an end-to-end encrypted messaging core that
// exchanges messages through an untrusted store-and-forward relay.
//
// Every node holds one ed25519 identity. Its X25519 exchange keys are derived
// from the signing seed, so only the signing key is persisted. Two nodes
// become friends through a signed request and an encrypted friend_accept
// notice; after that, every message is sealed with a secret derived once per
// relationship. The relay sees public keys and timestamps, never contents.
//
// # Getting Started
//
// Create an identity once, then build a node from the same store:
//
//	fs, err := store.NewFileStore(dataDir)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer fs.Close()
//
//	options := relaylink.NewOptions()
//	options.RelayURL = "https://relay.example.org"
//
//	node, err := relaylink.New(fs, options)
//	if errors.Is(err, identity.ErrConfigurationMissing) {
//	    node, err = relaylink.Init(fs, "Alice", options)
//	}
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//
// # Friends
//
// Share the node's link and send requests to other links:
//
//	fmt.Println(node.FriendLink())
//	_, err = node.AddFriend(ctx, bobsLink, "hi, it's Alice")
//
// Incoming requests appear in the result of Tick and stay pending until
// accepted. There is no reject; ignoring a request is enough:
//
//	peer, err := node.AcceptFriend(ctx, "bob")
//	if errors.Is(err, friend.ErrNotifyFailed) {
//	    // connected locally; the next Tick resends the notice
//	}
//
// # Ticks
//
// The node has no goroutines of its own. A host scheduler calls Tick
// periodically; each call polls the relay, decrypts, applies the delivery
// preferences and returns formatted output:
//
//	res, err := node.Tick(ctx)
//	if err != nil {
//	    log.Fatal(err) // local state is unreadable
//	}
//	for _, line := range res.Output {
//	    fmt.Println(line)
//	}
//
// Relay failures are collected in TickResult.Errors and retried on the next
// call, since the relay keeps envelopes until their TTL expires.
//
// # Delivery Preferences
//
// Quiet hours, batch delivery times, tone and per-peer overrides are managed
// through [Node.Preferences]. Messages deferred by them are kept in a held
// queue and released by a later Tick.
package relaylink
