// Package main provides the relaylink command-line client.
//
// Each invocation runs one operation against the local identity stored in
// the data directory: creating the identity, exchanging friend requests,
// sending messages, or running a single Tick for a host scheduler such as
// cron.
package main
