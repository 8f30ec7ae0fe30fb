// Package relay is the client side of the store-and-forward relay contract.
//
// The relay is untrusted: it sees sender and recipient public keys and
// timestamps but never plaintext. Keys and signatures travel as lowercase
// hex, nonces and ciphertext as standard base64.
//
// Client performs the five remote operations (send, poll, submit request,
// fetch requests, health). Failures surface as *Error, which matches
// ErrRelayUnavailable for network, timeout and 5xx failures and
// ErrRelayRejected for 4xx responses:
//
//	if errors.Is(err, relay.ErrRelayUnavailable) {
//	    // retry on the next tick
//	}
//
// DecryptMessage is a pure function: it verifies an envelope against a
// Counterparty and opens it with that counterparty's shared secret.
package relay
