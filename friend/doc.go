// Package friend implements the trust handshake between relaylink identities.
//
// A relationship moves from none to request-sent (an outgoing pending record)
// or request-received (an incoming pending record), and from there to
// connected, which is represented by a Peer record. There is no rejected
// state: an unanswered request stays pending.
//
// Accepting a request derives the shared secret, inserts the Peer, and only
// then sends an encrypted friend_accept notice back to the requester. A
// failed notice leaves the Peer connected with NotifyPending set; the notice
// is retried later with the stored secret.
//
// Requesters learn they are connected by decrypting that notice. The notice
// binds the acceptor's exchange key to its signing key with an exchange
// proof, and requests carry the same proof in the other direction.
//
// Example:
//
//	hs := friend.NewHandshake(id, client, st)
//	out, err := hs.SendFriendRequest(ctx, link, "hi, it's alice")
package friend
