// Package messaging defines the plaintext content carried inside encrypted
// envelopes.
//
// Content is a closed sum type discriminated by a "type" field. Two variants
// exist: [Message], an ordinary text message, and [FriendAccept], the notice
// an acceptor sends back to the original requester. [Unmarshal] matches the
// discriminator exhaustively and rejects unknown tags with
// [ErrUnknownContentType] rather than guessing.
//
// Marshalling happens implicitly: both variants implement json.Marshaler and
// emit their own "type" field, so they can be handed straight to
// crypto.Encrypt.
package messaging
