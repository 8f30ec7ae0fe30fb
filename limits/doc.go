// Package limits centralizes the size limits applied to names, friend-request
// notes, message bodies and relay payloads.
//
// Validators return errors wrapping [ErrEmpty], [ErrTooLarge] or
// [ErrInvalidUTF8] so callers can branch with errors.Is:
//
//	if err := limits.ValidateMessageText(text); errors.Is(err, limits.ErrTooLarge) {
//	    // ask the user to shorten the message
//	}
package limits
