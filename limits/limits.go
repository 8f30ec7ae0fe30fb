// Package limits provides centralized size limits for relaylink payloads.
// This ensures consistent validation across the handshake, relay client and
// local relay.
package limits

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	// MaxDisplayName is the longest display name carried in links and requests.
	MaxDisplayName = 64

	// MaxRequestMessage bounds the free-text note attached to a friend request.
	MaxRequestMessage = 500

	// MaxMessageText bounds the body of a single chat message.
	MaxMessageText = 32 * 1024

	// MaxWirePayload is the maximum encoded request or response body exchanged
	// with the relay. It prevents memory exhaustion on hostile responses.
	MaxWirePayload = 4 * 1024 * 1024
)

var (
	// ErrEmpty indicates an empty value was provided where one is required.
	ErrEmpty = errors.New("empty value")

	// ErrTooLarge indicates a value exceeds its maximum size.
	ErrTooLarge = errors.New("value too large")

	// ErrInvalidUTF8 indicates text that is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("invalid utf-8")
)

// ValidateSize validates data against the specified maximum size.
func ValidateSize(data []byte, maxSize int) error {
	if len(data) == 0 {
		return ErrEmpty
	}
	if len(data) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrTooLarge, len(data), maxSize)
	}
	return nil
}

// ValidateDisplayName checks a display name is present, valid UTF-8 and within
// MaxDisplayName characters.
func ValidateDisplayName(name string) error {
	if name == "" {
		return fmt.Errorf("display name: %w", ErrEmpty)
	}
	return validateText("display name", name, MaxDisplayName)
}

// ValidateRequestMessage checks the optional note on a friend request. An empty
// note is allowed.
func ValidateRequestMessage(message string) error {
	if message == "" {
		return nil
	}
	return validateText("request message", message, MaxRequestMessage)
}

// ValidateMessageText checks a chat message body.
func ValidateMessageText(text string) error {
	if text == "" {
		return fmt.Errorf("message text: %w", ErrEmpty)
	}
	return validateText("message text", text, MaxMessageText)
}

func validateText(field, text string, maxChars int) error {
	if !utf8.ValidString(text) {
		return fmt.Errorf("%s: %w", field, ErrInvalidUTF8)
	}
	if n := utf8.RuneCountInString(text); n > maxChars {
		return fmt.Errorf("%w: %s has %d characters, limit %d", ErrTooLarge, field, n, maxChars)
	}
	return nil
}
