package friend

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/opd-ai/relaylink/limits"
)

const (
	linkScheme = "relaylink"
	linkHost   = "add"
	keyAlgo    = "ed25519:"
)

// ErrMalformedLink is returned for friend links that cannot be parsed.
var ErrMalformedLink = errors.New("malformed friend link")

// BuildLink returns the shareable link for a signing key and display name:
//
//	relaylink://add?key=ed25519:<base58>&name=<display name>
func BuildLink(pub ed25519.PublicKey, name string) string {
	q := url.Values{}
	q.Set("key", keyAlgo+base58.Encode(pub))
	q.Set("name", name)
	return (&url.URL{Scheme: linkScheme, Host: linkHost, RawQuery: q.Encode()}).String()
}

// ParseLink extracts the signing key and display name from a friend link.
// The key may be base58 or hex after its algorithm prefix. A missing name is
// allowed; a missing or invalid key is not.
func ParseLink(link string) (ed25519.PublicKey, string, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrMalformedLink, err)
	}
	if u.Scheme != linkScheme {
		return nil, "", fmt.Errorf("%w: scheme %q", ErrMalformedLink, u.Scheme)
	}

	q := u.Query()
	raw := q.Get("key")
	if raw == "" {
		return nil, "", fmt.Errorf("%w: missing key", ErrMalformedLink)
	}
	if !strings.HasPrefix(raw, keyAlgo) {
		return nil, "", fmt.Errorf("%w: unsupported key algorithm", ErrMalformedLink)
	}
	pub, err := decodeLinkKey(strings.TrimPrefix(raw, keyAlgo))
	if err != nil {
		return nil, "", err
	}

	name := strings.TrimSpace(q.Get("name"))
	if name != "" {
		if err := limits.ValidateDisplayName(name); err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrMalformedLink, err)
		}
	}
	return pub, name, nil
}

func decodeLinkKey(s string) (ed25519.PublicKey, error) {
	if len(s) == 2*ed25519.PublicKeySize {
		if raw, err := hex.DecodeString(s); err == nil {
			return ed25519.PublicKey(raw), nil
		}
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: key: %v", ErrMalformedLink, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: key is %d bytes, want %d", ErrMalformedLink, len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}
