package crypto

import (
	"strings"

	"github.com/google/uuid"
)

// RandomID returns a short opaque identifier for human-facing records. It is
// not used for any security decision.
func RandomID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:12]
}
