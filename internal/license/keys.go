package license

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateSerialKey returns a new opaque key: a random (version 4) UUID as 32
// upper-case hex characters.
func GenerateSerialKey() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}
