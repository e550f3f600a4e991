package utils

import (
	"strings"

	"github.com/google/uuid"
)

// roomTokenLen keeps join links short while leaving collision odds
// negligible for any realistic room count (16^10 values).
const roomTokenLen = 10

// NewRoomToken returns a short opaque room identifier.
func NewRoomToken() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return hex[:roomTokenLen]
}
