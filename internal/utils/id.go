package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// NewID returns a random UUID string for persisted records.
func NewID() string {
	return uuid.NewString()
}

// NewSessionID returns a short opaque identifier for a live connection.
// Session ids are never persisted, so a compact hex token is enough.
func NewSessionID() string {
	const size = 10

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}

	// Fallback to timestamp if crypto/rand is unavailable.
	return strconv.FormatInt(time.Now().UnixNano(), 36)
}
