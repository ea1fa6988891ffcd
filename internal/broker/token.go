package broker

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const tokenBytes = 32

// SessionToken is an opaque, high-entropy bearer credential handed back
// to a caller after a successful session start, along with the window
// during which it remains valid.
type SessionToken struct {
	Value     string
	CallerID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token is no longer valid as of now.
func (t SessionToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// generateTokenValue produces a 32-byte random value, hex-encoded.
func generateTokenValue() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("broker: generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
