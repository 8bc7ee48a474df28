package pool

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// joinCodeBytes gives 48 bits of entropy, enough to make codes unguessable
// while keeping t.me deep links short
const joinCodeBytes = 6

// GenerateJoinCode returns a new opaque join token
func GenerateJoinCode() (string, error) {
	buf := make([]byte, joinCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate join code: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
