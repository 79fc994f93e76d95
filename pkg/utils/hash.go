package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash returns the hex-encoded SHA-256 of a text. It keys the
// embedding cache: identical text always hashes to the same value, so an
// unchanged chunk is never re-embedded.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
