package session

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// DefaultMaxAge is the default session lifetime (12 hours)
	DefaultMaxAge = 12 * time.Hour

	// TokenLength is the length of generated session tokens in bytes
	TokenLength = 32
)

// GenerateToken returns a random hex token for the cookie and its SHA-256
// hash for storage.
func GenerateToken() (string, string, error) {
	tokenBytes := make([]byte, TokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", "", fmt.Errorf("generate random token: %w", err)
	}
	token := hex.EncodeToString(tokenBytes)
	return token, HashToken(token), nil
}

// HashToken hashes a session token for storage/lookup
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
