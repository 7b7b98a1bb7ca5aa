package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// tokenBytes gives 256 bits of randomness per token; collisions are
// negligible but the store's unique index is still the authority.
const tokenBytes = 32

// generate returns a URL-safe random token
func generate() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewVerificationToken issues a token for an email-confirmation link.
// Uniqueness is enforced by the store; callers retry on conflict.
func NewVerificationToken() (string, error) {
	return generate()
}

// NewCookieToken issues an opaque token that binds an access record to a
// browser session.
func NewCookieToken() (string, error) {
	return generate()
}

// Hash returns the hex SHA-256 of a token. Only the hash is stored; lookups
// re-hash the presented token, so a database dump exposes neither live
// verification links nor valid cookies.
func Hash(plainToken string) string {
	sum := sha256.Sum256([]byte(plainToken))
	return hex.EncodeToString(sum[:])
}
