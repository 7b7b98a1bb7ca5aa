package token

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewVerificationToken_Entropy(t *testing.T) {
	tok, err := NewVerificationToken()
	assert.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(tok)
	assert.NoError(t, err, "token must be URL-safe base64")
	assert.Len(t, raw, 32, "token must carry 256 bits of randomness")
}

func TestHash_DeterministicAndOpaque(t *testing.T) {
	tok, err := NewVerificationToken()
	assert.NoError(t, err)

	h := Hash(tok)
	assert.Equal(t, h, Hash(tok), "lookups depend on re-hashing reproducibly")
	assert.Len(t, h, 64, "hex SHA-256")
	assert.NotContains(t, h, tok, "the stored form must not reveal the token")

	other, err := NewVerificationToken()
	assert.NoError(t, err)
	assert.NotEqual(t, h, Hash(other))
}

func TestNewCookieToken_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		tok, err := NewCookieToken()
		assert.NoError(t, err)
		assert.False(t, seen[tok], "tokens must not repeat")
		seen[tok] = true
	}
}
