// Package cryptox implements the encrypted-but-searchable email scheme used
// by the record store: AES-256-GCM for the value at rest plus an HMAC-SHA256
// blind index for equality lookup. Randomized encryption alone would break
// find-by-email, so the index column is a hard requirement, not an
// optimization.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const keySize = 32

var (
	ErrInvalidKey        = errors.New("master key must be 32 bytes")
	ErrInvalidCiphertext = errors.New("ciphertext is malformed or tampered")
)

// Codec encrypts and indexes email addresses. The cipher key and the index
// key are derived from a single master key via HKDF with distinct info
// strings, so compromising one column does not expose the other key.
type Codec struct {
	aead     cipher.AEAD
	indexKey []byte
}

// NewCodec derives the cipher and index keys from a 32-byte master key
func NewCodec(masterKey []byte) (*Codec, error) {
	if len(masterKey) != keySize {
		return nil, ErrInvalidKey
	}

	cipherKey, err := deriveKey(masterKey, "listgate/email-cipher")
	if err != nil {
		return nil, err
	}
	indexKey, err := deriveKey(masterKey, "listgate/email-index")
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(cipherKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Codec{aead: aead, indexKey: indexKey}, nil
}

func deriveKey(master []byte, info string) ([]byte, error) {
	key := make([]byte, keySize)
	r := hkdf.New(sha256.New, master, nil, []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive %s key: %w", info, err)
	}
	return key, nil
}

// Encrypt seals a plaintext email. The random nonce is prepended to the
// ciphertext so a single bytea column holds everything needed to decrypt.
func (c *Codec) Encrypt(plaintext string) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt opens a nonce||ciphertext value produced by Encrypt
func (c *Codec) Decrypt(data []byte) (string, error) {
	if len(data) < c.aead.NonceSize() {
		return "", ErrInvalidCiphertext
	}
	nonce, ciphertext := data[:c.aead.NonceSize()], data[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plaintext), nil
}

// Index returns the deterministic blind-index value for an email address.
// Input is normalized so "A@X.com" and "a@x.com " index identically.
func (c *Codec) Index(email string) string {
	mac := hmac.New(sha256.New, c.indexKey)
	mac.Write([]byte(NormalizeEmail(email)))
	return hex.EncodeToString(mac.Sum(nil))
}

// NormalizeEmail lowercases and trims an address for indexing and lookups
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
