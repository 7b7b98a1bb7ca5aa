package models

import (
	"time"
)

// VerificationTTL is how long a verification link stays redeemable.
const VerificationTTL = 2 * time.Hour

// VerificationRequest represents a single email-confirmation attempt for a
// piece of gated content. The email is encrypted at rest; the repository
// decrypts it on read so it never appears in serialized output.
type VerificationRequest struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	ContentID  string     `json:"content_id"`
	Email      string     `json:"-"`
	Token      string     `json:"-"` // Plain token; only its hash is stored, set on create
	ExpiresAt  time.Time  `json:"expires_at"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	ESPError   *string    `json:"esp_error,omitempty"`
	ESPErrorAt *time.Time `json:"esp_error_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsExpired checks if the verification link has expired
func (r *VerificationRequest) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

// IsVerified checks if the token has already been redeemed
func (r *VerificationRequest) IsVerified() bool {
	return r.VerifiedAt != nil
}
