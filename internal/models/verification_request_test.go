package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVerificationRequest_IsExpired(t *testing.T) {
	active := &VerificationRequest{ExpiresAt: time.Now().Add(time.Hour)}
	assert.False(t, active.IsExpired())

	expired := &VerificationRequest{ExpiresAt: time.Now().Add(-time.Minute)}
	assert.True(t, expired.IsExpired())
}

func TestVerificationRequest_IsExpired_IgnoresVerification(t *testing.T) {
	// An expired link stays expired even if it was redeemed before expiry.
	verifiedAt := time.Now().Add(-2 * time.Hour)
	req := &VerificationRequest{
		ExpiresAt:  time.Now().Add(-time.Hour),
		VerifiedAt: &verifiedAt,
	}
	assert.True(t, req.IsExpired())
	assert.True(t, req.IsVerified())
}

func TestVerificationRequest_IsVerified(t *testing.T) {
	req := &VerificationRequest{}
	assert.False(t, req.IsVerified())

	now := time.Now()
	req.VerifiedAt = &now
	assert.True(t, req.IsVerified())
}
