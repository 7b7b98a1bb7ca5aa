package models

import (
	"time"
)

// CheckStatus is the state of a background access check cycle.
// Transitions only move forward within a cycle: pending -> processing ->
// {completed, failed}. A new cycle resets to pending first.
type CheckStatus string

const (
	CheckPending    CheckStatus = "pending"
	CheckProcessing CheckStatus = "processing"
	CheckCompleted  CheckStatus = "completed"
	CheckFailed     CheckStatus = "failed"
)

// IsTerminal reports whether the check cycle has finished
func (s CheckStatus) IsTerminal() bool {
	return s == CheckCompleted || s == CheckFailed
}

// AccessRecord caches a visitor's verified ESP tag set, bound to a browser
// via an opaque cookie token. Tags are visitor-scoped: the same record
// answers access questions for any content of the tenant.
type AccessRecord struct {
	ID             string      `json:"id"`
	TenantID       string      `json:"tenant_id"`
	Email          string      `json:"-"`
	SubscriberID   *string     `json:"subscriber_id,omitempty"`
	Tags           []string    `json:"tags"`
	CookieToken    string      `json:"-"` // Plain token; only its hash is stored, set on create/refresh
	LastVerifiedAt time.Time   `json:"last_verified_at"`
	CheckStatus    CheckStatus `json:"check_status"`
	CheckError     *string     `json:"check_error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// IsFresh reports whether the cached verification is still inside the
// tenant's validity window at the given instant. Freshness is recomputed at
// read time; changing the window never rewrites stored records.
func (a *AccessRecord) IsFresh(window time.Duration, now time.Time) bool {
	return now.Before(a.LastVerifiedAt.Add(window))
}

// HasTag checks membership of a required tag in the visitor's tag set
func (a *AccessRecord) HasTag(tagID string) bool {
	for _, t := range a.Tags {
		if t == tagID {
			return true
		}
	}
	return false
}
