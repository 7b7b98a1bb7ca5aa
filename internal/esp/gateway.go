// Package esp abstracts the email-service-provider a tenant's list lives on.
// Implementations manage subscribers and tags; the gating core only ever
// asks "which tags does this email hold" and "give this email this tag".
package esp

import (
	"context"
	"errors"
)

// ErrSubscriberNotFound means the ESP has no record of the email address.
// Callers treat it as an empty tag set, not a failure.
var ErrSubscriberNotFound = errors.New("subscriber not found")

// ValidationResult reports the outcome of a credential check
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Gateway is the capability set every provider implementation offers.
// Transient provider failures surface as models.ErrESPUnavailable or
// models.ErrESPRateLimited wrapped with provider context.
type Gateway interface {
	// FindSubscriberTags returns the tag IDs held by the subscriber with
	// this email address.
	FindSubscriberTags(ctx context.Context, email string) ([]string, error)

	// TagSubscriber assigns a tag, creating the subscriber if absent.
	// Re-tagging an already-tagged subscriber is idempotent. Returns the
	// provider's subscriber ID.
	TagSubscriber(ctx context.Context, email, tagID string) (string, error)

	// ValidateCredentials checks the configured credentials against the
	// provider. Used for configuration testing, never on the hot path.
	ValidateCredentials(ctx context.Context) *ValidationResult
}
