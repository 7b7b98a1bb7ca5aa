package models

import "time"

// Content is a gated piece of content. The gating core only ever reads it;
// access is granted iff the visitor's tag set contains RequiredTagID.
type Content struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	Slug          string    `json:"slug"`
	Title         string    `json:"title"`
	Body          string    `json:"body,omitempty"`
	RequiredTagID string    `json:"required_tag_id"`
	CreatedAt     time.Time `json:"created_at"`
}
