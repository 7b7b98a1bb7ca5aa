package models

import "time"

// ESPProvider identifies which email-service-provider implementation a
// tenant is configured with.
type ESPProvider string

const (
	ESPKit ESPProvider = "kit"
)

// Tenant holds the per-creator configuration the gating core reads:
// which ESP to talk to, its credentials, and the access-cache window.
type Tenant struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	ESPProvider       ESPProvider `json:"esp_provider"`
	ESPAPIKey         string      `json:"-"` // Never expose credentials
	CacheDurationDays int         `json:"cache_duration_days"`
	CreatedAt         time.Time   `json:"created_at"`
}

// CacheWindow converts the configured cache duration to a time.Duration
func (t *Tenant) CacheWindow() time.Duration {
	return time.Duration(t.CacheDurationDays) * 24 * time.Hour
}
