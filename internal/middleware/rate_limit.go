package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	pkghttp "github.com/listgate/listgate/pkg/http"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultAccessRequestRateLimit limits the email-submitting access form.
// Low ceiling: every allowed request may send an email and hit the ESP.
func DefaultAccessRequestRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 5,
	}
}

// DefaultPollRateLimit covers the status-polling endpoint. The client
// contract polls at 1s intervals, so the ceiling sits above one full
// poll cycle per minute.
func DefaultPollRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 90,
	}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Rate limit exceeded")
		}),
	)
}
