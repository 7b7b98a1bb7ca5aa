package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/listgate/listgate/internal/handlers"
	"github.com/listgate/listgate/internal/middleware"
)

// RegisterRoutes registers the public content-gating routes
func RegisterRoutes(router chi.Router, accessHandler *handlers.AccessHandler) {
	requestLimit := middleware.DefaultAccessRequestRateLimit()
	pollLimit := middleware.DefaultPollRateLimit()

	// The access form sends email and may trigger an ESP call, so it gets
	// the tightest limit. Status polling allows a full 60x1s poll cycle.
	router.With(middleware.RateLimitByIP(requestLimit)).Post("/content/{slug}/request-access", accessHandler.RequestAccess)
	router.With(middleware.RateLimitByIP(pollLimit)).Get("/access-status/{accessRecordID}", accessHandler.AccessStatus)

	router.Get("/verify/{token}", accessHandler.Verify)
	router.Get("/content/{slug}", accessHandler.Content)
}
