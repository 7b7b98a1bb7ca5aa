package esp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/listgate/listgate/internal/models"
)

// Factory builds a Gateway from a tenant's ESP credentials
type Factory func(apiKey string, logger *slog.Logger) Gateway

// Registry maps provider kinds to constructors. Providers are registered
// once at startup and resolved per tenant config.
type Registry struct {
	factories map[models.ESPProvider]Factory
	logger    *slog.Logger
}

// NewRegistry creates a registry with all built-in providers registered
func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{
		factories: make(map[models.ESPProvider]Factory),
		logger:    logger,
	}
	r.Register(models.ESPKit, func(apiKey string, logger *slog.Logger) Gateway {
		return NewKitClient(apiKey, logger)
	})
	return r
}

// Register adds a provider factory
func (r *Registry) Register(kind models.ESPProvider, factory Factory) {
	r.factories[kind] = factory
}

// ForTenant resolves the gateway for a tenant's configured provider
func (r *Registry) ForTenant(tenant *models.Tenant) (Gateway, error) {
	factory, ok := r.factories[tenant.ESPProvider]
	if !ok {
		return nil, fmt.Errorf("unknown esp provider %q: %w", tenant.ESPProvider, models.ErrBadRequest)
	}
	return factory(tenant.ESPAPIKey, r.logger), nil
}

// Validate checks a tenant's ESP credentials against the live provider.
// Configuration-time tool, never called on the request path.
func (r *Registry) Validate(ctx context.Context, tenant *models.Tenant) *ValidationResult {
	gateway, err := r.ForTenant(tenant)
	if err != nil {
		return &ValidationResult{Valid: false, Errors: []string{err.Error()}}
	}
	return gateway.ValidateCredentials(ctx)
}
