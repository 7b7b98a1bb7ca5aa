package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/listgate/listgate/internal/database"
	"github.com/listgate/listgate/internal/models"
)

// TenantRepository reads tenant configuration. The gating core never
// mutates tenants.
type TenantRepository struct {
	pool *pgxpool.Pool
}

// NewTenantRepository creates a new TenantRepository
func NewTenantRepository(db *database.DB) *TenantRepository {
	return &TenantRepository{pool: db.Pool}
}

// GetByID retrieves a tenant by ID
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	query := `
		SELECT id, name, esp_provider, esp_api_key, cache_duration_days, created_at
		FROM tenants
		WHERE id = $1
	`

	var tenant models.Tenant
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&tenant.ID, &tenant.Name, &tenant.ESPProvider, &tenant.ESPAPIKey,
		&tenant.CacheDurationDays, &tenant.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &tenant, nil
}
