package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/listgate/listgate/internal/database"
	"github.com/listgate/listgate/internal/models"
)

// ContentRepository reads gated content. Only the required tag and the
// served payload matter to the gating core; content is never mutated here.
type ContentRepository struct {
	pool *pgxpool.Pool
}

// NewContentRepository creates a new ContentRepository
func NewContentRepository(db *database.DB) *ContentRepository {
	return &ContentRepository{pool: db.Pool}
}

// GetBySlug retrieves content by its public slug
func (r *ContentRepository) GetBySlug(ctx context.Context, slug string) (*models.Content, error) {
	query := `
		SELECT id, tenant_id, slug, title, body, required_tag_id, created_at
		FROM contents
		WHERE slug = $1
	`

	var content models.Content
	err := r.pool.QueryRow(ctx, query, slug).Scan(
		&content.ID, &content.TenantID, &content.Slug, &content.Title,
		&content.Body, &content.RequiredTagID, &content.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &content, nil
}

// GetByID retrieves content by primary key
func (r *ContentRepository) GetByID(ctx context.Context, id string) (*models.Content, error) {
	query := `
		SELECT id, tenant_id, slug, title, body, required_tag_id, created_at
		FROM contents
		WHERE id = $1
	`

	var content models.Content
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&content.ID, &content.TenantID, &content.Slug, &content.Title,
		&content.Body, &content.RequiredTagID, &content.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &content, nil
}
