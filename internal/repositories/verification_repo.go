package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/listgate/listgate/internal/cryptox"
	"github.com/listgate/listgate/internal/database"
	"github.com/listgate/listgate/internal/models"
	"github.com/listgate/listgate/internal/token"
)

// tokenInsertRetries bounds retries on the (astronomically unlikely) token
// unique-constraint collision.
const tokenInsertRetries = 3

// VerificationRequestRepository handles verification request data access.
// Emails are encrypted before they touch the database and decrypted on read;
// equality lookups use the blind-index column.
type VerificationRequestRepository struct {
	pool  *pgxpool.Pool
	codec *cryptox.Codec
}

// NewVerificationRequestRepository creates a new VerificationRequestRepository
func NewVerificationRequestRepository(db *database.DB, codec *cryptox.Codec) *VerificationRequestRepository {
	return &VerificationRequestRepository{pool: db.Pool, codec: codec}
}

// scanRequestRow populates a VerificationRequest from a database row,
// decrypting the email column. The row carries only the token hash, so
// req.Token stays empty; Create fills it in for the one caller that needs
// the plain token for the email link.
func (r *VerificationRequestRepository) scanRequestRow(row rowScanner) (*models.VerificationRequest, error) {
	var req models.VerificationRequest
	var emailEnc []byte
	var verifiedAt, espErrorAt *time.Time
	var espError *string

	err := row.Scan(
		&req.ID, &req.TenantID, &req.ContentID, &emailEnc,
		&req.ExpiresAt, &verifiedAt, &espError, &espErrorAt,
		&req.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	email, err := r.codec.Decrypt(emailEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt request email: %w", err)
	}

	req.Email = email
	req.VerifiedAt = verifiedAt
	req.ESPError = espError
	req.ESPErrorAt = espErrorAt
	return &req, nil
}

// Create persists a new verification request expiring after the fixed TTL.
// The token is generated here and regenerated on a unique-constraint
// collision, up to the retry bound. Only its SHA-256 touches the database;
// the plain token on the returned request exists for the email link.
func (r *VerificationRequestRepository) Create(ctx context.Context, email, contentID, tenantID string) (*models.VerificationRequest, error) {
	emailEnc, err := r.codec.Encrypt(cryptox.NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt email: %w", err)
	}
	expiresAt := time.Now().Add(models.VerificationTTL)

	query := `
		INSERT INTO verification_requests (tenant_id, content_id, email_enc, email_hash, token_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, tenant_id, content_id, email_enc, expires_at, verified_at, esp_error, esp_error_at, created_at
	`

	var lastErr error
	for attempt := 0; attempt < tokenInsertRetries; attempt++ {
		tok, err := token.NewVerificationToken()
		if err != nil {
			return nil, err
		}

		req, err := r.scanRequestRow(r.pool.QueryRow(ctx, query,
			tenantID, contentID, emailEnc, r.codec.Index(email), token.Hash(tok), expiresAt))
		if err == nil {
			req.Token = tok
			return req, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return nil, fmt.Errorf("failed to create verification request: %w", err)
		}
		lastErr = err
	}

	return nil, fmt.Errorf("token collision persisted after %d attempts: %w", tokenInsertRetries, lastErr)
}

// GetByToken retrieves a request by re-hashing the presented plain token
func (r *VerificationRequestRepository) GetByToken(ctx context.Context, tok string) (*models.VerificationRequest, error) {
	query := `
		SELECT id, tenant_id, content_id, email_enc, expires_at, verified_at, esp_error, esp_error_at, created_at
		FROM verification_requests
		WHERE token_hash = $1
	`

	return r.scanRequestRow(r.pool.QueryRow(ctx, query, token.Hash(tok)))
}

// MarkVerified performs the one-way requested -> verified transition as a
// single conditional update. The returned claimed flag is false when a
// concurrent redemption already won; callers treat that as idempotent
// success and must not repeat ESP side effects.
func (r *VerificationRequestRepository) MarkVerified(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE verification_requests
		SET verified_at = NOW()
		WHERE id = $1 AND verified_at IS NULL
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark request verified: %w", database.MapPostgresError(err))
	}

	return result.RowsAffected() > 0, nil
}

// RecordESPError captures a failed ESP sync on an already-verified request.
// Access stays granted; the error fields exist for manual reconciliation.
func (r *VerificationRequestRepository) RecordESPError(ctx context.Context, id, message string) error {
	query := `
		UPDATE verification_requests
		SET esp_error = $2, esp_error_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, message)
	if err != nil {
		return fmt.Errorf("failed to record esp error: %w", database.MapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// CleanupExpired deletes requests whose link expired more than 30 days ago
func (r *VerificationRequestRepository) CleanupExpired(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM verification_requests
		WHERE expires_at < NOW() - INTERVAL '30 days'
	`

	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired requests: %w", err)
	}

	return result.RowsAffected(), nil
}
