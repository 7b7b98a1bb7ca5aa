package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/listgate/listgate/internal/cryptox"
	"github.com/listgate/listgate/internal/database"
	"github.com/listgate/listgate/internal/models"
	"github.com/listgate/listgate/internal/token"
)

// checkReclaimAfter is how long a pending/processing cycle may sit without
// progress before a new cycle may take it over. A job lost between enqueue
// and worker would otherwise wedge the record in a non-terminal status
// forever.
const checkReclaimAfter = 5 * time.Minute

// AccessRecordRepository handles access record data access. All writes to
// check_status are conditional updates so a check cycle can only move
// forward; RowsAffected tells the caller whether it won the transition.
type AccessRecordRepository struct {
	pool  *pgxpool.Pool
	codec *cryptox.Codec
}

// NewAccessRecordRepository creates a new AccessRecordRepository
func NewAccessRecordRepository(db *database.DB, codec *cryptox.Codec) *AccessRecordRepository {
	return &AccessRecordRepository{pool: db.Pool, codec: codec}
}

const accessRecordColumns = `id, tenant_id, email_enc, subscriber_id, tags,
		last_verified_at, check_status, check_error, created_at, updated_at`

// scanRecordRow populates an AccessRecord from a database row. The cookie
// token column holds only a hash, so rec.CookieToken stays empty; the
// writes that mint a plain token (Create, RecordVerified) fill it in.
func (r *AccessRecordRepository) scanRecordRow(row rowScanner) (*models.AccessRecord, error) {
	var rec models.AccessRecord
	var emailEnc []byte
	var subscriberID, checkError *string

	err := row.Scan(
		&rec.ID, &rec.TenantID, &emailEnc, &subscriberID, &rec.Tags,
		&rec.LastVerifiedAt, &rec.CheckStatus, &checkError,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	email, err := r.codec.Decrypt(emailEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt record email: %w", err)
	}

	rec.Email = email
	rec.SubscriberID = subscriberID
	rec.CheckError = checkError
	return &rec, nil
}

// Create persists a new access record. Email, tags, cookie token and the
// initial check status come from the caller; timestamps are set here.
func (r *AccessRecordRepository) Create(ctx context.Context, rec *models.AccessRecord) (*models.AccessRecord, error) {
	emailEnc, err := r.codec.Encrypt(cryptox.NormalizeEmail(rec.Email))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt email: %w", err)
	}

	query := `
		INSERT INTO access_records (tenant_id, email_enc, email_hash, subscriber_id, tags, cookie_token_hash, last_verified_at, check_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + accessRecordColumns

	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}

	created, err := r.scanRecordRow(r.pool.QueryRow(ctx, query,
		rec.TenantID, emailEnc, r.codec.Index(rec.Email), rec.SubscriberID,
		tags, token.Hash(rec.CookieToken), rec.LastVerifiedAt, rec.CheckStatus))
	if err != nil {
		return nil, fmt.Errorf("failed to create access record: %w", err)
	}

	created.CookieToken = rec.CookieToken
	return created, nil
}

// GetByID retrieves an access record by ID
func (r *AccessRecordRepository) GetByID(ctx context.Context, id string) (*models.AccessRecord, error) {
	query := `SELECT ` + accessRecordColumns + ` FROM access_records WHERE id = $1`
	return r.scanRecordRow(r.pool.QueryRow(ctx, query, id))
}

// GetByCookie retrieves the record bound to a cookie token, scoped to the
// tenant. The presented token is re-hashed for the lookup; a token
// belonging to another tenant reads as a cache miss.
func (r *AccessRecordRepository) GetByCookie(ctx context.Context, cookieToken, tenantID string) (*models.AccessRecord, error) {
	query := `SELECT ` + accessRecordColumns + ` FROM access_records WHERE cookie_token_hash = $1 AND tenant_id = $2`
	return r.scanRecordRow(r.pool.QueryRow(ctx, query, token.Hash(cookieToken), tenantID))
}

// GetByEmail retrieves a tenant's record for an email via the blind index
func (r *AccessRecordRepository) GetByEmail(ctx context.Context, email, tenantID string) (*models.AccessRecord, error) {
	query := `SELECT ` + accessRecordColumns + ` FROM access_records WHERE email_hash = $1 AND tenant_id = $2`
	return r.scanRecordRow(r.pool.QueryRow(ctx, query, r.codec.Index(email), tenantID))
}

// RecordVerified refreshes a record after a successful verification or tag
// sync: new tag set, fresh last_verified_at, terminal completed status, and
// a rotated cookie token. Only the hash is stored, so every verification
// mints a new plain token for the browser.
func (r *AccessRecordRepository) RecordVerified(ctx context.Context, id string, subscriberID *string, tags []string, cookieToken string) (*models.AccessRecord, error) {
	query := `
		UPDATE access_records
		SET subscriber_id = COALESCE($2, subscriber_id),
		    tags = $3,
		    cookie_token_hash = $4,
		    last_verified_at = NOW(),
		    check_status = 'completed',
		    check_error = NULL,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accessRecordColumns

	if tags == nil {
		tags = []string{}
	}

	rec, err := r.scanRecordRow(r.pool.QueryRow(ctx, query, id, subscriberID, tags, token.Hash(cookieToken)))
	if err != nil {
		return nil, fmt.Errorf("failed to record verification: %w", err)
	}

	rec.CookieToken = cookieToken
	return rec, nil
}

// MarkCheckPending begins a new check cycle. Returns false without touching
// the row when a cycle is already in flight, which is the concurrency guard
// against double-starting a check. An in-flight cycle older than the
// reclaim threshold counts as abandoned and is taken over.
func (r *AccessRecordRepository) MarkCheckPending(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE access_records
		SET check_status = 'pending', check_error = NULL, updated_at = NOW()
		WHERE id = $1
		  AND (check_status NOT IN ('pending', 'processing')
		       OR updated_at < NOW() - make_interval(secs => $2))
	`

	result, err := r.pool.Exec(ctx, query, id, checkReclaimAfter.Seconds())
	if err != nil {
		return false, fmt.Errorf("failed to mark check pending: %w", database.MapPostgresError(err))
	}

	return result.RowsAffected() > 0, nil
}

// MarkCheckProcessing claims a pending check for a worker
func (r *AccessRecordRepository) MarkCheckProcessing(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE access_records
		SET check_status = 'processing', updated_at = NOW()
		WHERE id = $1 AND check_status = 'pending'
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark check processing: %w", database.MapPostgresError(err))
	}

	return result.RowsAffected() > 0, nil
}

// CompleteCheck writes the terminal completed status with the refreshed tag
// set. Only a processing cycle can complete; a late worker whose cycle was
// superseded writes nothing.
func (r *AccessRecordRepository) CompleteCheck(ctx context.Context, id string, tags []string) error {
	query := `
		UPDATE access_records
		SET tags = $2,
		    last_verified_at = NOW(),
		    check_status = 'completed',
		    check_error = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND check_status = 'processing'
	`

	if tags == nil {
		tags = []string{}
	}

	result, err := r.pool.Exec(ctx, query, id, tags)
	if err != nil {
		return fmt.Errorf("failed to complete check: %w", database.MapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// FailCheck writes the terminal failed status with the captured error.
// Allowed from pending as well, so a job that never reached a worker can
// still terminate its cycle.
func (r *AccessRecordRepository) FailCheck(ctx context.Context, id, message string) error {
	query := `
		UPDATE access_records
		SET check_status = 'failed', check_error = $2, updated_at = NOW()
		WHERE id = $1 AND check_status IN ('pending', 'processing')
	`

	result, err := r.pool.Exec(ctx, query, id, message)
	if err != nil {
		return fmt.Errorf("failed to fail check: %w", database.MapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
