package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/listgate/listgate/internal/models"
)

// Outcome classifies a cache resolution
type Outcome string

const (
	// OutcomeGranted: the cached verification is fresh and carries the
	// required tag; serve the content.
	OutcomeGranted Outcome = "granted"
	// OutcomeDenied: no usable record, or a fresh record without the tag;
	// route to the access-request form.
	OutcomeDenied Outcome = "denied"
	// OutcomeChecking: the record is stale; a background check was started
	// and the caller should poll.
	OutcomeChecking Outcome = "checking"
)

// Resolution is the result of consulting the access cache for a visitor
type Resolution struct {
	Outcome Outcome
	Content *models.Content
	Record  *models.AccessRecord // set when Outcome is OutcomeChecking
}

// CheckStarter begins a background access check for a stale record
type CheckStarter interface {
	StartCheck(ctx context.Context, recordID, tenantID, requiredTagID string) error
}

// AccessCacheService decides whether a previously verified visitor may skip
// re-verification, based on the tenant's validity window.
type AccessCacheService struct {
	records  AccessRecordRepository
	contents ContentRepository
	tenants  TenantRepository
	checks   CheckStarter
	logger   *slog.Logger
}

// NewAccessCacheService creates a new AccessCacheService
func NewAccessCacheService(
	records AccessRecordRepository,
	contents ContentRepository,
	tenants TenantRepository,
	checks CheckStarter,
	logger *slog.Logger,
) *AccessCacheService {
	return &AccessCacheService{
		records:  records,
		contents: contents,
		tenants:  tenants,
		checks:   checks,
		logger:   logger,
	}
}

// Resolve looks up the visitor's access record by cookie and classifies it.
// A cookie from another tenant reads as a miss, not an error. Freshness is
// recomputed from the stored last_verified_at at read time, so tenant window
// changes apply immediately without rewriting records.
func (s *AccessCacheService) Resolve(ctx context.Context, slug, cookieToken string) (*Resolution, error) {
	content, err := s.contents.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	if cookieToken == "" {
		return &Resolution{Outcome: OutcomeDenied, Content: content}, nil
	}

	tenant, err := s.tenants.GetByID(ctx, content.TenantID)
	if err != nil {
		return nil, err
	}

	rec, err := s.records.GetByCookie(ctx, cookieToken, tenant.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &Resolution{Outcome: OutcomeDenied, Content: content}, nil
		}
		return nil, err
	}

	if rec.IsFresh(tenant.CacheWindow(), time.Now()) {
		if rec.HasTag(content.RequiredTagID) {
			return &Resolution{Outcome: OutcomeGranted, Content: content, Record: rec}, nil
		}
		return &Resolution{Outcome: OutcomeDenied, Content: content, Record: rec}, nil
	}

	// Stale: kick off a background re-check; the visitor polls the status
	// endpoint while it runs.
	if err := s.checks.StartCheck(ctx, rec.ID, tenant.ID, content.RequiredTagID); err != nil {
		// The check terminated its cycle as failed; polling will surface it
		// and fall back to the manual form.
		s.logger.Error("failed to start access check",
			slog.String("access_record_id", rec.ID),
			slog.String("tenant_id", tenant.ID),
			slog.Any("error", err))
	}

	return &Resolution{Outcome: OutcomeChecking, Content: content, Record: rec}, nil
}
