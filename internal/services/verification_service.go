package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/listgate/listgate/internal/esp"
	"github.com/listgate/listgate/internal/models"
	"github.com/listgate/listgate/internal/token"
	pkglogger "github.com/listgate/listgate/pkg/logger"
)

// VerificationRequestRepository defines the interface for verification
// request storage
type VerificationRequestRepository interface {
	Create(ctx context.Context, email, contentID, tenantID string) (*models.VerificationRequest, error)
	GetByToken(ctx context.Context, token string) (*models.VerificationRequest, error)
	MarkVerified(ctx context.Context, id string) (bool, error)
	RecordESPError(ctx context.Context, id, message string) error
	CleanupExpired(ctx context.Context) (int64, error)
}

// AccessRecordRepository defines the interface for access record storage
type AccessRecordRepository interface {
	Create(ctx context.Context, rec *models.AccessRecord) (*models.AccessRecord, error)
	GetByID(ctx context.Context, id string) (*models.AccessRecord, error)
	GetByCookie(ctx context.Context, cookieToken, tenantID string) (*models.AccessRecord, error)
	GetByEmail(ctx context.Context, email, tenantID string) (*models.AccessRecord, error)
	RecordVerified(ctx context.Context, id string, subscriberID *string, tags []string, cookieToken string) (*models.AccessRecord, error)
	MarkCheckPending(ctx context.Context, id string) (bool, error)
	MarkCheckProcessing(ctx context.Context, id string) (bool, error)
	CompleteCheck(ctx context.Context, id string, tags []string) error
	FailCheck(ctx context.Context, id, message string) error
}

// ContentRepository defines read access to gated content
type ContentRepository interface {
	GetBySlug(ctx context.Context, slug string) (*models.Content, error)
	GetByID(ctx context.Context, id string) (*models.Content, error)
}

// TenantRepository defines read access to tenant configuration
type TenantRepository interface {
	GetByID(ctx context.Context, id string) (*models.Tenant, error)
}

// GatewayResolver resolves the ESP gateway for a tenant's configuration
type GatewayResolver interface {
	ForTenant(tenant *models.Tenant) (esp.Gateway, error)
}

// Access request actions
const (
	ActionVerificationSent = "verification_sent"
	ActionImmediateAccess  = "immediate_access"
)

// RequestAccessResult is the outcome of an access-form submission
type RequestAccessResult struct {
	Action      string
	Content     *models.Content
	Tenant      *models.Tenant
	CookieToken string // set only on immediate access
}

// ConfirmResult is the outcome of redeeming a verification link
type ConfirmResult struct {
	Content     *models.Content
	Tenant      *models.Tenant
	CookieToken string
}

// VerificationService orchestrates the email-confirm flow: request creation,
// expiry, token redemption, ESP sync, and access record issuance.
type VerificationService struct {
	requests VerificationRequestRepository
	records  AccessRecordRepository
	contents ContentRepository
	tenants  TenantRepository
	esp      GatewayResolver
	email    EmailService
	logger   *slog.Logger
}

// NewVerificationService creates a new VerificationService
func NewVerificationService(
	requests VerificationRequestRepository,
	records AccessRecordRepository,
	contents ContentRepository,
	tenants TenantRepository,
	resolver GatewayResolver,
	email EmailService,
	logger *slog.Logger,
) *VerificationService {
	return &VerificationService{
		requests: requests,
		records:  records,
		contents: contents,
		tenants:  tenants,
		esp:      resolver,
		email:    email,
		logger:   logger,
	}
}

// RequestAccess handles an access-form submission for gated content. When
// the ESP already shows the required tag on this email, access is granted
// immediately without a confirmation email; otherwise a verification request
// is created and the confirmation link is sent.
func (s *VerificationService) RequestAccess(ctx context.Context, slug, email string) (*RequestAccessResult, error) {
	content, err := s.contents.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	tenant, err := s.tenants.GetByID(ctx, content.TenantID)
	if err != nil {
		return nil, err
	}

	gateway, err := s.esp.ForTenant(tenant)
	if err != nil {
		return nil, err
	}

	tags, err := gateway.FindSubscriberTags(ctx, email)
	switch {
	case err == nil && containsTag(tags, content.RequiredTagID):
		cookieToken, grantErr := s.grantAccess(ctx, tenant, email, nil, tags)
		if grantErr != nil {
			return nil, grantErr
		}
		s.logger.Info("immediate access granted",
			slog.String("tenant_id", tenant.ID),
			slog.String("content_id", content.ID),
			slog.String("email", pkglogger.SanitizedEmail(email)))
		return &RequestAccessResult{
			Action:      ActionImmediateAccess,
			Content:     content,
			Tenant:      tenant,
			CookieToken: cookieToken,
		}, nil

	case err != nil && !errors.Is(err, esp.ErrSubscriberNotFound):
		// ESP trouble on the request path degrades to the email flow; the
		// confirmation click will retry the lookup implicitly via tagging.
		s.logger.Warn("esp lookup failed during access request, falling back to email verification",
			slog.String("tenant_id", tenant.ID),
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
	}

	req, err := s.requests.Create(ctx, email, content.ID, tenant.ID)
	if err != nil {
		s.logger.Error("failed to create verification request",
			slog.String("tenant_id", tenant.ID),
			slog.String("content_id", content.ID),
			slog.Any("error", err))
		return nil, fmt.Errorf("failed to create verification request: %w", err)
	}

	if err := s.email.SendVerificationEmail(ctx, email, req.Token, content.Title, req.ExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to send verification email: %w", err)
	}

	s.logger.Info("verification email dispatched",
		slog.String("tenant_id", tenant.ID),
		slog.String("content_id", content.ID),
		slog.String("email", pkglogger.SanitizedEmail(email)))

	return &RequestAccessResult{
		Action:  ActionVerificationSent,
		Content: content,
		Tenant:  tenant,
	}, nil
}

// ConfirmToken redeems a verification link. Missing and expired tokens fail
// with ErrLinkExpired; an already-verified request succeeds idempotently
// without repeating the ESP tag call. ESP failure during confirmation is
// recorded on the request but never blocks access.
func (s *VerificationService) ConfirmToken(ctx context.Context, tok string) (*ConfirmResult, error) {
	req, err := s.requests.GetByToken(ctx, tok)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrLinkExpired
		}
		return nil, err
	}
	if req.IsExpired() {
		s.logger.Info("expired verification link redeemed",
			slog.String("request_id", req.ID),
			slog.Time("expires_at", req.ExpiresAt))
		return nil, models.ErrLinkExpired
	}

	content, err := s.contents.GetByID(ctx, req.ContentID)
	if err != nil {
		return nil, err
	}
	tenant, err := s.tenants.GetByID(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	// The conditional update is the concurrency guard: under concurrent
	// redemption (mail clients prefetch links) exactly one caller claims the
	// request and performs the ESP tag call.
	claimed := false
	if !req.IsVerified() {
		claimed, err = s.requests.MarkVerified(ctx, req.ID)
		if err != nil {
			return nil, err
		}
	}

	var subscriberID *string
	if claimed {
		gateway, err := s.esp.ForTenant(tenant)
		if err != nil {
			return nil, err
		}

		subID, tagErr := gateway.TagSubscriber(ctx, req.Email, content.RequiredTagID)
		if tagErr != nil {
			// Access is still granted; the error fields exist so the drift
			// can be reconciled manually.
			s.logger.Warn("esp tagging failed during confirmation, granting access anyway",
				slog.String("request_id", req.ID),
				slog.String("tenant_id", tenant.ID),
				slog.String("email", pkglogger.SanitizedEmail(req.Email)),
				slog.Any("error", tagErr))
			if recErr := s.requests.RecordESPError(ctx, req.ID, tagErr.Error()); recErr != nil {
				s.logger.Error("failed to record esp error",
					slog.String("request_id", req.ID),
					slog.Any("error", recErr))
			}
		} else {
			subscriberID = &subID
		}
	}

	cookieToken, err := s.grantAccess(ctx, tenant, req.Email, subscriberID, []string{content.RequiredTagID})
	if err != nil {
		return nil, err
	}

	s.logger.Info("verification confirmed",
		slog.String("request_id", req.ID),
		slog.String("tenant_id", tenant.ID),
		slog.String("content_id", content.ID),
		slog.Bool("claimed", claimed))

	return &ConfirmResult{
		Content:     content,
		Tenant:      tenant,
		CookieToken: cookieToken,
	}, nil
}

// CleanupExpiredRequests removes long-expired verification requests; wired
// to the background cleanup manager
func (s *VerificationService) CleanupExpiredRequests(ctx context.Context) (int64, error) {
	return s.requests.CleanupExpired(ctx)
}

// grantRetries bounds the conflict loop in grantAccess: each retry either
// re-reads a record a concurrent grant just created or re-inserts with a
// fresh cookie token.
const grantRetries = 3

// grantAccess creates or refreshes the tenant's access record for this
// email and returns a fresh cookie token binding it to the browser. The tag
// set becomes the union of what is already recorded and what was just
// learned. A conflict on insert means either a cookie-token collision or a
// concurrent grant for the same email winning the unique email index; both
// resolve by going around the loop again.
func (s *VerificationService) grantAccess(ctx context.Context, tenant *models.Tenant, email string, subscriberID *string, tags []string) (string, error) {
	for attempt := 0; attempt < grantRetries; attempt++ {
		existing, err := s.records.GetByEmail(ctx, email, tenant.ID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return "", err
		}

		cookieToken, err := token.NewCookieToken()
		if err != nil {
			return "", err
		}

		if existing != nil {
			updated, err := s.records.RecordVerified(ctx, existing.ID, subscriberID, unionTags(existing.Tags, tags), cookieToken)
			if err != nil {
				return "", err
			}
			return updated.CookieToken, nil
		}

		created, err := s.records.Create(ctx, &models.AccessRecord{
			TenantID:       tenant.ID,
			Email:          email,
			SubscriberID:   subscriberID,
			Tags:           unionTags(nil, tags),
			CookieToken:    cookieToken,
			LastVerifiedAt: time.Now(),
			CheckStatus:    models.CheckCompleted,
		})
		if err == nil {
			return created.CookieToken, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return "", err
		}

		s.logger.Debug("access record insert conflicted, retrying grant",
			slog.String("tenant_id", tenant.ID),
			slog.String("email", pkglogger.SanitizedEmail(email)))
	}

	return "", fmt.Errorf("access record conflict persisted after %d attempts: %w", grantRetries, models.ErrConflict)
}

func containsTag(tags []string, tagID string) bool {
	for _, t := range tags {
		if t == tagID {
			return true
		}
	}
	return false
}

func unionTags(existing, added []string) []string {
	out := make([]string, 0, len(existing)+len(added))
	seen := make(map[string]bool, len(existing)+len(added))
	for _, t := range existing {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range added {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
