package services

import (
	"context"
	"time"

	"github.com/listgate/listgate/internal/esp"
	"github.com/listgate/listgate/internal/models"
	"github.com/listgate/listgate/internal/queue"
)

// MockVerificationRequestRepository implements VerificationRequestRepository for testing
type MockVerificationRequestRepository struct {
	CreateFunc         func(ctx context.Context, email, contentID, tenantID string) (*models.VerificationRequest, error)
	GetByTokenFunc     func(ctx context.Context, token string) (*models.VerificationRequest, error)
	MarkVerifiedFunc   func(ctx context.Context, id string) (bool, error)
	RecordESPErrorFunc func(ctx context.Context, id, message string) error
	CleanupExpiredFunc func(ctx context.Context) (int64, error)
}

func (m *MockVerificationRequestRepository) Create(ctx context.Context, email, contentID, tenantID string) (*models.VerificationRequest, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, email, contentID, tenantID)
	}
	return nil, models.ErrInternalServer
}

func (m *MockVerificationRequestRepository) GetByToken(ctx context.Context, token string) (*models.VerificationRequest, error) {
	if m.GetByTokenFunc != nil {
		return m.GetByTokenFunc(ctx, token)
	}
	return nil, models.ErrNotFound
}

func (m *MockVerificationRequestRepository) MarkVerified(ctx context.Context, id string) (bool, error) {
	if m.MarkVerifiedFunc != nil {
		return m.MarkVerifiedFunc(ctx, id)
	}
	return true, nil
}

func (m *MockVerificationRequestRepository) RecordESPError(ctx context.Context, id, message string) error {
	if m.RecordESPErrorFunc != nil {
		return m.RecordESPErrorFunc(ctx, id, message)
	}
	return nil
}

func (m *MockVerificationRequestRepository) CleanupExpired(ctx context.Context) (int64, error) {
	if m.CleanupExpiredFunc != nil {
		return m.CleanupExpiredFunc(ctx)
	}
	return 0, nil
}

// MockAccessRecordRepository implements AccessRecordRepository for testing
type MockAccessRecordRepository struct {
	CreateFunc              func(ctx context.Context, rec *models.AccessRecord) (*models.AccessRecord, error)
	GetByIDFunc             func(ctx context.Context, id string) (*models.AccessRecord, error)
	GetByCookieFunc         func(ctx context.Context, cookieToken, tenantID string) (*models.AccessRecord, error)
	GetByEmailFunc          func(ctx context.Context, email, tenantID string) (*models.AccessRecord, error)
	RecordVerifiedFunc      func(ctx context.Context, id string, subscriberID *string, tags []string, cookieToken string) (*models.AccessRecord, error)
	MarkCheckPendingFunc    func(ctx context.Context, id string) (bool, error)
	MarkCheckProcessingFunc func(ctx context.Context, id string) (bool, error)
	CompleteCheckFunc       func(ctx context.Context, id string, tags []string) error
	FailCheckFunc           func(ctx context.Context, id, message string) error
}

func (m *MockAccessRecordRepository) Create(ctx context.Context, rec *models.AccessRecord) (*models.AccessRecord, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, rec)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAccessRecordRepository) GetByID(ctx context.Context, id string) (*models.AccessRecord, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccessRecordRepository) GetByCookie(ctx context.Context, cookieToken, tenantID string) (*models.AccessRecord, error) {
	if m.GetByCookieFunc != nil {
		return m.GetByCookieFunc(ctx, cookieToken, tenantID)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccessRecordRepository) GetByEmail(ctx context.Context, email, tenantID string) (*models.AccessRecord, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email, tenantID)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccessRecordRepository) RecordVerified(ctx context.Context, id string, subscriberID *string, tags []string, cookieToken string) (*models.AccessRecord, error) {
	if m.RecordVerifiedFunc != nil {
		return m.RecordVerifiedFunc(ctx, id, subscriberID, tags, cookieToken)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAccessRecordRepository) MarkCheckPending(ctx context.Context, id string) (bool, error) {
	if m.MarkCheckPendingFunc != nil {
		return m.MarkCheckPendingFunc(ctx, id)
	}
	return true, nil
}

func (m *MockAccessRecordRepository) MarkCheckProcessing(ctx context.Context, id string) (bool, error) {
	if m.MarkCheckProcessingFunc != nil {
		return m.MarkCheckProcessingFunc(ctx, id)
	}
	return true, nil
}

func (m *MockAccessRecordRepository) CompleteCheck(ctx context.Context, id string, tags []string) error {
	if m.CompleteCheckFunc != nil {
		return m.CompleteCheckFunc(ctx, id, tags)
	}
	return nil
}

func (m *MockAccessRecordRepository) FailCheck(ctx context.Context, id, message string) error {
	if m.FailCheckFunc != nil {
		return m.FailCheckFunc(ctx, id, message)
	}
	return nil
}

// MockContentRepository implements ContentRepository for testing
type MockContentRepository struct {
	GetBySlugFunc func(ctx context.Context, slug string) (*models.Content, error)
	GetByIDFunc   func(ctx context.Context, id string) (*models.Content, error)
}

func (m *MockContentRepository) GetBySlug(ctx context.Context, slug string) (*models.Content, error) {
	if m.GetBySlugFunc != nil {
		return m.GetBySlugFunc(ctx, slug)
	}
	return nil, models.ErrNotFound
}

func (m *MockContentRepository) GetByID(ctx context.Context, id string) (*models.Content, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

// MockTenantRepository implements TenantRepository for testing
type MockTenantRepository struct {
	GetByIDFunc func(ctx context.Context, id string) (*models.Tenant, error)
}

func (m *MockTenantRepository) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

// MockGateway implements esp.Gateway for testing
type MockGateway struct {
	FindSubscriberTagsFunc  func(ctx context.Context, email string) ([]string, error)
	TagSubscriberFunc       func(ctx context.Context, email, tagID string) (string, error)
	ValidateCredentialsFunc func(ctx context.Context) *esp.ValidationResult
}

func (m *MockGateway) FindSubscriberTags(ctx context.Context, email string) ([]string, error) {
	if m.FindSubscriberTagsFunc != nil {
		return m.FindSubscriberTagsFunc(ctx, email)
	}
	return nil, esp.ErrSubscriberNotFound
}

func (m *MockGateway) TagSubscriber(ctx context.Context, email, tagID string) (string, error) {
	if m.TagSubscriberFunc != nil {
		return m.TagSubscriberFunc(ctx, email, tagID)
	}
	return "", models.ErrESPUnavailable
}

func (m *MockGateway) ValidateCredentials(ctx context.Context) *esp.ValidationResult {
	if m.ValidateCredentialsFunc != nil {
		return m.ValidateCredentialsFunc(ctx)
	}
	return &esp.ValidationResult{Valid: true}
}

// staticResolver returns the same gateway for every tenant
type staticResolver struct {
	gateway esp.Gateway
}

func (r *staticResolver) ForTenant(tenant *models.Tenant) (esp.Gateway, error) {
	return r.gateway, nil
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendVerificationEmailFunc func(ctx context.Context, email, token, contentTitle string, expiresAt time.Time) error
}

func (m *MockEmailService) SendVerificationEmail(ctx context.Context, email, token, contentTitle string, expiresAt time.Time) error {
	if m.SendVerificationEmailFunc != nil {
		return m.SendVerificationEmailFunc(ctx, email, token, contentTitle, expiresAt)
	}
	return nil
}

// MockCheckEnqueuer implements CheckEnqueuer for testing
type MockCheckEnqueuer struct {
	EnqueueFunc func(ctx context.Context, job queue.CheckJob) error
	Jobs        []queue.CheckJob
}

func (m *MockCheckEnqueuer) Enqueue(ctx context.Context, job queue.CheckJob) error {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, job)
	}
	m.Jobs = append(m.Jobs, job)
	return nil
}

// MockCheckStarter implements CheckStarter for testing
type MockCheckStarter struct {
	StartCheckFunc func(ctx context.Context, recordID, tenantID, requiredTagID string) error
	Started        []string
}

func (m *MockCheckStarter) StartCheck(ctx context.Context, recordID, tenantID, requiredTagID string) error {
	if m.StartCheckFunc != nil {
		return m.StartCheckFunc(ctx, recordID, tenantID, requiredTagID)
	}
	m.Started = append(m.Started, recordID)
	return nil
}

// Test fixtures

func testTenant() *models.Tenant {
	return &models.Tenant{
		ID:                "tenant-1",
		Name:              "Acme Newsletter",
		ESPProvider:       models.ESPKit,
		ESPAPIKey:         "test-key",
		CacheDurationDays: 7,
	}
}

func testContent() *models.Content {
	return &models.Content{
		ID:            "content-1",
		TenantID:      "tenant-1",
		Slug:          "secret-post",
		Title:         "Secret Post",
		RequiredTagID: "42",
	}
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
