package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/listgate/listgate/internal/models"
	"github.com/listgate/listgate/internal/services"
	pkghttp "github.com/listgate/listgate/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithURLParams attaches chi route parameters to a request
func WithURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// findCookie returns the named cookie from a recorded response, or nil
func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// MockVerificationService implements VerificationServiceInterface for testing
type MockVerificationService struct {
	RequestAccessFunc func(ctx context.Context, slug, email string) (*services.RequestAccessResult, error)
	ConfirmTokenFunc  func(ctx context.Context, token string) (*services.ConfirmResult, error)
}

func (m *MockVerificationService) RequestAccess(ctx context.Context, slug, email string) (*services.RequestAccessResult, error) {
	return m.RequestAccessFunc(ctx, slug, email)
}

func (m *MockVerificationService) ConfirmToken(ctx context.Context, token string) (*services.ConfirmResult, error) {
	return m.ConfirmTokenFunc(ctx, token)
}

// MockAccessCacheService implements AccessCacheServiceInterface for testing
type MockAccessCacheService struct {
	ResolveFunc func(ctx context.Context, slug, cookieToken string) (*services.Resolution, error)
}

func (m *MockAccessCacheService) Resolve(ctx context.Context, slug, cookieToken string) (*services.Resolution, error) {
	return m.ResolveFunc(ctx, slug, cookieToken)
}

// MockAccessCheckService implements AccessCheckServiceInterface for testing
type MockAccessCheckService struct {
	PollStatusFunc func(ctx context.Context, recordID, tenantID, requiredTagID string) (*services.PollStatusResult, error)
}

func (m *MockAccessCheckService) PollStatus(ctx context.Context, recordID, tenantID, requiredTagID string) (*services.PollStatusResult, error) {
	return m.PollStatusFunc(ctx, recordID, tenantID, requiredTagID)
}

// MockContentReader implements ContentReader for testing
type MockContentReader struct {
	GetBySlugFunc func(ctx context.Context, slug string) (*models.Content, error)
}

func (m *MockContentReader) GetBySlug(ctx context.Context, slug string) (*models.Content, error) {
	return m.GetBySlugFunc(ctx, slug)
}

// Fixtures

func handlerTestTenant() *models.Tenant {
	return &models.Tenant{
		ID:                "tenant-1",
		Name:              "Acme Letters",
		ESPProvider:       models.ESPKit,
		CacheDurationDays: 7,
	}
}

func handlerTestContent() *models.Content {
	return &models.Content{
		ID:            "content-1",
		TenantID:      "tenant-1",
		Slug:          "secret-post",
		Title:         "Secret Post",
		Body:          "members only",
		RequiredTagID: "42",
	}
}

func newTestHandler(
	verification VerificationServiceInterface,
	cache AccessCacheServiceInterface,
	checks AccessCheckServiceInterface,
	contents ContentReader,
) *AccessHandler {
	return NewAccessHandler(verification, cache, checks, contents, CookieConfig{}, slog.Default())
}
