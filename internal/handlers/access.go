package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/listgate/listgate/internal/models"
	"github.com/listgate/listgate/internal/services"
	pkghttp "github.com/listgate/listgate/pkg/http"
	"github.com/listgate/listgate/pkg/logger"
)

// VerificationServiceInterface defines the interface for the email-confirm flow
type VerificationServiceInterface interface {
	RequestAccess(ctx context.Context, slug, email string) (*services.RequestAccessResult, error)
	ConfirmToken(ctx context.Context, token string) (*services.ConfirmResult, error)
}

// AccessCacheServiceInterface defines the interface for cookie-based access resolution
type AccessCacheServiceInterface interface {
	Resolve(ctx context.Context, slug, cookieToken string) (*services.Resolution, error)
}

// AccessCheckServiceInterface defines the interface for background check status
type AccessCheckServiceInterface interface {
	PollStatus(ctx context.Context, recordID, tenantID, requiredTagID string) (*services.PollStatusResult, error)
}

// ContentReader looks up gated content for tag resolution at the edge
type ContentReader interface {
	GetBySlug(ctx context.Context, slug string) (*models.Content, error)
}

// AccessHandler handles the public content-gating HTTP surface
type AccessHandler struct {
	verification VerificationServiceInterface
	cache        AccessCacheServiceInterface
	checks       AccessCheckServiceInterface
	contents     ContentReader
	cookieConfig CookieConfig
	logger       *slog.Logger
}

// NewAccessHandler creates a new AccessHandler
func NewAccessHandler(
	verification VerificationServiceInterface,
	cache AccessCacheServiceInterface,
	checks AccessCheckServiceInterface,
	contents ContentReader,
	cookieConfig CookieConfig,
	logger *slog.Logger,
) *AccessHandler {
	return &AccessHandler{
		verification: verification,
		cache:        cache,
		checks:       checks,
		contents:     contents,
		cookieConfig: cookieConfig,
		logger:       logger,
	}
}

// Request DTOs

// RequestAccessRequest represents the request body for the access form
type RequestAccessRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// RequestAccessResponse represents the outcome of an access-form submission
type RequestAccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Action  string `json:"action"`
}

// AccessStatusResponse reports a background check's progress to the polling client
type AccessStatusResponse struct {
	Status              string `json:"status"`
	HasAccess           *bool  `json:"has_access,omitempty"`
	RedirectURL         string `json:"redirect_url,omitempty"`
	PollIntervalSeconds int    `json:"poll_interval_seconds"`
	PollMaxAttempts     int    `json:"poll_max_attempts"`
}

// ContentResponse is the granted payload for gated content
type ContentResponse struct {
	Access  string          `json:"access"`
	Content *ContentPayload `json:"content,omitempty"`
}

// ContentPayload is the served portion of a content row
type ContentPayload struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// CheckingResponse tells the client to poll the status endpoint
type CheckingResponse struct {
	Access              string `json:"access"`
	AccessRecordID      string `json:"access_record_id"`
	StatusURL           string `json:"status_url"`
	PollIntervalSeconds int    `json:"poll_interval_seconds"`
	PollMaxAttempts     int    `json:"poll_max_attempts"`
}

// DeniedResponse points a visitor without access at the request form
type DeniedResponse struct {
	Access           string `json:"access"`
	RequestAccessURL string `json:"request_access_url"`
}

// RequestAccess handles the access form for a piece of gated content.
// When the visitor's email already carries the required tag on the ESP,
// access is granted immediately and the cookie is set in this response;
// otherwise a confirmation email goes out.
func (h *AccessHandler) RequestAccess(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	var req RequestAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.verification.RequestAccess(r.Context(), slug, req.Email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Content not found")
			return
		}
		h.logger.Error("request access failed",
			slog.String("slug", slug),
			slog.String("email", logger.SanitizedEmail(req.Email)),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := RequestAccessResponse{Success: true, Action: result.Action}
	switch result.Action {
	case services.ActionImmediateAccess:
		SetAccessCookie(w, result.CookieToken, result.Tenant.CacheWindow(), h.cookieConfig)
		resp.Message = "You already have access."
	default:
		resp.Message = "Check your email for a confirmation link."
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Verify redeems a confirmation link. On success the access cookie is set
// and the browser is redirected to the content it unlocked; expired or
// unknown tokens get a 410 so the expired view can offer a fresh form.
func (h *AccessHandler) Verify(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		pkghttp.WriteBadRequest(w, "Missing verification token")
		return
	}

	result, err := h.verification.ConfirmToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, models.ErrLinkExpired) {
			pkghttp.WriteGone(w, "This verification link has expired. Please request access again.")
			return
		}
		h.logger.Error("token confirmation failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	SetAccessCookie(w, result.CookieToken, result.Tenant.CacheWindow(), h.cookieConfig)
	http.Redirect(w, r, "/content/"+result.Content.Slug, http.StatusFound)
}

// AccessStatus reports the state of a background access check. The slug
// identifies which content's required tag the computed has_access refers to.
func (h *AccessHandler) AccessStatus(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "accessRecordID")
	slug := r.URL.Query().Get("slug")
	if slug == "" {
		pkghttp.WriteBadRequest(w, "Missing slug parameter")
		return
	}

	content, err := h.contents.GetBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Content not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	status, err := h.checks.PollStatus(r.Context(), recordID, content.TenantID, content.RequiredTagID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Access record not found")
			return
		}
		h.logger.Error("poll status failed",
			slog.String("access_record_id", recordID),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := AccessStatusResponse{
		Status:              string(status.Status),
		HasAccess:           status.HasAccess,
		PollIntervalSeconds: services.PollIntervalSeconds,
		PollMaxAttempts:     services.PollMaxAttempts,
	}
	if status.HasAccess != nil && *status.HasAccess {
		resp.RedirectURL = "/content/" + content.Slug
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Content is the gate itself: fresh verified visitors get the payload,
// stale ones get a polling contract while a background check runs, and
// everyone else is pointed at the access form.
func (h *AccessHandler) Content(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	cookieToken := ReadAccessCookie(r)

	resolution, err := h.cache.Resolve(r.Context(), slug, cookieToken)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Content not found")
			return
		}
		h.logger.Error("access resolution failed",
			slog.String("slug", slug),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	switch resolution.Outcome {
	case services.OutcomeGranted:
		pkghttp.WriteJSON(w, http.StatusOK, ContentResponse{
			Access: "granted",
			Content: &ContentPayload{
				Slug:  resolution.Content.Slug,
				Title: resolution.Content.Title,
				Body:  resolution.Content.Body,
			},
		})
	case services.OutcomeChecking:
		pkghttp.WriteJSON(w, http.StatusAccepted, CheckingResponse{
			Access:              "checking",
			AccessRecordID:      resolution.Record.ID,
			StatusURL:           fmt.Sprintf("/access-status/%s?slug=%s", resolution.Record.ID, slug),
			PollIntervalSeconds: services.PollIntervalSeconds,
			PollMaxAttempts:     services.PollMaxAttempts,
		})
	default:
		pkghttp.WriteJSON(w, http.StatusForbidden, DeniedResponse{
			Access:           "denied",
			RequestAccessURL: "/content/" + slug + "/request-access",
		})
	}
}
