package esp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/listgate/listgate/internal/models"
	pkglogger "github.com/listgate/listgate/pkg/logger"
)

const defaultKitBaseURL = "https://api.kit.com/v4"

// Kit API calls block the confirmation path, so the client timeout is the
// upper bound on how long a request handler can stall on the ESP.
const kitRequestTimeout = 15 * time.Second

// KitClient implements Gateway against the Kit (ConvertKit) v4 API
type KitClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

// NewKitClient creates a Kit gateway with the default API endpoint
func NewKitClient(apiKey string, logger *slog.Logger) *KitClient {
	return NewKitClientWithBaseURL(apiKey, defaultKitBaseURL, logger)
}

// NewKitClientWithBaseURL creates a Kit gateway against a custom endpoint,
// used by tests to point at a local server
func NewKitClientWithBaseURL(apiKey, baseURL string, logger *slog.Logger) *KitClient {
	return &KitClient{
		httpClient: &http.Client{Timeout: kitRequestTimeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		logger:     logger,
	}
}

// Kit wire types

type kitSubscriber struct {
	ID           int64  `json:"id"`
	EmailAddress string `json:"email_address"`
}

type kitSubscriberList struct {
	Subscribers []kitSubscriber `json:"subscribers"`
}

type kitSubscriberEnvelope struct {
	Subscriber kitSubscriber `json:"subscriber"`
}

type kitTag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type kitTagList struct {
	Tags []kitTag `json:"tags"`
}

// FindSubscriberTags looks up a subscriber by email and returns their tag IDs
func (c *KitClient) FindSubscriberTags(ctx context.Context, email string) ([]string, error) {
	sub, err := c.findSubscriber(ctx, email)
	if err != nil {
		return nil, err
	}

	var list kitTagList
	path := fmt.Sprintf("/subscribers/%d/tags", sub.ID)
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}

	tags := make([]string, 0, len(list.Tags))
	for _, t := range list.Tags {
		tags = append(tags, strconv.FormatInt(t.ID, 10))
	}

	c.logger.Debug("kit subscriber tags fetched",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.Int("tag_count", len(tags)))

	return tags, nil
}

// TagSubscriber assigns a tag to the subscriber, creating them first if the
// ESP has no record of the email. Kit treats re-tagging as a no-op, which
// gives the idempotence the confirmation flow depends on.
func (c *KitClient) TagSubscriber(ctx context.Context, email, tagID string) (string, error) {
	numericTag, err := strconv.ParseInt(tagID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("kit tag id must be numeric, got %q: %w", tagID, models.ErrBadRequest)
	}

	sub, err := c.findSubscriber(ctx, email)
	if errors.Is(err, ErrSubscriberNotFound) {
		sub, err = c.createSubscriber(ctx, email)
	}
	if err != nil {
		return "", err
	}

	path := fmt.Sprintf("/tags/%d/subscribers/%d", numericTag, sub.ID)
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return "", err
	}

	c.logger.Info("kit subscriber tagged",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("tag_id", tagID))

	return strconv.FormatInt(sub.ID, 10), nil
}

// ValidateCredentials checks the API key against the account endpoint
func (c *KitClient) ValidateCredentials(ctx context.Context) *ValidationResult {
	err := c.do(ctx, http.MethodGet, "/account", nil, nil)
	if err == nil {
		return &ValidationResult{Valid: true}
	}
	return &ValidationResult{Valid: false, Errors: []string{err.Error()}}
}

func (c *KitClient) findSubscriber(ctx context.Context, email string) (*kitSubscriber, error) {
	var list kitSubscriberList
	path := "/subscribers?email_address=" + url.QueryEscape(email)
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	if len(list.Subscribers) == 0 {
		return nil, ErrSubscriberNotFound
	}
	return &list.Subscribers[0], nil
}

func (c *KitClient) createSubscriber(ctx context.Context, email string) (*kitSubscriber, error) {
	body := map[string]string{"email_address": email}
	var envelope kitSubscriberEnvelope
	if err := c.do(ctx, http.MethodPost, "/subscribers", body, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Subscriber, nil
}

// do performs one API call and maps the response status to the gateway
// error taxonomy
func (c *KitClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode kit request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build kit request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Kit-Api-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("kit request failed: %w: %w", models.ErrESPUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("kit throttled %s %s: %w", method, path, models.ErrESPRateLimited)
	case resp.StatusCode >= 400:
		return fmt.Errorf("kit returned %d for %s %s: %w", resp.StatusCode, method, path, models.ErrESPUnavailable)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode kit response: %w: %w", models.ErrESPUnavailable, err)
		}
	}

	return nil
}
