package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestRateLimitByIP_AllowsUnderLimit verifies requests under the ceiling pass
func TestRateLimitByIP_AllowsUnderLimit(t *testing.T) {
	middleware := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 5})

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("POST", "/content/secret-post/request-access", nil)
		req.RemoteAddr = "192.0.2.10:4000"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusOK {
			t.Errorf("request %d failed with status %d, expected 200", i+1, recorder.Code)
		}
	}
}

// TestRateLimitByIP_Returns429OverLimit verifies the limit and response format
func TestRateLimitByIP_Returns429OverLimit(t *testing.T) {
	middleware := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 1})

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/content/secret-post/request-access", nil)
	req.RemoteAddr = "192.0.2.11:4000"
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("first request failed with status %d", recorder.Code)
	}

	req = httptest.NewRequest("POST", "/content/secret-post/request-access", nil)
	req.RemoteAddr = "192.0.2.11:4000"
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", recorder.Code)
	}
	if contentType := recorder.Header().Get("Content-Type"); contentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", contentType)
	}
	if body := recorder.Body.String(); !strings.Contains(body, "rate_limit_exceeded") {
		t.Errorf("expected shared error code in body, got %s", body)
	}
}

// TestRateLimitByIP_IsolatesClientBuckets verifies separate limits per IP
func TestRateLimitByIP_IsolatesClientBuckets(t *testing.T) {
	middleware := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 1})

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/access-status/rec-1", nil)
	req.RemoteAddr = "192.0.2.20:4000"
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("client A first request failed with status %d", recorder.Code)
	}

	req = httptest.NewRequest("GET", "/access-status/rec-1", nil)
	req.RemoteAddr = "192.0.2.21:4000"
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Errorf("client B should have an independent bucket, got status %d", recorder.Code)
	}
}
