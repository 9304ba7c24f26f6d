package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stockpos/backend/internal/inventory"
	"stockpos/backend/internal/service"
	"stockpos/backend/internal/store"
)

func TestSecurityHeadersAndRequestID(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Fatalf("expected %s=%q, got %q", header, want, got)
		}
	}
	if got := rec.Header().Get("X-Request-ID"); !strings.HasPrefix(got, "req-") {
		t.Fatalf("expected generated request id, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Fatalf("credentials must not be allowed with wildcard origin, got %q", got)
	}
}

func TestRequestIDIsEchoedWhenValid(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "upstream-123")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "upstream-123" {
		t.Fatalf("expected echoed request id, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "bad id\nwith newline")
	rec = httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); !strings.HasPrefix(got, "req-") {
		t.Fatalf("expected invalid request id to be replaced, got %q", got)
	}
}

func TestPreflightShortCircuits(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sales", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestOversizedBodyIsRejected(t *testing.T) {
	api := newTestAPI(t)

	body := `{"email":"` + strings.Repeat("a", 2<<20) + `","password":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLoginRateLimit(t *testing.T) {
	api := newTestAPI(t)

	body := []byte(`{"email":"admin@stockpos.local","password":"Wrong-Pass1"}`)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		api.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", rec.Code)
	}

	// other clients are unaffected
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.50:5555"
	rec = httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for another client, got %d", rec.Code)
	}
}

func TestCSRFTokenAcceptsPreviousHour(t *testing.T) {
	api := &API{csrfSecret: []byte("0123456789abcdef0123456789abcdef")}

	current := time.Now().UTC().Truncate(time.Hour).Unix()
	if !api.validateCSRFToken(api.csrfTokenForHour(current)) {
		t.Fatalf("expected current hour token to validate")
	}
	if !api.validateCSRFToken(api.csrfTokenForHour(current - 3600)) {
		t.Fatalf("expected previous hour token to validate")
	}
	if api.validateCSRFToken(api.csrfTokenForHour(current - 7200)) {
		t.Fatalf("expected token from two hours ago to be rejected")
	}
	if api.validateCSRFToken("") {
		t.Fatalf("expected empty token to be rejected")
	}
}

func TestClientKey(t *testing.T) {
	tests := map[string]string{
		"192.0.2.1:1234":    "192.0.2.1",
		"[2001:db8::1]:443": "2001:db8::1",
		"":                  "unknown",
		"localhost":         "localhost",
	}
	for addr, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		if got := clientKey(req); got != want {
			t.Fatalf("clientKey(%q) = %q, want %q", addr, got, want)
		}
	}
}

func TestParsePositiveLimit(t *testing.T) {
	tests := []struct {
		raw      string
		fallback int
		max      int
		want     int
	}{
		{"", 10, 50, 10},
		{"20", 10, 50, 20},
		{"500", 10, 50, 50},
		{"-3", 10, 50, 10},
		{"abc", 10, 50, 10},
		{" 7 ", 10, 0, 7},
	}
	for _, tt := range tests {
		if got := parsePositiveLimit(tt.raw, tt.fallback, tt.max); got != tt.want {
			t.Fatalf("parsePositiveLimit(%q, %d, %d) = %d, want %d", tt.raw, tt.fallback, tt.max, got, tt.want)
		}
	}
}

func TestParseRange(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/sales?from=2026-03-01&to=2026-03-31", nil)
	from, to, err := parseRange(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !from.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected from %s", from)
	}
	if !to.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected inclusive to date, got %s", to)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/reports/sales?from=2026-03-01T10:00:00Z", nil)
	from, _, err = parseRange(req)
	if err != nil || from.Hour() != 10 {
		t.Fatalf("expected RFC 3339 from, got %s (%v)", from, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/reports/sales?to=yesterday", nil)
	if _, _, err := parseRange(req); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrForbidden, http.StatusForbidden},
		{ErrInvalidCredentials, http.StatusUnauthorized},
		{&LockedError{Until: time.Now()}, http.StatusLocked},
		{inventory.ErrEmptyCart, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", inventory.ErrInvalidQuantity), http.StatusBadRequest},
		{ErrWeakPassword, http.StatusBadRequest},
		{store.ErrInvalidInput, http.StatusBadRequest},
		{fmt.Errorf("%w: id 9", inventory.ErrProductNotFound), http.StatusNotFound},
		{store.ErrNotFound, http.StatusNotFound},
		{&inventory.StockError{ProductID: 1, Requested: 3, Available: 1}, http.StatusConflict},
		{store.ErrConflict, http.StatusConflict},
		{fmt.Errorf("%w: disk full", inventory.ErrTransactionFailure), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, errors.New("pq: connection refused to 10.0.0.5"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Fatalf("internal details leaked: %s", rec.Body.String())
	}
}
