package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates the per-slot limiter on OTP endpoints.
// Scope: Unit Test
// Security: Bounds code guessing per (tenant, purpose) slot regardless of client address.
// Expected: requests beyond the budget get 429; another slot is unaffected; the body reaches the handler intact.
// Test Case ID: HTTP-RL-01
func TestOTPLimiter_PerSlot(t *testing.T) {
	limiter, closeFn, err := NewOTPLimiter(2, time.Minute, "")
	require.NoError(t, err)
	defer closeFn()

	var seen string
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
		w.WriteHeader(http.StatusOK)
	}))

	send := func(tenantID, addr string) *httptest.ResponseRecorder {
		body := `{"tenant_id":"` + tenantID + `","purpose":"registration","code":"123456"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/otp/verify", strings.NewReader(body))
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send("t-1", "10.0.0.1:1000").Code)
	assert.Contains(t, seen, `"code":"123456"`)
	assert.Equal(t, http.StatusOK, send("t-1", "10.0.0.2:1000").Code)

	w := send("t-1", "10.0.0.3:1000")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, send("t-2", "10.0.0.1:1000").Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Stop()

	handler := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "192.0.2.1:5000"

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5000"
	assert.Equal(t, "192.0.2.1", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", getClientIP(req))
}
