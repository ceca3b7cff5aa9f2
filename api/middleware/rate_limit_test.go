package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-core/pkg/ratelimit"
)

func TestRateLimitBlocksAfterBudget(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewMemoryLimiter(func() time.Time { return now })
	policy := ratelimit.Config{Name: "quote", Limit: 2, Window: time.Minute}
	handler := RateLimit(limiter, policy, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/shipping/quote", nil)
		req = req.WithContext(WithSessionID(req.Context(), "sess-1"))
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "2", last.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", last.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
}

func TestRateLimitKeysCallersSeparately(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(time.Now)
	policy := ratelimit.Config{Name: "orders", Limit: 1, Window: time.Minute}
	handler := RateLimit(limiter, policy, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, session := range []string{"a", "b"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil)
		req = req.WithContext(WithSessionID(req.Context(), session))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		require.Equal(t, http.StatusOK, resp.Code, session)
	}
}

func TestRateLimitIdentifierPrefersUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "ip:10.0.0.1", rateLimitIdentifier(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "ip:203.0.113.7", rateLimitIdentifier(req))

	req = req.WithContext(WithSessionID(req.Context(), "sess"))
	assert.Equal(t, "session:sess", rateLimitIdentifier(req))

	req = req.WithContext(WithUserID(req.Context(), "u-1"))
	assert.Equal(t, "user:u-1", rateLimitIdentifier(req))
}

func TestRateLimitDisabledWithoutLimiter(t *testing.T) {
	handler := RateLimit(nil, ratelimit.Config{Name: "x", Limit: 1, Window: time.Minute}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, resp.Code)
}
