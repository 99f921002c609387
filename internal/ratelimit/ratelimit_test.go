package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certifier/pkg/requestcontext"
)

func TestInMemory_FixedWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 10, 0, time.UTC)
	m := NewInMemory()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := m.Allow(ctx, "k", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 3-i, res.Remaining)
	}
	res, err := m.Allow(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Date(2025, 1, 1, 12, 1, 0, 0, time.UTC), res.ResetAt)
	assert.Equal(t, 50*time.Second, res.RetryAfter(now))

	other, err := m.Allow(ctx, "other", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	now = now.Add(time.Minute)
	res, err = m.Allow(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "a new window starts fresh")
}

func TestInMemory_PrunesExpiredWindows(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewInMemory()
	m.pruneAt = 2
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = m.Allow(ctx, "a", 1, time.Minute)
	_, _ = m.Allow(ctx, "b", 1, time.Minute)
	now = now.Add(2 * time.Minute)
	_, _ = m.Allow(ctx, "c", 1, time.Minute)
	assert.Len(t, m.counters, 1)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration) (Result, error) {
	return Result{}, errors.New("redis down")
}

func TestMiddleware(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 30, 0, time.UTC)
	limiter := NewInMemory()
	limiter.now = func() time.Time { return now }
	metrics := NewMetrics(prometheus.NewRegistry())
	mw := NewMiddleware(limiter, "verify", 2, time.Minute,
		WithMetrics(metrics),
		WithClock(func() time.Time { return now }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	h := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/credentials/verify", nil)
		req = req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, "test"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, call("198.51.100.1").Code)
	rec := call("198.51.100.1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = call("198.51.100.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"code":"RateLimited"`)

	assert.Equal(t, http.StatusOK, call("198.51.100.2").Code, "budgets are per client IP")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Decisions.WithLabelValues("verify", "limited")), 0)
}

func TestMiddleware_FailsOpen(t *testing.T) {
	mw := NewMiddleware(failingLimiter{}, "verify", 1, time.Minute, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	h := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
