package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	dErrors "certifier/pkg/domain-errors"
	"certifier/pkg/platform/httputil"
	"certifier/pkg/platform/privacy"
	"certifier/pkg/requestcontext"
)

// Middleware limits requests per client IP within scope.
type Middleware struct {
	limiter Limiter
	scope   string
	limit   int
	window  time.Duration
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

type Option func(*Middleware)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) {
		m.logger = logger
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Middleware) {
		m.metrics = metrics
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Middleware) {
		m.now = now
	}
}

func NewMiddleware(limiter Limiter, scope string, limit int, window time.Duration, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		scope:   scope,
		limit:   limit,
		window:  window,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handler answers 429 once the caller's budget for the window is spent. A
// limiter error lets the request through.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := requestcontext.ClientIP(ctx)
		if ip == "" {
			ip = "unknown"
		}

		res, err := m.limiter.Allow(ctx, m.scope+":"+ip, m.limit, m.window)
		if err != nil {
			m.metrics.decision(m.scope, "error")
			m.logger.WarnContext(ctx, "rate limit check failed, allowing request",
				"error", err,
				"scope", m.scope,
				"ip_prefix", privacy.AnonymizeIP(ip),
			)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
		if !res.Allowed {
			m.metrics.decision(m.scope, "limited")
			m.logger.InfoContext(ctx, "rate limit exceeded",
				"scope", m.scope,
				"ip_prefix", privacy.AnonymizeIP(ip),
				"request_id", requestcontext.RequestID(ctx),
			)
			w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter(m.now()).Seconds())))
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests, retry later"))
			return
		}
		m.metrics.decision(m.scope, "allowed")
		next.ServeHTTP(w, r)
	})
}
