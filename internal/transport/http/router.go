// Package httptransport composes the HTTP surface: public verification and
// object routes, tenant-authenticated API routes, probes and metrics.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"certifier/pkg/platform/middleware/metadata"
	"certifier/pkg/platform/middleware/request"
	"certifier/pkg/platform/middleware/requesttime"
)

// RouteRegistrar is implemented by every domain handler.
type RouteRegistrar interface {
	Register(r chi.Router)
}

// Handlers are the domain handlers mounted by NewRouter. Nil registrars are skipped.
type Handlers struct {
	Health       RouteRegistrar
	Verification RouteRegistrar
	Issuance     RouteRegistrar
	Catalog      RouteRegistrar
	Webhooks     RouteRegistrar
	Activity     RouteRegistrar
	Tenant       RouteRegistrar

	// Objects serves /objects/* when artifacts live in the in-memory store.
	Objects http.Handler
}

// Config carries the cross-cutting middleware.
type Config struct {
	Logger         *slog.Logger
	Metadata       *metadata.Middleware
	Auth           func(http.Handler) http.Handler
	VerifyLimit    func(http.Handler) http.Handler
	Latency        *request.Metrics
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// NewRouter wires routes and middleware. The verification routes are public
// and rate limited; everything tenant scoped sits behind Auth.
func NewRouter(cfg Config, h Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(cfg.Metadata.Handler)
	r.Use(request.Logger(cfg.Logger))
	r.Use(request.LatencyMiddleware(cfg.Latency))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	if h.Health != nil {
		h.Health.Register(r)
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	if h.Objects != nil {
		r.Get("/objects/*", h.Objects.ServeHTTP)
	}

	if h.Verification != nil {
		r.Group(func(r chi.Router) {
			if cfg.VerifyLimit != nil {
				r.Use(cfg.VerifyLimit)
			}
			h.Verification.Register(r)
		})
	}

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(request.Timeout(cfg.RequestTimeout))
		}
		if cfg.MaxBodyBytes > 0 {
			r.Use(request.BodyLimit(cfg.MaxBodyBytes))
		}
		r.Use(request.ContentTypes("application/json", "multipart/form-data"))
		r.Use(cfg.Auth)

		for _, reg := range []RouteRegistrar{h.Issuance, h.Catalog, h.Webhooks, h.Activity, h.Tenant} {
			if reg != nil {
				reg.Register(r)
			}
		}
	})

	return r
}
