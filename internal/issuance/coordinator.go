// Package issuance composes the fingerprint, render, storage and credential
// store steps into the issue, regenerate, download and revoke operations.
package issuance

import (
	"log/slog"
	"time"

	credstore "certifier/internal/credential/store"
	"certifier/internal/platform/tracer"
	id "certifier/pkg/domain"
)

const (
	defaultRenderTimeout    = 30 * time.Second
	defaultBatchConcurrency = 4
	defaultMaxBatchItems    = 500
)

// Deps are the collaborators every coordinator needs.
type Deps struct {
	Catalog      Catalog
	Credentials  credstore.Store
	Gate         Admitter
	Fingerprints Fingerprinter
	QR           QREncoder
	Renderer     Renderer
	Objects      ObjectStore
}

// Coordinator is the issuance orchestrator. It is safe for concurrent use.
type Coordinator struct {
	catalog      Catalog
	credentials  credstore.Store
	gate         Admitter
	fingerprints Fingerprinter
	qr           QREncoder
	renderer     Renderer
	objects      ObjectStore
	activity     ActivityRecorder
	webhooks     WebhookPublisher

	renderTimeout    time.Duration
	batchConcurrency int
	maxBatchItems    int

	logger  *slog.Logger
	metrics *Metrics
	tracer  tracer.Tracer
	now     func() time.Time
}

type Option func(*Coordinator)

func WithActivity(r ActivityRecorder) Option {
	return func(c *Coordinator) {
		c.activity = r
	}
}

func WithWebhooks(p WebhookPublisher) Option {
	return func(c *Coordinator) {
		c.webhooks = p
	}
}

func WithRenderTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.renderTimeout = d
		}
	}
}

func WithBatchConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.batchConcurrency = n
		}
	}
}

func WithMaxBatchItems(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxBatchItems = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(c *Coordinator) {
		c.tracer = t
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

func New(deps Deps, opts ...Option) *Coordinator {
	c := &Coordinator{
		catalog:          deps.Catalog,
		credentials:      deps.Credentials,
		gate:             deps.Gate,
		fingerprints:     deps.Fingerprints,
		qr:               deps.QR,
		renderer:         deps.Renderer,
		objects:          deps.Objects,
		renderTimeout:    defaultRenderTimeout,
		batchConcurrency: defaultBatchConcurrency,
		maxBatchItems:    defaultMaxBatchItems,
		logger:           slog.Default(),
		tracer:           tracer.NewNoop(),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// artifactFolder keeps every tenant's objects under its own prefix.
func artifactFolder(tenantID id.TenantID) string {
	return "credentials/" + tenantID.String()
}
