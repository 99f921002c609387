// Package app is the composition root: it selects backends from config,
// wires every service and handler, and owns their lifetimes.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"certifier/internal/activity"
	activityhandler "certifier/internal/activity/handler"
	activitystore "certifier/internal/activity/store"
	cataloghandler "certifier/internal/catalog/handler"
	catalogservice "certifier/internal/catalog/service"
	catalogstore "certifier/internal/catalog/store"
	credstore "certifier/internal/credential/store"
	"certifier/internal/credential/sweeper"
	"certifier/internal/fingerprint"
	"certifier/internal/issuance"
	issuancehandler "certifier/internal/issuance/handler"
	jwttoken "certifier/internal/jwt_token"
	"certifier/internal/objectstore"
	"certifier/internal/platform/config"
	"certifier/internal/platform/database"
	"certifier/internal/platform/health"
	"certifier/internal/platform/kafka/producer"
	"certifier/internal/platform/redis"
	"certifier/internal/platform/scheduler"
	"certifier/internal/platform/tracer"
	"certifier/internal/qrcode"
	"certifier/internal/quota"
	"certifier/internal/ratelimit"
	"certifier/internal/render"
	"certifier/internal/seeder"
	tenanthandler "certifier/internal/tenant/handler"
	tenantstore "certifier/internal/tenant/store"
	httptransport "certifier/internal/transport/http"
	"certifier/internal/verification"
	verificationhandler "certifier/internal/verification/handler"
	"certifier/internal/webhook"
	webhookhandler "certifier/internal/webhook/handler"
	webhookstore "certifier/internal/webhook/store"
	"certifier/pkg/platform/circuit"
	"certifier/pkg/platform/middleware/auth"
	"certifier/pkg/platform/middleware/metadata"
	"certifier/pkg/platform/middleware/request"
	"certifier/pkg/platform/validation"
	"certifier/pkg/secrets"
)

const (
	qrSize           = 256
	qrMargin         = 4
	assetTimeout     = 10 * time.Second
	requestTimeout   = 2 * time.Minute
	janitorSchedule  = "@every 1h"
	sweeperSchedule  = "@every 1m"
	verifyRateWindow = time.Minute
)

// Stores exposes the selected persistence backends.
type Stores struct {
	Tenants     tenantstore.Store
	Catalog     *CatalogStores
	Credentials credstore.Store
	Activity    activity.Store
	Webhooks    webhook.Store
}

// CatalogStores groups the three catalog stores, which one backend serves.
type CatalogStores struct {
	Events       catalogstore.EventStore
	Participants catalogstore.ParticipantStore
	Templates    catalogstore.TemplateStore
}

// Application holds the wired services and the resources that need closing.
type Application struct {
	Config    config.Server
	Logger    *slog.Logger
	Registry  *prometheus.Registry
	Stores    Stores
	Router    http.Handler
	Scheduler *scheduler.Scheduler
	Tokens    *jwttoken.JWTService

	Gate         *quota.Gate
	Catalog      *catalogservice.Service
	Coordinator  *issuance.Coordinator
	Verification *verification.Service
	Webhooks     *webhook.Service
	Dispatcher   *webhook.Dispatcher
	Recorder     *activity.Recorder
	Health       *health.Handler

	db       *database.Pool
	redis    *redis.Client
	producer *producer.Producer
}

// Bootstrap builds the application from cfg. Every collaborator left
// unconfigured falls back to its in-process implementation.
func Bootstrap(ctx context.Context, cfg config.Server, logger *slog.Logger) (*Application, error) {
	a := &Application{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		Health:   health.New(cfg.Environment),
		Tokens:   jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.TokenTTL),
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := a.openStores(ctx); err != nil {
		a.closeResources()
		return nil, err
	}
	if err := a.wireServices(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.wireScheduler(); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if cfg.SeedDemoData {
		if err := seeder.New(a.Stores.Tenants, a.Catalog, logger).SeedAll(ctx); err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("seed demo data: %w", err)
		}
	}
	return a, nil
}

func (a *Application) openStores(ctx context.Context) error {
	pool, err := database.New(ctx, a.Config.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if pool == nil {
		a.Logger.InfoContext(ctx, "DATABASE_URL not set, using in-memory stores")
		catalog := catalogstore.NewInMemory()
		a.Stores = Stores{
			Tenants:     tenantstore.NewInMemory(),
			Catalog:     &CatalogStores{Events: catalog, Participants: catalog, Templates: catalog},
			Credentials: credstore.NewInMemory(),
			Activity:    activitystore.NewInMemory(),
			Webhooks:    webhookstore.NewInMemory(),
		}
		a.Health.SetBackend("database", "memory")
		return nil
	}

	a.db = pool
	if err := pool.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	if err := pool.RegisterMetrics(a.Registry); err != nil {
		return err
	}
	db := pool.DB()
	catalog := catalogstore.NewPostgres(db)
	a.Stores = Stores{
		Tenants:     tenantstore.NewPostgres(db),
		Catalog:     &CatalogStores{Events: catalog, Participants: catalog, Templates: catalog},
		Credentials: credstore.NewPostgres(db),
		Activity:    activitystore.NewPostgres(db),
		Webhooks:    webhookstore.NewPostgres(db),
	}
	a.Health.SetBackend("database", "postgres")
	a.Health.RegisterCheck("database", pool.Health)
	return nil
}

func (a *Application) wireServices(ctx context.Context) error {
	cfg, logger, reg := a.Config, a.Logger, a.Registry
	trc := tracer.NewOTel()

	plans := quota.DefaultCatalog()
	if cfg.Quota.PlansFile != "" {
		loaded, err := quota.LoadCatalog(cfg.Quota.PlansFile)
		if err != nil {
			return fmt.Errorf("load plan catalog: %w", err)
		}
		plans = loaded
	}
	a.Gate = quota.NewGate(a.Stores.Tenants, plans,
		quota.WithLogger(logger),
		quota.WithMetrics(quota.NewMetrics(reg)),
		quota.WithTracer(trc),
	)

	a.Catalog = catalogservice.New(a.Stores.Catalog.Events, a.Stores.Catalog.Participants, a.Stores.Catalog.Templates, a.Gate,
		catalogservice.WithLogger(logger),
	)

	recorderOpts := []activity.Option{
		activity.WithBufferSize(cfg.Activity.BufferSize),
		activity.WithLogger(logger),
		activity.WithMetrics(activity.NewMetrics(reg)),
		activity.WithBreaker(circuit.New("activity-store")),
	}
	if cfg.Kafka.Brokers != "" {
		prod, err := producer.New(producer.DefaultConfig(cfg.Kafka.Brokers), logger)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		a.producer = prod
		recorderOpts = append(recorderOpts, activity.WithSink(activity.NewKafkaSink(prod, cfg.Kafka.ActivityTopic)))
		a.Health.SetBackend("activity_sink", "kafka")
		a.Health.RegisterCheck("kafka", prod.Health)
	}
	a.Recorder = activity.NewRecorder(a.Stores.Activity, recorderOpts...)

	sealer, err := secrets.NewSealer(cfg.Webhooks.SecretKeyBase64)
	if err != nil {
		return fmt.Errorf("webhook secret key: %w", err)
	}
	if cfg.Webhooks.SecretKeyBase64 == "" && a.db != nil {
		logger.WarnContext(ctx, "WEBHOOK_SECRET_KEY not set; webhook secrets will not survive a restart")
	}
	a.Webhooks = webhook.NewService(a.Stores.Webhooks, sealer, secrets.Generate, logger)
	a.Dispatcher = webhook.NewDispatcher(a.Stores.Webhooks, sealer,
		webhook.WithWorkers(cfg.Webhooks.Workers),
		webhook.WithPerTenant(cfg.Webhooks.PerTenant),
		webhook.WithQueueSize(cfg.Webhooks.QueueSize),
		webhook.WithAttemptTimeout(cfg.Webhooks.AttemptTimeout),
		webhook.WithLogger(logger),
		webhook.WithMetrics(webhook.NewMetrics(reg)),
	)

	objects, err := a.objectBackend(ctx)
	if err != nil {
		return err
	}
	gateway := objectstore.NewGateway(objects,
		objectstore.WithTimeout(cfg.Storage.Timeout),
		objectstore.WithBreaker(circuit.New("object-store")),
		objectstore.WithLogger(logger),
		objectstore.WithMetrics(objectstore.NewMetrics(reg)),
	)

	qr := qrcode.NewEncoder(qrSize, qrMargin)
	renderer := render.New(render.NewHTTPFetcher(nil, assetTimeout), qr,
		render.WithLogger(logger),
		render.WithMetrics(render.NewMetrics(reg)),
		render.WithFontCache(render.NewFontCache()),
	)

	a.Coordinator = issuance.New(issuance.Deps{
		Catalog:      a.Catalog,
		Credentials:  a.Stores.Credentials,
		Gate:         a.Gate,
		Fingerprints: fingerprint.New(cfg.PublicBaseURL),
		QR:           qr,
		Renderer:     renderer,
		Objects:      gateway,
	},
		issuance.WithActivity(a.Recorder),
		issuance.WithWebhooks(a.Dispatcher),
		issuance.WithRenderTimeout(cfg.Issuance.RenderTimeout),
		issuance.WithBatchConcurrency(cfg.Issuance.BatchConcurrency),
		issuance.WithMaxBatchItems(cfg.Issuance.MaxBatchItems),
		issuance.WithLogger(logger),
		issuance.WithMetrics(issuance.NewMetrics(reg)),
		issuance.WithTracer(trc),
	)

	a.Verification = verification.New(a.Stores.Credentials,
		verification.WithActivity(a.Recorder),
		verification.WithWebhooks(a.Dispatcher),
		verification.WithLogger(logger),
		verification.WithMetrics(verification.NewMetrics(reg)),
		verification.WithTracer(trc),
	)

	limiter, err := a.verifyLimiter(ctx)
	if err != nil {
		return err
	}
	verifyLimit := ratelimit.NewMiddleware(limiter, "verify", config.VerifyRateLimit, verifyRateWindow,
		ratelimit.WithLogger(logger),
		ratelimit.WithMetrics(ratelimit.NewMetrics(reg)),
	)

	proxies, err := metadata.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}

	handlers := httptransport.Handlers{
		Health:       a.Health,
		Verification: verificationhandler.New(a.Verification, logger),
		Issuance:     issuancehandler.New(a.Coordinator, logger),
		Catalog:      cataloghandler.New(a.Catalog, logger),
		Webhooks:     webhookhandler.New(a.Webhooks, logger),
		Activity:     activityhandler.New(a.Stores.Activity, logger),
		Tenant:       tenanthandler.New(a.Gate, logger),
	}
	if mem, ok := objects.(*objectstore.MemoryBackend); ok {
		handlers.Objects = mem
	}

	a.Router = httptransport.NewRouter(httptransport.Config{
		Logger:         logger,
		Metadata:       metadata.NewMiddleware(&metadata.Config{TrustedProxies: proxies}),
		Auth:           auth.RequireAuth(a.Tokens, a.Stores.Tenants, logger),
		VerifyLimit:    verifyLimit.Handler,
		Latency:        request.NewMetrics(reg),
		Gatherer:       reg,
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: requestTimeout,
		MaxBodyBytes:   validation.MaxUploadSize + 1<<20,
	}, handlers)
	return nil
}

// objectBackend picks MinIO/S3 when an endpoint is configured and the
// in-memory store served under /objects/ otherwise.
func (a *Application) objectBackend(ctx context.Context) (objectstore.Backend, error) {
	if a.Config.Storage.Endpoint == "" {
		a.Health.SetBackend("objects", "memory")
		return objectstore.NewMemoryBackend(a.Config.PublicBaseURL + "/objects"), nil
	}
	backend, err := objectstore.NewMinioBackend(a.Config.Storage)
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}
	if err := backend.EnsureBucket(ctx, a.Config.Storage.Region); err != nil {
		return nil, fmt.Errorf("object store bucket: %w", err)
	}
	a.Health.SetBackend("objects", "s3")
	a.Health.RegisterCheck("objects", backend.Health)
	return backend, nil
}

func (a *Application) verifyLimiter(ctx context.Context) (ratelimit.Limiter, error) {
	client, err := redis.New(ctx, a.Config.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if client == nil {
		a.Health.SetBackend("ratelimit", "memory")
		return ratelimit.NewInMemory(), nil
	}
	a.redis = client
	if err := client.RegisterMetrics(a.Registry); err != nil {
		return nil, err
	}
	a.Health.SetBackend("ratelimit", "redis")
	a.Health.RegisterCheck("redis", client.Health)
	return ratelimit.NewRedis(client.Client), nil
}

func (a *Application) wireScheduler() error {
	cfg, logger := a.Config, a.Logger
	a.Scheduler = scheduler.New(
		scheduler.WithLogger(logger),
		scheduler.WithMetrics(scheduler.NewMetrics(a.Registry)),
	)

	sweep, err := sweeper.New(a.Stores.Credentials,
		sweeper.WithThreshold(cfg.Issuance.StuckGeneratingAfter),
		sweeper.WithLogger(logger),
		sweeper.WithMetrics(sweeper.NewMetrics(a.Registry)),
	)
	if err != nil {
		return fmt.Errorf("credential sweeper: %w", err)
	}
	activityJanitor := activity.NewJanitor(a.Stores.Activity, cfg.Activity.Retention, logger)
	deliveryJanitor := webhook.NewJanitor(a.Stores.Webhooks, cfg.Webhooks.LogRetention, logger)

	return errors.Join(
		a.Scheduler.Add("credential-sweeper", sweeperSchedule, func(ctx context.Context) (int, error) {
			res, err := sweep.RunOnce(ctx)
			return res.Failed, err
		}),
		a.Scheduler.Every("webhook-retry-poller", cfg.Webhooks.RetryPollEvery, a.Dispatcher.PollDue),
		a.Scheduler.Add("activity-janitor", janitorSchedule, activityJanitor.RunOnce),
		a.Scheduler.Add("delivery-janitor", janitorSchedule, deliveryJanitor.RunOnce),
	)
}

// Close stops background workers, flushing queued activity and deliveries,
// then releases connections.
func (a *Application) Close(ctx context.Context) {
	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(ctx); err != nil {
			a.Logger.WarnContext(ctx, "scheduler did not stop cleanly", "error", err)
		}
	}
	if a.Dispatcher != nil {
		if err := a.Dispatcher.Close(ctx); err != nil {
			a.Logger.WarnContext(ctx, "webhook dispatcher did not drain", "error", err)
		}
	}
	if a.Recorder != nil {
		if err := a.Recorder.Close(ctx); err != nil {
			a.Logger.WarnContext(ctx, "activity recorder did not drain", "error", err)
		}
	}
	a.closeResources()
}

func (a *Application) closeResources() {
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
