package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	id "certifier/pkg/domain"
	"certifier/pkg/platform/sentinel"
)

const (
	defaultWorkers        = 8
	defaultPerTenant      = 2
	defaultQueueSize      = 1024
	defaultAttemptTimeout = 10 * time.Second
	defaultClaimBatch     = 100

	// MaxAttempts bounds delivery attempts, the first one included.
	MaxAttempts = 5
)

// DefaultSchedule is the wait before attempt n+1 after attempt n fails.
var DefaultSchedule = []time.Duration{
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
	time.Hour,
	6 * time.Hour,
}

// HTTPDoer sends webhook requests; *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SecretOpener decrypts a subscription's sealed signing secret.
type SecretOpener interface {
	Open(sealed string) (string, error)
}

// Dispatcher fans events out to subscriptions on a bounded worker pool. Each
// tenant holds at most perTenant in-flight requests. A worker that finds its
// tenant saturated parks the delivery on that tenant's backlog and moves on,
// so a slow endpoint never holds more than perTenant workers.
type Dispatcher struct {
	store          Store
	secrets        SecretOpener
	client         HTTPDoer
	queue          chan *Delivery
	workers        int
	perTenant      int
	attemptTimeout time.Duration
	schedule       []time.Duration
	logger         *slog.Logger
	metrics        *Metrics
	now            func() time.Time

	lanesMu sync.Mutex
	lanes   map[id.TenantID]*lane

	// inflight holds deliveries between enqueue and the end of their attempt.
	// PollDue skips them so a lease lapsing in the queue cannot send twice.
	inflightMu sync.Mutex
	inflight   map[id.DeliveryID]struct{}

	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

type Option func(*Dispatcher)

func WithHTTPClient(c HTTPDoer) Option {
	return func(d *Dispatcher) {
		d.client = c
	}
}

func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

func WithPerTenant(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.perTenant = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan *Delivery, n)
		}
	}
}

func WithAttemptTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.attemptTimeout = t
		}
	}
}

func WithSchedule(s []time.Duration) Option {
	return func(d *Dispatcher) {
		if len(s) > 0 {
			d.schedule = s
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// NewDispatcher starts the worker pool. Call Close to drain it.
func NewDispatcher(store Store, secrets SecretOpener, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:          store,
		secrets:        secrets,
		client:         &http.Client{},
		queue:          make(chan *Delivery, defaultQueueSize),
		workers:        defaultWorkers,
		perTenant:      defaultPerTenant,
		attemptTimeout: defaultAttemptTimeout,
		schedule:       DefaultSchedule,
		logger:         slog.Default(),
		now:            time.Now,
		lanes:          make(map[id.TenantID]*lane),
		inflight:       make(map[id.DeliveryID]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// lease is how long a queued or claimed delivery is hidden from ClaimDue. A
// delivery lost to a full queue or a crash is picked up again once it lapses.
// Within one process the in-flight set keeps a lapsed delivery from being
// queued a second time.
func (d *Dispatcher) lease() time.Duration {
	return 3 * d.attemptTimeout
}

// Publish records a pending delivery for every matching subscription and
// queues it. Failures are logged; the caller's operation never fails because
// of webhooks.
func (d *Dispatcher) Publish(ctx context.Context, tenantID id.TenantID, kind EventKind, data any) {
	ctx = context.WithoutCancel(ctx)
	subs, err := d.store.ListActive(ctx, tenantID, kind)
	if err != nil {
		d.logger.ErrorContext(ctx, "list webhook subscriptions failed",
			"error", err,
			"tenant_id", tenantID.String(),
			"event", string(kind),
		)
		return
	}
	if len(subs) == 0 {
		return
	}

	now := d.now()
	body, err := buildPayload(kind, now, data)
	if err != nil {
		d.logger.ErrorContext(ctx, "build webhook payload failed", "error", err, "event", string(kind))
		return
	}

	for _, sub := range subs {
		leaseUntil := now.Add(d.lease())
		delivery := &Delivery{
			ID:             id.NewDeliveryID(),
			SubscriptionID: sub.ID,
			TenantID:       tenantID,
			Event:          kind,
			Payload:        body,
			URL:            sub.URL,
			Status:         DeliveryPending,
			NextRetryAt:    &leaseUntil,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := d.store.CreateDelivery(ctx, delivery); err != nil {
			d.logger.ErrorContext(ctx, "create webhook delivery failed",
				"error", err,
				"tenant_id", tenantID.String(),
				"subscription_id", sub.ID.String(),
			)
			continue
		}
		d.enqueue(ctx, delivery)
	}
}

func buildPayload(kind EventKind, at time.Time, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook data: %w", err)
	}
	return json.Marshal(Payload{
		Event:     kind,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Data:      raw,
	})
}

func (d *Dispatcher) enqueue(ctx context.Context, delivery *Delivery) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	if !d.track(delivery.ID) {
		return false
	}
	select {
	case d.queue <- delivery:
		return true
	default:
		d.untrack(delivery.ID)
		if d.metrics != nil {
			d.metrics.QueueFull.Inc()
		}
		d.logger.WarnContext(ctx, "webhook queue full, delivery deferred to retry poller",
			"delivery_id", delivery.ID.String(),
			"tenant_id", delivery.TenantID.String(),
		)
		return false
	}
}

// PollDue claims deliveries whose retry time has come and queues them. It
// returns how many were queued.
func (d *Dispatcher) PollDue(ctx context.Context) (int, error) {
	now := d.now()
	due, err := d.store.ClaimDue(ctx, now, now.Add(d.lease()), defaultClaimBatch)
	if err != nil {
		return 0, fmt.Errorf("claim due webhook deliveries: %w", err)
	}
	queued := 0
	for _, delivery := range due {
		if d.enqueue(ctx, delivery) {
			queued++
		}
	}
	return queued, nil
}

// track marks id in flight. It reports false when it already was.
func (d *Dispatcher) track(deliveryID id.DeliveryID) bool {
	d.inflightMu.Lock()
	defer d.inflightMu.Unlock()
	if _, ok := d.inflight[deliveryID]; ok {
		return false
	}
	d.inflight[deliveryID] = struct{}{}
	return true
}

func (d *Dispatcher) untrack(deliveryID id.DeliveryID) {
	d.inflightMu.Lock()
	defer d.inflightMu.Unlock()
	delete(d.inflight, deliveryID)
}

// lane bounds one tenant's concurrent attempts. backlog holds deliveries that
// arrived while every slot was taken; the worker releasing a slot drains it.
type lane struct {
	sem     *semaphore.Weighted
	backlog []*Delivery
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for delivery := range d.queue {
		if !d.admit(delivery) {
			continue
		}
		for delivery != nil {
			d.attempt(delivery)
			d.untrack(delivery.ID)
			delivery = d.next(delivery.TenantID)
		}
	}
}

// admit takes a tenant slot for delivery without blocking. When the tenant is
// saturated the delivery joins its backlog and admit reports false.
func (d *Dispatcher) admit(delivery *Delivery) bool {
	d.lanesMu.Lock()
	defer d.lanesMu.Unlock()
	l, ok := d.lanes[delivery.TenantID]
	if !ok {
		l = &lane{sem: semaphore.NewWeighted(int64(d.perTenant))}
		d.lanes[delivery.TenantID] = l
	}
	if l.sem.TryAcquire(1) {
		return true
	}
	l.backlog = append(l.backlog, delivery)
	if d.metrics != nil {
		d.metrics.Backlogged.Inc()
	}
	return false
}

// next hands the caller's slot to the tenant's oldest backlogged delivery, or
// releases the slot when the backlog is empty.
func (d *Dispatcher) next(tenantID id.TenantID) *Delivery {
	d.lanesMu.Lock()
	defer d.lanesMu.Unlock()
	l := d.lanes[tenantID]
	if len(l.backlog) == 0 {
		l.sem.Release(1)
		return nil
	}
	delivery := l.backlog[0]
	l.backlog[0] = nil
	l.backlog = l.backlog[1:]
	return delivery
}

type attemptResult struct {
	status  int
	preview string
	err     error
}

func (d *Dispatcher) attempt(delivery *Delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), d.attemptTimeout)
	defer cancel()

	sub, err := d.store.FindSubscription(ctx, delivery.SubscriptionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			d.abandon(ctx, delivery, "subscription deleted")
			return
		}
		d.logger.ErrorContext(ctx, "load webhook subscription failed",
			"error", err,
			"delivery_id", delivery.ID.String(),
		)
		return
	}
	if !sub.Enabled {
		d.abandon(ctx, delivery, "subscription disabled")
		return
	}
	if err := d.store.ExtendLease(ctx, delivery.ID, d.now().Add(d.lease())); err != nil {
		d.logger.WarnContext(ctx, "extend webhook delivery lease failed",
			"error", err,
			"delivery_id", delivery.ID.String(),
		)
	}

	start := d.now()
	res := d.send(ctx, sub, delivery)
	elapsed := d.now().Sub(start)
	if d.metrics != nil {
		d.metrics.AttemptDuration.Observe(elapsed.Seconds())
	}
	d.complete(ctx, sub, delivery, res, elapsed)
}

func (d *Dispatcher) send(ctx context.Context, sub *Subscription, delivery *Delivery) attemptResult {
	secret, err := d.secrets.Open(sub.SealedSecret)
	if err != nil {
		return attemptResult{err: fmt.Errorf("open signing secret: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return attemptResult{err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "certifier-webhooks/1.0")
	req.Header.Set(SignatureHeader, Sign(secret, delivery.Payload))
	req.Header.Set(EventHeader, string(delivery.Event))
	req.Header.Set(DeliveryHeader, delivery.ID.String())

	resp, err := d.client.Do(req)
	if err != nil {
		return attemptResult{err: err}
	}
	defer resp.Body.Close()
	preview, _ := io.ReadAll(io.LimitReader(resp.Body, responsePreviewLimit))
	_, _ = io.Copy(io.Discard, resp.Body)

	res := attemptResult{status: resp.StatusCode, preview: string(preview)}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.err = fmt.Errorf("endpoint responded %d", resp.StatusCode)
	}
	return res
}

func (d *Dispatcher) complete(ctx context.Context, sub *Subscription, delivery *Delivery, res attemptResult, elapsed time.Duration) {
	now := d.now()
	delivery.Attempts++
	delivery.HTTPStatus = res.status
	delivery.ResponsePreview = res.preview
	delivery.ElapsedMS = elapsed.Milliseconds()
	delivery.UpdatedAt = now

	outcome := string(DeliverySuccess)
	switch {
	case res.err == nil:
		delivery.Status = DeliverySuccess
		delivery.NextRetryAt = nil
	case delivery.Attempts >= MaxAttempts:
		delivery.Status = DeliveryFailed
		delivery.NextRetryAt = nil
		outcome = string(DeliveryFailed)
	default:
		next := now.Add(d.schedule[min(delivery.Attempts-1, len(d.schedule)-1)])
		delivery.Status = DeliveryRetry
		delivery.NextRetryAt = &next
		outcome = string(DeliveryRetry)
	}
	if d.metrics != nil {
		d.metrics.Deliveries.WithLabelValues(string(delivery.Event), outcome).Inc()
	}

	if err := d.store.UpdateDelivery(ctx, delivery); err != nil {
		d.logger.ErrorContext(ctx, "update webhook delivery failed",
			"error", err,
			"delivery_id", delivery.ID.String(),
		)
	}

	switch delivery.Status {
	case DeliverySuccess:
		d.recordOutcome(ctx, sub, true, "", now)
	case DeliveryFailed:
		d.logger.WarnContext(ctx, "webhook delivery failed permanently",
			"error", res.err,
			"delivery_id", delivery.ID.String(),
			"subscription_id", sub.ID.String(),
			"tenant_id", sub.TenantID.String(),
			"attempts", delivery.Attempts,
		)
		d.recordOutcome(ctx, sub, false, res.err.Error(), now)
	case DeliveryRetry:
		d.logger.InfoContext(ctx, "webhook delivery scheduled for retry",
			"error", res.err,
			"delivery_id", delivery.ID.String(),
			"attempts", delivery.Attempts,
			"next_retry_at", delivery.NextRetryAt,
		)
	}
}

func (d *Dispatcher) recordOutcome(ctx context.Context, sub *Subscription, success bool, lastError string, at time.Time) {
	if err := d.store.RecordOutcome(ctx, sub.ID, success, lastError, at); err != nil {
		d.logger.ErrorContext(ctx, "record webhook outcome failed",
			"error", err,
			"subscription_id", sub.ID.String(),
		)
	}
}

// abandon fails a delivery whose subscription is gone or disabled without
// counting it against the subscription.
func (d *Dispatcher) abandon(ctx context.Context, delivery *Delivery, reason string) {
	delivery.Status = DeliveryFailed
	delivery.NextRetryAt = nil
	delivery.ResponsePreview = reason
	delivery.UpdatedAt = d.now()
	if d.metrics != nil {
		d.metrics.Deliveries.WithLabelValues(string(delivery.Event), "abandoned").Inc()
	}
	if err := d.store.UpdateDelivery(ctx, delivery); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		d.logger.ErrorContext(ctx, "update webhook delivery failed",
			"error", err,
			"delivery_id", delivery.ID.String(),
		)
	}
}

// Close stops accepting deliveries and waits for queued ones to finish or ctx
// to end. Unfinished deliveries keep their lease and are retried after restart.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
