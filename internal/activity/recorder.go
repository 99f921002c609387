package activity

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	id "certifier/pkg/domain"
	"certifier/pkg/platform/circuit"
	"certifier/pkg/requestcontext"
)

const (
	defaultBufferSize   = 1024
	defaultWorkers      = 2
	defaultWriteTimeout = 5 * time.Second
)

// Recorder buffers entries and persists them on background workers. Record
// never blocks: when the buffer is full, or the store has been failing and the
// breaker is open, the entry is dropped and counted.
type Recorder struct {
	store   Store
	sink    Sink
	queue   chan *Entry
	workers int
	timeout time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

type Option func(*Recorder)

func WithSink(sink Sink) Option {
	return func(r *Recorder) {
		r.sink = sink
	}
}

func WithBufferSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.queue = make(chan *Entry, n)
		}
	}
}

func WithWorkers(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Recorder) {
		r.breaker = b
	}
}

// NewRecorder starts the background workers. Call Close to drain them.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:   store,
		queue:   make(chan *Entry, defaultBufferSize),
		workers: defaultWorkers,
		timeout: defaultWriteTimeout,
		breaker: circuit.New("activity-store", circuit.WithFailureThreshold(5), circuit.WithCooldown(30*time.Second)),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.run()
	}
	return r
}

// Record enqueues an entry. Actor defaults to the caller's client IP, then to
// ActorAnonymous. The request id is copied into the details.
func (r *Recorder) Record(ctx context.Context, tenantID id.TenantID, kind Kind, credentialID id.CredentialID, actor string, details map[string]any) {
	entry := &Entry{
		ID:           id.NewActivityID(),
		TenantID:     tenantID,
		Kind:         kind,
		Actor:        actor,
		CredentialID: credentialID,
		Details:      maps.Clone(details),
		CreatedAt:    requestcontext.Now(ctx),
	}
	if entry.Actor == "" {
		entry.Actor = requestcontext.ClientIP(ctx)
	}
	if entry.Actor == "" {
		entry.Actor = ActorAnonymous
	}
	if reqID := requestcontext.RequestID(ctx); reqID != "" {
		if entry.Details == nil {
			entry.Details = make(map[string]any, 1)
		}
		entry.Details["requestId"] = reqID
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(ctx, entry, "closed")
		return
	}
	if !r.breaker.Allow() {
		r.drop(ctx, entry, "circuit_open")
		return
	}
	select {
	case r.queue <- entry:
	default:
		r.drop(ctx, entry, "buffer_full")
	}
}

func (r *Recorder) drop(ctx context.Context, e *Entry, reason string) {
	if r.metrics != nil {
		r.metrics.Dropped.WithLabelValues(reason).Inc()
	}
	r.logger.WarnContext(ctx, "activity entry dropped",
		"reason", reason,
		"kind", string(e.Kind),
		"tenant_id", e.TenantID.String(),
		"credential_id", e.CredentialID.String(),
	)
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for entry := range r.queue {
		r.persist(entry)
	}
}

func (r *Recorder) persist(e *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.Append(ctx, e); err != nil {
		r.breaker.RecordFailure()
		if r.metrics != nil {
			r.metrics.Persisted.WithLabelValues(string(e.Kind), "error").Inc()
		}
		r.logger.ErrorContext(ctx, "persist activity entry failed",
			"error", err,
			"kind", string(e.Kind),
			"tenant_id", e.TenantID.String(),
		)
		return
	}
	r.breaker.RecordSuccess()
	if r.metrics != nil {
		r.metrics.Persisted.WithLabelValues(string(e.Kind), "ok").Inc()
	}

	if r.sink == nil {
		return
	}
	if err := r.sink.Publish(ctx, e); err != nil {
		if r.metrics != nil {
			r.metrics.SinkFailures.Inc()
		}
		r.logger.WarnContext(ctx, "publish activity entry failed",
			"error", err,
			"kind", string(e.Kind),
		)
	}
}

// Close stops accepting entries and waits for the buffer to drain or ctx to
// end, whichever comes first.
func (r *Recorder) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
