// Package scheduler runs periodic maintenance jobs (retention janitors, the
// stuck-credential sweeper, the webhook retry poller) on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
)

// JobFunc performs one run of a job. It reports how many items it touched.
type JobFunc func(ctx context.Context) (int, error)

// Metrics counts job runs.
type Metrics struct {
	Runs  *prometheus.CounterVec
	Items *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certifier_scheduler_runs_total",
			Help: "Scheduled job runs by job and outcome",
		}, []string{"job", "outcome"}),
		Items: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certifier_scheduler_items_total",
			Help: "Items processed by scheduled jobs",
		}, []string{"job"}),
	}
}

// Scheduler wraps a cron runner whose jobs share one root context that is
// cancelled on Stop.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	metrics *Metrics
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithRunTimeout bounds a single job run. Defaults to one minute.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:  slog.Default(),
		timeout: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	clog := cronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	return s
}

// Add registers fn under name. spec accepts standard five-field expressions
// and descriptors such as "@every 30s".
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	_, err := s.cron.AddFunc(spec, func() { s.run(name, fn) })
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	return nil
}

// Every is shorthand for Add(name, "@every <d>", fn).
func (s *Scheduler) Every(name string, d time.Duration, fn JobFunc) error {
	return s.Add(name, "@every "+d.String(), fn)
}

func (s *Scheduler) run(name string, fn JobFunc) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := fn(ctx)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		s.logger.ErrorContext(ctx, "scheduled job failed",
			"job", name,
			"error", err,
			"duration", time.Since(start),
		)
	} else if n > 0 {
		s.logger.InfoContext(ctx, "scheduled job completed",
			"job", name,
			"items", n,
			"duration", time.Since(start),
		)
	}
	if s.metrics != nil {
		s.metrics.Runs.WithLabelValues(name, outcome).Inc()
		if n > 0 {
			s.metrics.Items.WithLabelValues(name).Add(float64(n))
		}
	}
}

// Start begins running jobs in the background. Calling it twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// cronLogger adapts slog to cron's logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
