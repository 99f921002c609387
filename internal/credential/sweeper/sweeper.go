// Package sweeper fails credentials that have been generating for too long,
// typically because the request that owned the render was abandoned.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"certifier/internal/credential/models"
	id "certifier/pkg/domain"
	dErrors "certifier/pkg/domain-errors"
	"certifier/pkg/platform/sentinel"
)

const (
	DefaultThreshold = 15 * time.Minute
	defaultBatchSize = 100
	// TimeoutMessage is recorded on swept credentials.
	TimeoutMessage = "generation timed out"
)

// Store is the slice of the credential store the sweeper needs.
type Store interface {
	ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]*models.Credential, error)
	Transition(ctx context.Context, credentialID id.CredentialID, t models.Transition) (*models.Credential, error)
}

// Result summarizes one sweep.
type Result struct {
	Scanned int
	Failed  int
	Skipped int
}

type Sweeper struct {
	store     Store
	threshold time.Duration
	batchSize int
	now       func() time.Time
	logger    *slog.Logger
	metrics   *Metrics
}

type Option func(*Sweeper)

// WithThreshold overrides how long a credential may stay generating.
func WithThreshold(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.threshold = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func New(store Store, opts ...Option) (*Sweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	s := &Sweeper{
		store:     store,
		threshold: DefaultThreshold,
		batchSize: defaultBatchSize,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// RunOnce fails one batch of stuck credentials. A credential that finished
// between listing and transition is skipped.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	now := s.now()
	stuck, err := s.store.ListStuck(ctx, now.Add(-s.threshold), s.batchSize)
	if err != nil {
		return Result{}, fmt.Errorf("list stuck credentials: %w", err)
	}

	res := Result{Scanned: len(stuck)}
	var errs []error
	for _, c := range stuck {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		_, err := s.store.Transition(ctx, c.ID, models.Transition{
			From:           models.StatusGenerating,
			To:             models.StatusFailed,
			At:             now,
			FailureCode:    string(dErrors.CodeRenderFailed),
			FailureMessage: TimeoutMessage,
		})
		switch {
		case err == nil:
			res.Failed++
			s.logger.WarnContext(ctx, "stuck credential marked failed",
				"credential_id", c.ID.String(),
				"tenant_id", c.TenantID.String(),
				"generating_since", c.UpdatedAt,
			)
		case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrNotFound):
			res.Skipped++
		default:
			errs = append(errs, fmt.Errorf("fail credential %s: %w", c.ID, err))
		}
	}
	if s.metrics != nil {
		s.metrics.Swept.Add(float64(res.Failed))
	}
	return res, errors.Join(errs...)
}
