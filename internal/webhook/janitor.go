package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultDeliveryRetention is how long delivery log rows are kept.
const DefaultDeliveryRetention = 30 * 24 * time.Hour

// Janitor reaps the delivery log.
type Janitor struct {
	store     Store
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewJanitor(store Store, retention time.Duration, logger *slog.Logger) *Janitor {
	if retention <= 0 {
		retention = DefaultDeliveryRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{store: store, retention: retention, now: time.Now, logger: logger}
}

func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.retention)
	n, err := j.store.DeleteDeliveriesBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reap webhook deliveries: %w", err)
	}
	if n > 0 {
		j.logger.InfoContext(ctx, "webhook deliveries reaped", "deleted", n, "cutoff", cutoff)
	}
	return n, nil
}
