package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetention is how long entries are kept.
const DefaultRetention = 90 * 24 * time.Hour

// Janitor deletes entries older than the retention window.
type Janitor struct {
	store     Store
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewJanitor(store Store, retention time.Duration, logger *slog.Logger) *Janitor {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{store: store, retention: retention, now: time.Now, logger: logger}
}

func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.retention)
	n, err := j.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reap activity entries: %w", err)
	}
	if n > 0 {
		j.logger.InfoContext(ctx, "activity entries reaped", "deleted", n, "cutoff", cutoff)
	}
	return n, nil
}
