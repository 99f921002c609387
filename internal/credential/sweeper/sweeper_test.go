package sweeper

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certifier/internal/credential/models"
	"certifier/internal/credential/store"
	"certifier/internal/render"
	pkgtestutil "certifier/pkg/testutil"
)

func TestSweeper_FailsOnlyStuckCredentials(t *testing.T) {
	ctx := context.Background()
	credentials := store.NewInMemory()
	now := time.Now()

	stuck := pkgtestutil.NewCredentialBuilder().Build()
	require.NoError(t, credentials.Create(ctx, stuck))
	_, err := credentials.Transition(ctx, stuck.ID, models.Transition{
		From: models.StatusDraft, To: models.StatusGenerating, At: now.Add(-time.Hour),
	})
	require.NoError(t, err)

	recent := pkgtestutil.NewCredentialBuilder().Build()
	require.NoError(t, credentials.Create(ctx, recent))
	_, err = credentials.Transition(ctx, recent.ID, models.Transition{
		From: models.StatusDraft, To: models.StatusGenerating, At: now,
	})
	require.NoError(t, err)

	issued := pkgtestutil.NewCredentialBuilder().Build()
	require.NoError(t, credentials.Create(ctx, issued))
	_, err = credentials.Transition(ctx, issued.ID, models.Transition{
		From: models.StatusDraft, To: models.StatusGenerating, At: now.Add(-time.Hour),
	})
	require.NoError(t, err)
	_, err = credentials.AttachArtifact(ctx, issued.ID, render.FormatPNG, "https://cdn.test/i.png")
	require.NoError(t, err)
	_, err = credentials.Transition(ctx, issued.ID, models.Transition{
		From: models.StatusGenerating, To: models.StatusIssued, At: now.Add(-time.Hour),
	})
	require.NoError(t, err)

	metrics := NewMetrics(prometheus.NewRegistry())
	sw, err := New(credentials,
		WithThreshold(15*time.Minute),
		WithClock(func() time.Time { return now }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(metrics),
	)
	require.NoError(t, err)

	res, err := sw.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Scanned: 1, Failed: 1}, res)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Swept))

	got, err := credentials.FindByID(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "RenderFailed", got.FailureCode)
	assert.Equal(t, TimeoutMessage, got.FailureMessage)

	got, err = credentials.FindByID(ctx, recent.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusGenerating, got.Status)
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
