package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certifier/internal/activity"
	id "certifier/pkg/domain"
)

func TestInMemory_QueryNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	tenant := id.NewTenantID()
	credential := id.NewCredentialID()
	base := time.Now()

	for i, kind := range []activity.Kind{
		activity.KindCredentialIssued,
		activity.KindCredentialVerified,
		activity.KindCredentialVerified,
	} {
		require.NoError(t, s.Append(ctx, &activity.Entry{
			ID: id.NewActivityID(), TenantID: tenant, Kind: kind, CredentialID: credential,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, s.Append(ctx, &activity.Entry{ID: id.NewActivityID(), TenantID: id.NewTenantID(), Kind: activity.KindCredentialIssued}))

	all, total, err := s.Query(ctx, tenant, activity.Filter{}, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, all, 2)
	assert.True(t, all[0].CreatedAt.After(all[1].CreatedAt))

	verified, total, err := s.Query(ctx, tenant, activity.Filter{Kind: activity.KindCredentialVerified}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, verified, 2)

	none, total, err := s.Query(ctx, tenant, activity.Filter{CredentialID: id.NewCredentialID()}, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, none)
}

func TestInMemory_DeleteBefore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	tenant := id.NewTenantID()
	now := time.Now()

	require.NoError(t, s.Append(ctx, &activity.Entry{ID: id.NewActivityID(), TenantID: tenant, CreatedAt: now.Add(-100 * 24 * time.Hour)}))
	require.NoError(t, s.Append(ctx, &activity.Entry{ID: id.NewActivityID(), TenantID: tenant, CreatedAt: now}))

	n, err := s.DeleteBefore(ctx, now.Add(-activity.DefaultRetention))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, total, err := s.Query(ctx, tenant, activity.Filter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}
