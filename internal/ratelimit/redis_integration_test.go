//go:build integration

package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certifier/pkg/testutil/containers"
)

func TestRedis_SharesWindowAcrossInstances(t *testing.T) {
	ctx := context.Background()
	url := containers.Redis(t)
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	now := time.Now().Truncate(time.Minute).Add(5 * time.Second)
	a, b := NewRedis(client), NewRedis(client)
	a.now = func() time.Time { return now }
	b.now = func() time.Time { return now }

	res, err := a.Allow(ctx, "verify:203.0.113.1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	res, err = b.Allow(ctx, "verify:203.0.113.1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	res, err = a.Allow(ctx, "verify:203.0.113.1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	ttl, err := client.TTL(ctx, fmt.Sprintf("%sverify:203.0.113.1:%d", keyPrefix, now.Truncate(time.Minute).Unix())).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
