// Package redis opens the shared go-redis client used by the rate limiter.
package redis

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"certifier/internal/platform/config"
)

// Client wraps the go-redis client with health checking.
type Client struct {
	*redis.Client
}

// New creates a client from cfg and pings it. Returns nil when no URL is
// configured.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{Client: client}, nil
}

// Health checks if the Redis connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("redis not configured")
	}
	return c.Ping(ctx).Err()
}

// RegisterMetrics exposes pool statistics. Counters are read straight from
// the pool, which already accumulates them.
func (c *Client) RegisterMetrics(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "certifier_redis_pool_total_conns",
			Help: "Number of total connections in the pool",
		}, func() float64 { return float64(c.PoolStats().TotalConns) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "certifier_redis_pool_idle_conns",
			Help: "Number of idle connections in the pool",
		}, func() float64 { return float64(c.PoolStats().IdleConns) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "certifier_redis_pool_hits_total",
			Help: "Number of times a connection was found in the pool",
		}, func() float64 { return float64(c.PoolStats().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "certifier_redis_pool_misses_total",
			Help: "Number of times a connection was not found in the pool",
		}, func() float64 { return float64(c.PoolStats().Misses) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "certifier_redis_pool_timeouts_total",
			Help: "Number of times a connection was not obtained due to timeout",
		}, func() float64 { return float64(c.PoolStats().Timeouts) }),
	}
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return fmt.Errorf("register redis metric: %w", err)
		}
	}
	return nil
}
