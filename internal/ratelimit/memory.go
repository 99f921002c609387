package ratelimit

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	start time.Time
	count int64
}

// InMemory keeps one counter per key. Expired counters are pruned when the
// map grows past pruneAt.
type InMemory struct {
	mu       sync.Mutex
	counters map[string]*counter
	pruneAt  int
	now      func() time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{
		counters: make(map[string]*counter),
		pruneAt:  10_000,
		now:      time.Now,
	}
}

func (m *InMemory) Allow(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := m.now()
	start := windowStart(now, window)

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.counters) >= m.pruneAt {
		m.prune(start)
	}
	c, ok := m.counters[key]
	if !ok || c.start.Before(start) {
		c = &counter{start: start}
		m.counters[key] = c
	}
	c.count++
	return result(c.count, limit, start.Add(window)), nil
}

func (m *InMemory) prune(current time.Time) {
	for k, c := range m.counters {
		if c.start.Before(current) {
			delete(m.counters, k)
		}
	}
}
