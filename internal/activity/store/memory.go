// Package store persists activity entries.
package store

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"certifier/internal/activity"
	id "certifier/pkg/domain"
)

// InMemory keeps entries in insertion order.
type InMemory struct {
	mu      sync.RWMutex
	entries []*activity.Entry
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Append(_ context.Context, e *activity.Entry) error {
	cp := *e
	cp.Details = maps.Clone(e.Details)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *InMemory) Query(_ context.Context, tenantID id.TenantID, filter activity.Filter, limit, offset int) ([]*activity.Entry, int, error) {
	s.mu.RLock()
	var matched []*activity.Entry
	for _, e := range slices.Backward(s.entries) {
		if e.TenantID == tenantID && filter.Matches(e) {
			cp := *e
			cp.Details = maps.Clone(e.Details)
			matched = append(matched, &cp)
		}
	}
	s.mu.RUnlock()

	total := len(matched)
	if offset >= total {
		return []*activity.Entry{}, total, nil
	}
	end := total
	if limit > 0 {
		end = min(offset+limit, total)
	}
	return matched[offset:end], total, nil
}

func (s *InMemory) DeleteBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.entries)
	s.entries = slices.DeleteFunc(s.entries, func(e *activity.Entry) bool {
		return e.CreatedAt.Before(cutoff)
	})
	return before - len(s.entries), nil
}
