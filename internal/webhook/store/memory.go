// Package store persists webhook subscriptions and the delivery log.
package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"certifier/internal/webhook"
	id "certifier/pkg/domain"
	"certifier/pkg/platform/sentinel"
)

type InMemory struct {
	mu            sync.RWMutex
	subscriptions map[id.SubscriptionID]*webhook.Subscription
	deliveries    map[id.DeliveryID]*webhook.Delivery
}

func NewInMemory() *InMemory {
	return &InMemory{
		subscriptions: make(map[id.SubscriptionID]*webhook.Subscription),
		deliveries:    make(map[id.DeliveryID]*webhook.Delivery),
	}
}

func (s *InMemory) CreateSubscription(_ context.Context, sub *webhook.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscriptions[sub.ID]; ok {
		return fmt.Errorf("subscription %s: %w", sub.ID, sentinel.ErrAlreadyExists)
	}
	s.subscriptions[sub.ID] = sub.Clone()
	return nil
}

func (s *InMemory) FindSubscription(_ context.Context, subID id.SubscriptionID) (*webhook.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscriptions[subID]
	if !ok {
		return nil, fmt.Errorf("subscription %s: %w", subID, sentinel.ErrNotFound)
	}
	return sub.Clone(), nil
}

func (s *InMemory) ListSubscriptions(_ context.Context, tenantID id.TenantID) ([]*webhook.Subscription, error) {
	return s.list(tenantID, func(*webhook.Subscription) bool { return true }), nil
}

func (s *InMemory) ListActive(_ context.Context, tenantID id.TenantID, kind webhook.EventKind) ([]*webhook.Subscription, error) {
	return s.list(tenantID, func(sub *webhook.Subscription) bool { return sub.Accepts(kind) }), nil
}

func (s *InMemory) list(tenantID id.TenantID, keep func(*webhook.Subscription) bool) []*webhook.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*webhook.Subscription{}
	for _, sub := range s.subscriptions {
		if sub.TenantID == tenantID && keep(sub) {
			out = append(out, sub.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *webhook.Subscription) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return out
}

// DeleteSubscription removes the subscription and its delivery log.
func (s *InMemory) DeleteSubscription(_ context.Context, subID id.SubscriptionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscriptions[subID]; !ok {
		return fmt.Errorf("subscription %s: %w", subID, sentinel.ErrNotFound)
	}
	delete(s.subscriptions, subID)
	for did, d := range s.deliveries {
		if d.SubscriptionID == subID {
			delete(s.deliveries, did)
		}
	}
	return nil
}

func (s *InMemory) SetEnabled(_ context.Context, subID id.SubscriptionID, enabled bool, at time.Time) (*webhook.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[subID]
	if !ok {
		return nil, fmt.Errorf("subscription %s: %w", subID, sentinel.ErrNotFound)
	}
	sub.Enabled = enabled
	sub.UpdatedAt = at
	return sub.Clone(), nil
}

func (s *InMemory) RecordOutcome(_ context.Context, subID id.SubscriptionID, success bool, lastError string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[subID]
	if !ok {
		return fmt.Errorf("subscription %s: %w", subID, sentinel.ErrNotFound)
	}
	if success {
		sub.SuccessCount++
	} else {
		sub.FailureCount++
	}
	if lastError != "" {
		sub.LastError = lastError
		t := at
		sub.LastErrorAt = &t
	}
	sub.UpdatedAt = at
	return nil
}

func (s *InMemory) CreateDelivery(_ context.Context, d *webhook.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deliveries[d.ID]; ok {
		return fmt.Errorf("delivery %s: %w", d.ID, sentinel.ErrAlreadyExists)
	}
	s.deliveries[d.ID] = d.Clone()
	return nil
}

func (s *InMemory) UpdateDelivery(_ context.Context, d *webhook.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deliveries[d.ID]; !ok {
		return fmt.Errorf("delivery %s: %w", d.ID, sentinel.ErrNotFound)
	}
	s.deliveries[d.ID] = d.Clone()
	return nil
}

// ListDeliveries returns the newest deliveries first.
func (s *InMemory) ListDeliveries(_ context.Context, subID id.SubscriptionID, limit int) ([]*webhook.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*webhook.Delivery{}
	for _, d := range s.deliveries {
		if d.SubscriptionID == subID {
			out = append(out, d.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *webhook.Delivery) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.ID.String(), a.ID.String()))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) ClaimDue(_ context.Context, now, leaseUntil time.Time, limit int) ([]*webhook.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*webhook.Delivery
	for _, d := range s.deliveries {
		if d.Status != webhook.DeliveryPending && d.Status != webhook.DeliveryRetry {
			continue
		}
		if d.NextRetryAt == nil || d.NextRetryAt.After(now) {
			continue
		}
		due = append(due, d)
	}
	slices.SortFunc(due, func(a, b *webhook.Delivery) int {
		return a.NextRetryAt.Compare(*b.NextRetryAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]*webhook.Delivery, 0, len(due))
	for _, d := range due {
		lease := leaseUntil
		d.NextRetryAt = &lease
		out = append(out, d.Clone())
	}
	return out, nil
}

func (s *InMemory) ExtendLease(_ context.Context, deliveryID id.DeliveryID, leaseUntil time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deliveries[deliveryID]
	if !ok {
		return fmt.Errorf("delivery %s: %w", deliveryID, sentinel.ErrNotFound)
	}
	if d.Status == webhook.DeliveryPending || d.Status == webhook.DeliveryRetry {
		lease := leaseUntil
		d.NextRetryAt = &lease
	}
	return nil
}

func (s *InMemory) DeleteDeliveriesBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for did, d := range s.deliveries {
		if d.CreatedAt.Before(cutoff) {
			delete(s.deliveries, did)
			n++
		}
	}
	return n, nil
}
