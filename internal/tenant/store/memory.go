package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"certifier/internal/tenant/models"
	id "certifier/pkg/domain"
	"certifier/pkg/platform/sentinel"
)

// InMemory stores tenants in memory for local runs and tests.
type InMemory struct {
	mu      sync.Mutex
	tenants map[id.TenantID]*models.Tenant
	now     func() time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{
		tenants: make(map[id.TenantID]*models.Tenant),
		now:     time.Now,
	}
}

func (s *InMemory) Create(_ context.Context, t *models.Tenant) error {
	if t == nil {
		return fmt.Errorf("tenant is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[t.ID]; ok {
		return sentinel.ErrAlreadyExists
	}
	cp := *t
	s.tenants[t.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *InMemory) ConsumeCredit(_ context.Context, tenantID id.TenantID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	if t.Credits <= 0 {
		return 0, sentinel.ErrExhausted
	}
	t.Credits--
	t.PeriodUsage.Inc(models.CounterCredentialsIssued)
	t.LifetimeUsage.Inc(models.CounterCredentialsIssued)
	t.UpdatedAt = s.now()
	return t.Credits, nil
}

func (s *InMemory) IncrementUsage(_ context.Context, tenantID id.TenantID, counter models.Counter, limit int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	if limit >= 0 && t.PeriodUsage.Get(counter) >= limit {
		return 0, sentinel.ErrExhausted
	}
	t.PeriodUsage.Inc(counter)
	t.LifetimeUsage.Inc(counter)
	t.UpdatedAt = s.now()
	return t.PeriodUsage.Get(counter), nil
}

func (s *InMemory) RollPeriod(_ context.Context, tenantID id.TenantID, expectedEnd, start, end time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if !t.PeriodEnd.Equal(expectedEnd) {
		return false, nil
	}
	t.PeriodStart, t.PeriodEnd = start, end
	t.PeriodUsage = models.Usage{}
	t.UpdatedAt = s.now()
	return true, nil
}

func (s *InMemory) AddCredits(_ context.Context, tenantID id.TenantID, n int64) (int64, error) {
	if n < 0 {
		return 0, fmt.Errorf("credit top-up must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	t.Credits += n
	t.UpdatedAt = s.now()
	return t.Credits, nil
}

func (s *InMemory) ReleaseUsage(_ context.Context, tenantID id.TenantID, counter models.Counter, refundCredit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return sentinel.ErrNotFound
	}
	t.PeriodUsage.Dec(counter)
	t.LifetimeUsage.Dec(counter)
	if refundCredit {
		t.Credits++
	}
	t.UpdatedAt = s.now()
	return nil
}

func (s *InMemory) TenantActive(_ context.Context, tenantID id.TenantID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return false, nil
	}
	return t.IsActive(), nil
}
