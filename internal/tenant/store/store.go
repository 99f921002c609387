// Package store persists tenants and applies atomic billing mutations.
package store

import (
	"context"
	"time"

	"certifier/internal/tenant/models"
	id "certifier/pkg/domain"
)

// Store is implemented by InMemory and PostgresStore. Every mutation is a
// single atomic step so concurrent admissions observe each change at most once.
type Store interface {
	Create(ctx context.Context, tenant *models.Tenant) error
	FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	// ConsumeCredit decrements the balance by one and counts an issued
	// credential. It returns sentinel.ErrExhausted at zero balance.
	ConsumeCredit(ctx context.Context, tenantID id.TenantID) (remaining int64, err error)
	// IncrementUsage bumps a counter when it is below limit (limit < 0 means
	// unlimited) and returns the new period value, or sentinel.ErrExhausted.
	IncrementUsage(ctx context.Context, tenantID id.TenantID, counter models.Counter, limit int64) (int64, error)
	// RollPeriod resets period usage if the stored period end still equals
	// expectedEnd. It reports whether this call performed the rollover.
	RollPeriod(ctx context.Context, tenantID id.TenantID, expectedEnd, start, end time.Time) (bool, error)
	AddCredits(ctx context.Context, tenantID id.TenantID, n int64) (int64, error)
	// ReleaseUsage compensates an admission whose operation never took
	// effect: the counter drops by one and, when refundCredit is set, the
	// consumed credit is returned.
	ReleaseUsage(ctx context.Context, tenantID id.TenantID, counter models.Counter, refundCredit bool) error
	TenantActive(ctx context.Context, tenantID id.TenantID) (bool, error)
}
