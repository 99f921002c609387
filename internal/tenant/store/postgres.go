package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"certifier/internal/tenant/models"
	id "certifier/pkg/domain"
	"certifier/pkg/platform/sentinel"
)

// PostgresStore persists tenants in PostgreSQL. Billing mutations are single
// conditional UPDATE statements.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// counterColumns whitelists the columns a counter may touch.
var counterColumns = map[models.Counter][2]string{
	models.CounterCredentialsIssued: {"usage_credentials_issued", "lifetime_credentials_issued"},
	models.CounterEventsCreated:     {"usage_events_created", "lifetime_events_created"},
	models.CounterParticipantsAdded: {"usage_participants_added", "lifetime_participants_added"},
}

const tenantColumns = `id, name, status, billing_mode, plan_id, credits, subscription_status,
	period_start, period_end,
	usage_credentials_issued, usage_events_created, usage_participants_added,
	lifetime_credentials_issued, lifetime_events_created, lifetime_participants_added,
	created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, t *models.Tenant) error {
	if t == nil {
		return fmt.Errorf("tenant is required")
	}
	query := `INSERT INTO tenants (` + tenantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(t.ID), t.Name, string(t.Status), string(t.BillingMode), t.PlanID, t.Credits,
		string(t.SubscriptionStatus), nullTime(t.PeriodStart), nullTime(t.PeriodEnd),
		t.PeriodUsage.CredentialsIssued, t.PeriodUsage.EventsCreated, t.PeriodUsage.ParticipantsAdded,
		t.LifetimeUsage.CredentialsIssued, t.LifetimeUsage.EventsCreated, t.LifetimeUsage.ParticipantsAdded,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	t, err := scanTenant(s.db.QueryRowContext(ctx, query, uuid.UUID(tenantID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find tenant by id: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ConsumeCredit(ctx context.Context, tenantID id.TenantID) (int64, error) {
	query := `
		UPDATE tenants
		SET credits = credits - 1,
			usage_credentials_issued = usage_credentials_issued + 1,
			lifetime_credentials_issued = lifetime_credentials_issued + 1,
			updated_at = NOW()
		WHERE id = $1 AND credits > 0
		RETURNING credits
	`
	var remaining int64
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(tenantID)).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, s.missOrExhausted(ctx, tenantID)
	}
	if err != nil {
		return 0, fmt.Errorf("consume credit: %w", err)
	}
	return remaining, nil
}

func (s *PostgresStore) IncrementUsage(ctx context.Context, tenantID id.TenantID, counter models.Counter, limit int64) (int64, error) {
	cols, ok := counterColumns[counter]
	if !ok {
		return 0, fmt.Errorf("unknown usage counter %q", counter)
	}
	query := fmt.Sprintf(`
		UPDATE tenants
		SET %[1]s = %[1]s + 1, %[2]s = %[2]s + 1, updated_at = NOW()
		WHERE id = $1 AND ($2::bigint < 0 OR %[1]s < $2::bigint)
		RETURNING %[1]s
	`, cols[0], cols[1])
	var value int64
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(tenantID), limit).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, s.missOrExhausted(ctx, tenantID)
	}
	if err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	return value, nil
}

func (s *PostgresStore) RollPeriod(ctx context.Context, tenantID id.TenantID, expectedEnd, start, end time.Time) (bool, error) {
	query := `
		UPDATE tenants
		SET period_start = $3, period_end = $4,
			usage_credentials_issued = 0, usage_events_created = 0, usage_participants_added = 0,
			updated_at = NOW()
		WHERE id = $1 AND period_end = $2
	`
	res, err := s.db.ExecContext(ctx, query, uuid.UUID(tenantID), expectedEnd, start, end)
	if err != nil {
		return false, fmt.Errorf("roll period: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("roll period rows: %w", err)
	}
	return rows == 1, nil
}

func (s *PostgresStore) AddCredits(ctx context.Context, tenantID id.TenantID, n int64) (int64, error) {
	if n < 0 {
		return 0, fmt.Errorf("credit top-up must be positive")
	}
	var credits int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE tenants SET credits = credits + $2, updated_at = NOW() WHERE id = $1 RETURNING credits`,
		uuid.UUID(tenantID), n,
	).Scan(&credits)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, sentinel.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("add credits: %w", err)
	}
	return credits, nil
}

func (s *PostgresStore) ReleaseUsage(ctx context.Context, tenantID id.TenantID, counter models.Counter, refundCredit bool) error {
	cols, ok := counterColumns[counter]
	if !ok {
		return fmt.Errorf("unknown usage counter %q", counter)
	}
	refund := 0
	if refundCredit {
		refund = 1
	}
	query := fmt.Sprintf(`
		UPDATE tenants
		SET %[1]s = GREATEST(%[1]s - 1, 0), %[2]s = GREATEST(%[2]s - 1, 0),
		    credits = credits + $2, updated_at = NOW()
		WHERE id = $1
	`, cols[0], cols[1])
	res, err := s.db.ExecContext(ctx, query, uuid.UUID(tenantID), refund)
	if err != nil {
		return fmt.Errorf("release usage: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) TenantActive(ctx context.Context, tenantID id.TenantID) (bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM tenants WHERE id = $1`, uuid.UUID(tenantID)).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("tenant status: %w", err)
	}
	return models.Status(status) == models.StatusActive, nil
}

func (s *PostgresStore) missOrExhausted(ctx context.Context, tenantID id.TenantID) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1)`, uuid.UUID(tenantID)).Scan(&exists); err != nil {
		return fmt.Errorf("check tenant: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrExhausted
}

type row interface {
	Scan(dest ...any) error
}

func scanTenant(r row) (*models.Tenant, error) {
	var (
		t                          models.Tenant
		tenantID                   uuid.UUID
		status, billing, subStatus string
		periodStart, periodEnd     sql.NullTime
	)
	err := r.Scan(&tenantID, &t.Name, &status, &billing, &t.PlanID, &t.Credits, &subStatus,
		&periodStart, &periodEnd,
		&t.PeriodUsage.CredentialsIssued, &t.PeriodUsage.EventsCreated, &t.PeriodUsage.ParticipantsAdded,
		&t.LifetimeUsage.CredentialsIssued, &t.LifetimeUsage.EventsCreated, &t.LifetimeUsage.ParticipantsAdded,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.ID = id.TenantID(tenantID)
	t.Status = models.Status(status)
	t.BillingMode = models.BillingMode(billing)
	t.SubscriptionStatus = models.SubscriptionStatus(subStatus)
	t.PeriodStart = periodStart.Time
	t.PeriodEnd = periodEnd.Time
	return &t, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
