package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"certifier/internal/webhook"
	id "certifier/pkg/domain"
	"certifier/pkg/platform/sentinel"
)

// PostgresStore persists subscriptions in webhook_subscriptions and attempts
// in webhook_deliveries.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const subscriptionColumns = `id, tenant_id, url, events, sealed_secret, enabled, success_count, failure_count,
	last_error, last_error_at, created_at, updated_at`

const deliveryColumns = `id, subscription_id, tenant_id, event, payload, url, status, http_status,
	response_preview, elapsed_ms, attempts, next_retry_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) CreateSubscription(ctx context.Context, sub *webhook.Subscription) error {
	events, err := json.Marshal(sub.Events)
	if err != nil {
		return fmt.Errorf("marshal subscription events: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO webhook_subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		uuid.UUID(sub.ID), uuid.UUID(sub.TenantID), sub.URL, events, sub.SealedSecret, sub.Enabled,
		sub.SuccessCount, sub.FailureCount, sub.LastError, sub.LastErrorAt, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert webhook subscription: %w", err)
	}
	return nil
}

func scanSubscription(row rowScanner) (*webhook.Subscription, error) {
	var (
		sub      webhook.Subscription
		sid, tid uuid.UUID
		events   []byte
		lastAt   sql.NullTime
	)
	if err := row.Scan(&sid, &tid, &sub.URL, &events, &sub.SealedSecret, &sub.Enabled,
		&sub.SuccessCount, &sub.FailureCount, &sub.LastError, &lastAt, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(events, &sub.Events); err != nil {
		return nil, fmt.Errorf("unmarshal subscription events: %w", err)
	}
	sub.ID = id.SubscriptionID(sid)
	sub.TenantID = id.TenantID(tid)
	if lastAt.Valid {
		t := lastAt.Time
		sub.LastErrorAt = &t
	}
	return &sub, nil
}

func (s *PostgresStore) FindSubscription(ctx context.Context, subID id.SubscriptionID) (*webhook.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM webhook_subscriptions WHERE id = $1`, uuid.UUID(subID))
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subscription %s: %w", subID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find webhook subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) ListSubscriptions(ctx context.Context, tenantID id.TenantID) ([]*webhook.Subscription, error) {
	return s.querySubscriptions(ctx, `SELECT `+subscriptionColumns+` FROM webhook_subscriptions
		WHERE tenant_id = $1 ORDER BY created_at, id`, uuid.UUID(tenantID))
}

func (s *PostgresStore) ListActive(ctx context.Context, tenantID id.TenantID, kind webhook.EventKind) ([]*webhook.Subscription, error) {
	return s.querySubscriptions(ctx, `SELECT `+subscriptionColumns+` FROM webhook_subscriptions
		WHERE tenant_id = $1 AND enabled AND events ? $2 ORDER BY created_at, id`, uuid.UUID(tenantID), string(kind))
}

func (s *PostgresStore) querySubscriptions(ctx context.Context, query string, args ...any) ([]*webhook.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query webhook subscriptions: %w", err)
	}
	defer rows.Close()
	out := []*webhook.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook subscription: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook subscriptions: %w", err)
	}
	return out, nil
}

// DeleteSubscription cascades to the delivery log through the foreign key.
func (s *PostgresStore) DeleteSubscription(ctx context.Context, subID id.SubscriptionID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, uuid.UUID(subID))
	if err != nil {
		return fmt.Errorf("delete webhook subscription: %w", err)
	}
	return requireRow(res, subID)
}

func (s *PostgresStore) SetEnabled(ctx context.Context, subID id.SubscriptionID, enabled bool, at time.Time) (*webhook.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE webhook_subscriptions SET enabled = $2, updated_at = $3 WHERE id = $1
		RETURNING `+subscriptionColumns, uuid.UUID(subID), enabled, at)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subscription %s: %w", subID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update webhook subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) RecordOutcome(ctx context.Context, subID id.SubscriptionID, success bool, lastError string, at time.Time) error {
	query := `UPDATE webhook_subscriptions SET success_count = success_count + 1, updated_at = $2 WHERE id = $1`
	args := []any{uuid.UUID(subID), at}
	if !success {
		query = `UPDATE webhook_subscriptions SET failure_count = failure_count + 1, updated_at = $2,
			last_error = CASE WHEN $3 = '' THEN last_error ELSE $3 END,
			last_error_at = CASE WHEN $3 = '' THEN last_error_at ELSE $2 END
			WHERE id = $1`
		args = append(args, lastError)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("record webhook outcome: %w", err)
	}
	return requireRow(res, subID)
}

func requireRow(res sql.Result, subID id.SubscriptionID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("subscription %s: %w", subID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) CreateDelivery(ctx context.Context, d *webhook.Delivery) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (`+deliveryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		uuid.UUID(d.ID), uuid.UUID(d.SubscriptionID), uuid.UUID(d.TenantID), string(d.Event), d.Payload, d.URL,
		string(d.Status), d.HTTPStatus, d.ResponsePreview, d.ElapsedMS, d.Attempts, d.NextRetryAt, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert webhook delivery: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateDelivery(ctx context.Context, d *webhook.Delivery) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_deliveries SET status = $2, http_status = $3, response_preview = $4, elapsed_ms = $5,
			attempts = $6, next_retry_at = $7, updated_at = $8
		WHERE id = $1`,
		uuid.UUID(d.ID), string(d.Status), d.HTTPStatus, d.ResponsePreview, d.ElapsedMS, d.Attempts, d.NextRetryAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update webhook delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delivery %s: %w", d.ID, sentinel.ErrNotFound)
	}
	return nil
}

func scanDelivery(row rowScanner) (*webhook.Delivery, error) {
	var (
		d             webhook.Delivery
		did, sid, tid uuid.UUID
		event, status string
		nextRetry     sql.NullTime
	)
	if err := row.Scan(&did, &sid, &tid, &event, &d.Payload, &d.URL, &status, &d.HTTPStatus,
		&d.ResponsePreview, &d.ElapsedMS, &d.Attempts, &nextRetry, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.ID = id.DeliveryID(did)
	d.SubscriptionID = id.SubscriptionID(sid)
	d.TenantID = id.TenantID(tid)
	d.Event = webhook.EventKind(event)
	d.Status = webhook.DeliveryStatus(status)
	if nextRetry.Valid {
		t := nextRetry.Time
		d.NextRetryAt = &t
	}
	return &d, nil
}

func (s *PostgresStore) queryDeliveries(ctx context.Context, query string, args ...any) ([]*webhook.Delivery, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query webhook deliveries: %w", err)
	}
	defer rows.Close()
	out := []*webhook.Delivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook delivery: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook deliveries: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListDeliveries(ctx context.Context, subID id.SubscriptionID, limit int) ([]*webhook.Delivery, error) {
	return s.queryDeliveries(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries
		WHERE subscription_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, uuid.UUID(subID), limit)
}

// ClaimDue leases due rows with SKIP LOCKED so concurrent pollers on several
// replicas never claim the same delivery.
func (s *PostgresStore) ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*webhook.Delivery, error) {
	return s.queryDeliveries(ctx, `
		UPDATE webhook_deliveries SET next_retry_at = $2
		WHERE id IN (
			SELECT id FROM webhook_deliveries
			WHERE status IN ('pending', 'retry') AND next_retry_at <= $1
			ORDER BY next_retry_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+deliveryColumns, now, leaseUntil, limit)
}

func (s *PostgresStore) ExtendLease(ctx context.Context, deliveryID id.DeliveryID, leaseUntil time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE webhook_deliveries SET next_retry_at = $2
		WHERE id = $1 AND status IN ('pending', 'retry')`,
		uuid.UUID(deliveryID), leaseUntil)
	if err != nil {
		return fmt.Errorf("extend webhook delivery lease: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteDeliveriesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM webhook_deliveries WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete webhook deliveries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete webhook deliveries rows: %w", err)
	}
	return int(n), nil
}
