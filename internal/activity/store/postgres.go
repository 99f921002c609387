package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"certifier/internal/activity"
	id "certifier/pkg/domain"
)

// PostgresStore persists entries in the activity_log table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, e *activity.Entry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("marshal activity details: %w", err)
	}
	var credentialID *uuid.UUID
	if !e.CredentialID.IsNil() {
		cid := uuid.UUID(e.CredentialID)
		credentialID = &cid
	}
	query := `
		INSERT INTO activity_log (id, tenant_id, kind, actor, credential_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(e.ID), uuid.UUID(e.TenantID), string(e.Kind), e.Actor, credentialID, details, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert activity entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, tenantID id.TenantID, filter activity.Filter, limit, offset int) ([]*activity.Entry, int, error) {
	where := []string{"tenant_id = $1"}
	args := []any{uuid.UUID(tenantID)}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if !filter.CredentialID.IsNil() {
		args = append(args, uuid.UUID(filter.CredentialID))
		where = append(where, fmt.Sprintf("credential_id = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_log WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count activity entries: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT id, tenant_id, kind, actor, credential_id, details, created_at
		FROM activity_log WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query activity entries: %w", err)
	}
	defer rows.Close()

	out := []*activity.Entry{}
	for rows.Next() {
		var (
			e            activity.Entry
			eid, tid     uuid.UUID
			credentialID uuid.NullUUID
			kind         string
			details      []byte
		)
		if err := rows.Scan(&eid, &tid, &kind, &e.Actor, &credentialID, &details, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan activity entry: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, 0, fmt.Errorf("unmarshal activity details: %w", err)
			}
		}
		e.ID = id.ActivityID(eid)
		e.TenantID = id.TenantID(tid)
		e.Kind = activity.Kind(kind)
		if credentialID.Valid {
			e.CredentialID = id.CredentialID(credentialID.UUID)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate activity entries: %w", err)
	}
	return out, total, nil
}

func (s *PostgresStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM activity_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete activity entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete activity entries rows: %w", err)
	}
	return int(n), nil
}
