package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"certifier/internal/catalog/models"
	id "certifier/pkg/domain"
	"certifier/pkg/platform/sentinel"
)

// PostgresStore persists the catalog in PostgreSQL. Event codes are unique per
// tenant and participant emails are unique globally through indexes.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateEvent(ctx context.Context, e *models.Event) error {
	query := `
		INSERT INTO events (id, tenant_id, title, description, start_date, end_date, capacity, category, code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(e.ID), uuid.UUID(e.TenantID), e.Title, e.Description, e.StartDate, e.EndDate,
		e.Capacity, e.Category, e.Code, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindEvent(ctx context.Context, eventID id.EventID) (*models.Event, error) {
	query := `
		SELECT id, tenant_id, title, description, start_date, end_date, capacity, category, COALESCE(code, ''), created_at, updated_at
		FROM events WHERE id = $1
	`
	var (
		e                  models.Event
		eid, tenantID      uuid.UUID
		startDate, endDate sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(eventID)).Scan(
		&eid, &tenantID, &e.Title, &e.Description, &startDate, &endDate,
		&e.Capacity, &e.Category, &e.Code, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find event: %w", err)
	}
	e.ID = id.EventID(eid)
	e.TenantID = id.TenantID(tenantID)
	if startDate.Valid {
		e.StartDate = &startDate.Time
	}
	if endDate.Valid {
		e.EndDate = &endDate.Time
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT participant_id FROM event_participants WHERE event_id = $1 ORDER BY position`,
		uuid.UUID(eventID))
	if err != nil {
		return nil, fmt.Errorf("list event participants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pid uuid.UUID
		if err := rows.Scan(&pid); err != nil {
			return nil, fmt.Errorf("scan event participant: %w", err)
		}
		e.ParticipantIDs = append(e.ParticipantIDs, id.ParticipantID(pid))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event participants: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) AddParticipant(ctx context.Context, eventID id.EventID, participantID id.ParticipantID) error {
	query := `
		INSERT INTO event_participants (event_id, participant_id, position)
		SELECT $1, $2, COALESCE(MAX(position), 0) + 1 FROM event_participants WHERE event_id = $1
	`
	_, err := s.db.ExecContext(ctx, query, uuid.UUID(eventID), uuid.UUID(participantID))
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("add event participant: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateParticipant(ctx context.Context, p *models.Participant) error {
	skills, err := json.Marshal(p.Skills)
	if err != nil {
		return fmt.Errorf("marshal skills: %w", err)
	}
	query := `
		INSERT INTO participants (id, tenant_id, name, email, skills, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(p.ID), uuid.UUID(p.TenantID), p.Name, strings.ToLower(p.Email), skills, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("create participant: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindParticipant(ctx context.Context, participantID id.ParticipantID) (*models.Participant, error) {
	query := `SELECT id, tenant_id, name, email, skills, created_at, updated_at FROM participants WHERE id = $1`
	var (
		p             models.Participant
		pid, tenantID uuid.UUID
		skills        []byte
	)
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(participantID)).Scan(
		&pid, &tenantID, &p.Name, &p.Email, &skills, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find participant: %w", err)
	}
	if len(skills) > 0 {
		if err := json.Unmarshal(skills, &p.Skills); err != nil {
			return nil, fmt.Errorf("unmarshal skills: %w", err)
		}
	}
	p.ID = id.ParticipantID(pid)
	p.TenantID = id.TenantID(tenantID)
	return &p, nil
}

func (s *PostgresStore) CreateTemplate(ctx context.Context, tpl *models.Template) error {
	design, history, err := marshalTemplate(tpl)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO templates (id, tenant_id, name, type, design, version, history, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(tpl.ID), uuid.UUID(tpl.TenantID), tpl.Name, tpl.Type, design, tpl.Version, history,
		tpl.CreatedAt, tpl.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindTemplate(ctx context.Context, templateID id.TemplateID) (*models.Template, error) {
	query := `SELECT id, tenant_id, name, type, design, version, history, created_at, updated_at FROM templates WHERE id = $1`
	var (
		tpl             models.Template
		tid, tenantID   uuid.UUID
		design, history []byte
	)
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(templateID)).Scan(
		&tid, &tenantID, &tpl.Name, &tpl.Type, &design, &tpl.Version, &history, &tpl.CreatedAt, &tpl.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find template: %w", err)
	}
	if err := json.Unmarshal(design, &tpl.Design); err != nil {
		return nil, fmt.Errorf("unmarshal design: %w", err)
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &tpl.History); err != nil {
			return nil, fmt.Errorf("unmarshal template history: %w", err)
		}
	}
	tpl.ID = id.TemplateID(tid)
	tpl.TenantID = id.TenantID(tenantID)
	return &tpl, nil
}

func (s *PostgresStore) UpdateTemplate(ctx context.Context, tpl *models.Template, expectedVersion int) error {
	design, history, err := marshalTemplate(tpl)
	if err != nil {
		return err
	}
	query := `
		UPDATE templates SET name = $2, design = $3, version = $4, history = $5, updated_at = $6
		WHERE id = $1 AND version = $7
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(tpl.ID), tpl.Name, design, tpl.Version, history, tpl.UpdatedAt, expectedVersion)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update template rows: %w", err)
	}
	if n == 0 {
		if _, err := s.FindTemplate(ctx, tpl.ID); err != nil {
			return err
		}
		return sentinel.ErrConflict
	}
	return nil
}

func marshalTemplate(tpl *models.Template) (design, history []byte, err error) {
	design, err = json.Marshal(tpl.Design)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal design: %w", err)
	}
	if tpl.History == nil {
		tpl.History = []models.TemplateVersion{}
	}
	history, err = json.Marshal(tpl.History)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal template history: %w", err)
	}
	return design, history, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
