package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"certifier/internal/credential/models"
	"certifier/internal/render"
	id "certifier/pkg/domain"
	"certifier/pkg/platform/sentinel"
)

// PostgresStore persists credentials in PostgreSQL. Fingerprint uniqueness is
// enforced by a unique index and every state change is a conditional UPDATE.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const credentialColumns = `id, tenant_id, participant_id, event_id, template_id, title, type, source,
	design, participant_data, fingerprint, verification_url, qr_code, artifact_urls, status,
	failure_code, failure_message, issued_at, revoked_at, revoke_reason,
	download_count, last_downloaded_at, shares, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, c *models.Credential) error {
	if c == nil {
		return fmt.Errorf("credential is required")
	}
	if c.Status != models.StatusDraft {
		return sentinel.ErrInvalidState
	}
	design, data, urls, shares, err := marshalBlobs(c)
	if err != nil {
		return err
	}
	var templateID any
	if c.TemplateID != nil {
		templateID = uuid.UUID(*c.TemplateID)
	}
	query := `INSERT INTO credentials (` + credentialColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25)`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(c.ID), uuid.UUID(c.TenantID), uuid.UUID(c.ParticipantID), uuid.UUID(c.EventID), templateID,
		c.Title, string(c.Type), string(c.Source),
		design, data, c.Fingerprint, c.VerificationURL, c.QRCode, urls, string(c.Status),
		c.FailureCode, c.FailureMessage, c.IssuedAt, c.RevokedAt, c.RevokeReason,
		c.DownloadCount, c.LastDownloadAt, shares, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error) {
	return s.findOne(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE id = $1`, uuid.UUID(credentialID))
}

func (s *PostgresStore) FindByFingerprint(ctx context.Context, fp string) (*models.Credential, error) {
	return s.findOne(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE fingerprint = $1`, fp)
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*models.Credential, error) {
	c, err := scanCredential(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID id.TenantID, filter models.Filter, page models.Page) ([]*models.Credential, int, error) {
	page = page.Normalize()
	where := []string{"tenant_id = $1"}
	args := []any{uuid.UUID(tenantID)}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if !filter.EventID.IsNil() {
		args = append(args, uuid.UUID(filter.EventID))
		where = append(where, fmt.Sprintf("event_id = $%d", len(args)))
	}
	if !filter.ParticipantID.IsNil() {
		args = append(args, uuid.UUID(filter.ParticipantID))
		where = append(where, fmt.Sprintf("participant_id = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM credentials WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count credentials: %w", err)
	}

	args = append(args, page.Limit, page.Offset)
	query := fmt.Sprintf(`SELECT %s FROM credentials WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		credentialColumns, clause, len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	out := []*models.Credential{}
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate credentials: %w", err)
	}
	return out, total, nil
}

func (s *PostgresStore) Transition(ctx context.Context, credentialID id.CredentialID, t models.Transition) (*models.Credential, error) {
	if !models.CanTransition(t.From, t.To) {
		return nil, sentinel.ErrInvalidState
	}
	var (
		set  string
		args = []any{uuid.UUID(credentialID), string(t.From), string(t.To), t.At}
	)
	switch t.To {
	case models.StatusIssued:
		set = `issued_at = $4, failure_code = '', failure_message = ''`
	case models.StatusFailed:
		args = append(args, t.FailureCode, t.FailureMessage)
		set = `failure_code = $5, failure_message = $6`
	case models.StatusRevoked:
		args = append(args, t.RevokeReason)
		set = `revoked_at = $4, revoke_reason = $5`
	default:
		set = `failure_code = '', failure_message = ''`
	}
	guard := ""
	if t.To == models.StatusIssued {
		guard = ` AND artifact_urls <> '{}'::jsonb`
	}
	query := `UPDATE credentials SET status = $3, updated_at = $4, ` + set +
		` WHERE id = $1 AND status = $2` + guard + ` RETURNING ` + credentialColumns
	c, err := scanCredential(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.transitionMiss(ctx, credentialID, t)
	}
	if err != nil {
		return nil, fmt.Errorf("transition credential: %w", err)
	}
	return c, nil
}

// transitionMiss explains why a gated UPDATE matched no row.
func (s *PostgresStore) transitionMiss(ctx context.Context, credentialID id.CredentialID, t models.Transition) error {
	current, err := s.FindByID(ctx, credentialID)
	if err != nil {
		return err
	}
	if current.Status == t.From && t.To == models.StatusIssued {
		return sentinel.ErrInvalidState
	}
	return sentinel.ErrConflict
}

func (s *PostgresStore) AttachArtifact(ctx context.Context, credentialID id.CredentialID, format render.Format, url string) (*models.Credential, error) {
	query := `
		UPDATE credentials
		SET artifact_urls = artifact_urls || jsonb_build_object($2::text, $3::text)
		WHERE id = $1 AND status IN ('generating', 'issued')
		RETURNING ` + credentialColumns
	c, err := scanCredential(s.db.QueryRowContext(ctx, query, uuid.UUID(credentialID), string(format), url))
	if errors.Is(err, sql.ErrNoRows) {
		if _, findErr := s.FindByID(ctx, credentialID); findErr != nil {
			return nil, findErr
		}
		return nil, sentinel.ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("attach artifact: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) RecordDownload(ctx context.Context, credentialID id.CredentialID, at time.Time) (*models.Credential, error) {
	query := `
		UPDATE credentials SET download_count = download_count + 1, last_downloaded_at = $2
		WHERE id = $1
		RETURNING ` + credentialColumns
	return s.updateOne(ctx, "record download", query, uuid.UUID(credentialID), at)
}

func (s *PostgresStore) AddShare(ctx context.Context, credentialID id.CredentialID, share models.Share) (*models.Credential, error) {
	raw, err := json.Marshal([]models.Share{share})
	if err != nil {
		return nil, fmt.Errorf("marshal share: %w", err)
	}
	query := `
		UPDATE credentials SET shares = shares || $2::jsonb
		WHERE id = $1
		RETURNING ` + credentialColumns
	return s.updateOne(ctx, "add share", query, uuid.UUID(credentialID), raw)
}

func (s *PostgresStore) updateOne(ctx context.Context, action, query string, args ...any) (*models.Credential, error) {
	c, err := scanCredential(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	return c, nil
}

func (s *PostgresStore) ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]*models.Credential, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + credentialColumns + ` FROM credentials
		WHERE status = 'generating' AND updated_at < $1
		ORDER BY updated_at LIMIT $2`
	rows, err := s.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stuck credentials: %w", err)
	}
	defer rows.Close()
	var out []*models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type row interface {
	Scan(dest ...any) error
}

func scanCredential(r row) (*models.Credential, error) {
	var (
		c                                     models.Credential
		cid, tenantID, participantID, eventID uuid.UUID
		templateID                            uuid.NullUUID
		kind, source, status                  string
		design, data, urls, shares            []byte
		issuedAt, revokedAt, lastDownloadAt   sql.NullTime
	)
	err := r.Scan(&cid, &tenantID, &participantID, &eventID, &templateID, &c.Title, &kind, &source,
		&design, &data, &c.Fingerprint, &c.VerificationURL, &c.QRCode, &urls, &status,
		&c.FailureCode, &c.FailureMessage, &issuedAt, &revokedAt, &c.RevokeReason,
		&c.DownloadCount, &lastDownloadAt, &shares, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.ID = id.CredentialID(cid)
	c.TenantID = id.TenantID(tenantID)
	c.ParticipantID = id.ParticipantID(participantID)
	c.EventID = id.EventID(eventID)
	if templateID.Valid {
		tid := id.TemplateID(templateID.UUID)
		c.TemplateID = &tid
	}
	c.Type = models.Type(kind)
	c.Source = models.Source(source)
	c.Status = models.Status(status)
	c.IssuedAt = timePtr(issuedAt)
	c.RevokedAt = timePtr(revokedAt)
	c.LastDownloadAt = timePtr(lastDownloadAt)

	if len(design) > 0 && string(design) != "null" {
		c.Design = &render.Design{}
		if err := json.Unmarshal(design, c.Design); err != nil {
			return nil, fmt.Errorf("unmarshal design: %w", err)
		}
	}
	for _, blob := range []struct {
		raw    []byte
		target any
	}{
		{data, &c.ParticipantData},
		{urls, &c.ArtifactURLs},
		{shares, &c.Shares},
	} {
		if len(blob.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(blob.raw, blob.target); err != nil {
			return nil, fmt.Errorf("unmarshal credential: %w", err)
		}
	}
	return &c, nil
}

func marshalBlobs(c *models.Credential) (design, data, urls, shares []byte, err error) {
	if design, err = json.Marshal(c.Design); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal design: %w", err)
	}
	if data, err = json.Marshal(orEmptyMap(c.ParticipantData)); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal participant data: %w", err)
	}
	artifacts := c.ArtifactURLs
	if artifacts == nil {
		artifacts = map[render.Format]string{}
	}
	if urls, err = json.Marshal(artifacts); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal artifact urls: %w", err)
	}
	list := c.Shares
	if list == nil {
		list = []models.Share{}
	}
	if shares, err = json.Marshal(list); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal shares: %w", err)
	}
	return design, data, urls, shares, nil
}

func orEmptyMap(b render.Bundle) render.Bundle {
	if b == nil {
		return render.Bundle{}
	}
	return b
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
