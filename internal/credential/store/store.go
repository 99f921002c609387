// Package store is the authoritative persistence of credentials. State changes
// are gated on the current state so concurrent transitions on the same
// credential serialize.
package store

import (
	"context"
	"time"

	"certifier/internal/credential/models"
	"certifier/internal/render"
	id "certifier/pkg/domain"
)

type Store interface {
	// Create persists a draft. It returns sentinel.ErrAlreadyExists when the
	// fingerprint is taken.
	Create(ctx context.Context, c *models.Credential) error
	FindByID(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error)
	FindByFingerprint(ctx context.Context, fingerprint string) (*models.Credential, error)
	// ListByTenant returns a newest-first page and the total matching count.
	ListByTenant(ctx context.Context, tenantID id.TenantID, filter models.Filter, page models.Page) ([]*models.Credential, int, error)
	// Transition applies t atomically. It returns sentinel.ErrInvalidState for
	// an illegal transition and sentinel.ErrConflict when the current state
	// is not t.From.
	Transition(ctx context.Context, credentialID id.CredentialID, t models.Transition) (*models.Credential, error)
	// AttachArtifact records the URL of a rendered format. Only allowed while
	// generating or issued.
	AttachArtifact(ctx context.Context, credentialID id.CredentialID, format render.Format, url string) (*models.Credential, error)
	RecordDownload(ctx context.Context, credentialID id.CredentialID, at time.Time) (*models.Credential, error)
	AddShare(ctx context.Context, credentialID id.CredentialID, share models.Share) (*models.Credential, error)
	// ListStuck returns credentials still generating that were last updated
	// before cutoff.
	ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]*models.Credential, error)
}
