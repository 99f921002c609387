package issuance

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks ObjectStore,Renderer

import (
	"context"

	"certifier/internal/activity"
	catalogmodels "certifier/internal/catalog/models"
	"certifier/internal/fingerprint"
	"certifier/internal/objectstore"
	"certifier/internal/quota"
	"certifier/internal/render"
	"certifier/internal/webhook"
	id "certifier/pkg/domain"
)

// Catalog resolves the references a credential is issued against. Lookups are
// tenant scoped and report another tenant's record as NotFound.
type Catalog interface {
	GetEvent(ctx context.Context, tenantID id.TenantID, eventID id.EventID) (*catalogmodels.Event, error)
	GetParticipant(ctx context.Context, tenantID id.TenantID, participantID id.ParticipantID) (*catalogmodels.Participant, error)
	GetTemplate(ctx context.Context, tenantID id.TenantID, templateID id.TemplateID) (*catalogmodels.Template, error)
}

// Admitter charges issuances against the tenant and gives a charge back when
// the issuance left nothing behind.
type Admitter interface {
	Admit(ctx context.Context, tenantID id.TenantID, kind quota.Kind) (quota.Admission, error)
	Release(ctx context.Context, tenantID id.TenantID, kind quota.Kind, adm quota.Admission) error
}

type Fingerprinter interface {
	Issue(in fingerprint.Input) (fp, verificationURL string, err error)
}

type QREncoder interface {
	DataURI(content string) (string, error)
}

type Renderer interface {
	Render(ctx context.Context, req render.Request) (*render.Output, error)
}

type ObjectStore interface {
	Put(ctx context.Context, data []byte, kind objectstore.Kind, folder, publicID string, overwrite bool) (string, error)
}

// ActivityRecorder appends to the activity log without blocking.
type ActivityRecorder interface {
	Record(ctx context.Context, tenantID id.TenantID, kind activity.Kind, credentialID id.CredentialID, actor string, details map[string]any)
}

// WebhookPublisher fans an event out to the tenant's subscriptions
// asynchronously.
type WebhookPublisher interface {
	Publish(ctx context.Context, tenantID id.TenantID, kind webhook.EventKind, data any)
}
