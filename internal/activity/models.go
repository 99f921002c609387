// Package activity is the append-only audit trail of credential lifecycle
// events. Recording is asynchronous and never fails the caller.
package activity

import (
	"context"
	"time"

	id "certifier/pkg/domain"
)

// Kind is the activity entry type.
type Kind string

const (
	KindCredentialIssued     Kind = "credential_issued"
	KindCredentialVerified   Kind = "credential_verified"
	KindCredentialDownloaded Kind = "credential_downloaded"
	KindCredentialDelivered  Kind = "credential_delivered"
	KindCredentialRevoked    Kind = "credential_revoked"
)

func ParseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case KindCredentialIssued, KindCredentialVerified, KindCredentialDownloaded,
		KindCredentialDelivered, KindCredentialRevoked:
		return k, true
	}
	return "", false
}

// ActorAnonymous is recorded when the caller is not authenticated and no
// client IP is known.
const ActorAnonymous = "anonymous"

// Entry is one activity log record. Details is a free-form bag.
type Entry struct {
	ID           id.ActivityID   `json:"id"`
	TenantID     id.TenantID     `json:"tenantId"`
	Kind         Kind            `json:"kind"`
	Actor        string          `json:"actor"`
	CredentialID id.CredentialID `json:"credentialId"`
	Details      map[string]any  `json:"details,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Filter narrows a query. Zero values match everything.
type Filter struct {
	Kind         Kind
	CredentialID id.CredentialID
}

func (f Filter) Matches(e *Entry) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if !f.CredentialID.IsNil() && e.CredentialID != f.CredentialID {
		return false
	}
	return true
}

// Store persists entries. Query returns newest first with the total count.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	Query(ctx context.Context, tenantID id.TenantID, filter Filter, limit, offset int) ([]*Entry, int, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Sink receives a copy of every persisted entry, e.g. a Kafka topic.
type Sink interface {
	Publish(ctx context.Context, entry *Entry) error
}
