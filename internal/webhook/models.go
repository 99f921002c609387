package webhook

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"time"

	id "certifier/pkg/domain"
)

// EventKind names a lifecycle notification.
type EventKind string

const (
	EventCredentialIssued     EventKind = "credential.issued"
	EventCredentialVerified   EventKind = "credential.verified"
	EventCredentialRevoked    EventKind = "credential.revoked"
	EventCredentialDownloaded EventKind = "credential.downloaded"
	EventCredentialDelivered  EventKind = "credential.delivered"
	EventCredentialFailed     EventKind = "credential.failed"
)

// AllEventKinds lists every kind a subscription may select.
var AllEventKinds = []EventKind{
	EventCredentialIssued,
	EventCredentialVerified,
	EventCredentialRevoked,
	EventCredentialDownloaded,
	EventCredentialDelivered,
	EventCredentialFailed,
}

func ParseEventKind(s string) (EventKind, bool) {
	k := EventKind(strings.ToLower(strings.TrimSpace(s)))
	return k, slices.Contains(AllEventKinds, k)
}

// Subscription is a tenant-registered endpoint. SealedSecret holds the signing
// secret encrypted at rest and is never serialized.
type Subscription struct {
	ID           id.SubscriptionID
	TenantID     id.TenantID
	URL          string
	Events       []EventKind
	SealedSecret string
	Enabled      bool
	SuccessCount int64
	FailureCount int64
	LastError    string
	LastErrorAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Accepts reports whether the subscription wants events of kind k.
func (s *Subscription) Accepts(k EventKind) bool {
	return s.Enabled && slices.Contains(s.Events, k)
}

func (s *Subscription) Clone() *Subscription {
	cp := *s
	cp.Events = slices.Clone(s.Events)
	if s.LastErrorAt != nil {
		t := *s.LastErrorAt
		cp.LastErrorAt = &t
	}
	return &cp
}

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliveryRetry   DeliveryStatus = "retry"
)

const responsePreviewLimit = 512

// Delivery is one event sent to one subscription, updated after each attempt.
// Payload is the exact body that was signed.
type Delivery struct {
	ID              id.DeliveryID
	SubscriptionID  id.SubscriptionID
	TenantID        id.TenantID
	Event           EventKind
	Payload         []byte
	URL             string
	Status          DeliveryStatus
	HTTPStatus      int
	ResponsePreview string
	ElapsedMS       int64
	Attempts        int
	NextRetryAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (d *Delivery) Clone() *Delivery {
	cp := *d
	cp.Payload = slices.Clone(d.Payload)
	if d.NextRetryAt != nil {
		t := *d.NextRetryAt
		cp.NextRetryAt = &t
	}
	return &cp
}

// Payload is the signed request body.
type Payload struct {
	Event     EventKind       `json:"event"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Store persists subscriptions and the delivery log.
type Store interface {
	CreateSubscription(ctx context.Context, sub *Subscription) error
	FindSubscription(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID id.TenantID) ([]*Subscription, error)
	// ListActive returns enabled subscriptions of tenantID that select kind.
	ListActive(ctx context.Context, tenantID id.TenantID, kind EventKind) ([]*Subscription, error)
	DeleteSubscription(ctx context.Context, subID id.SubscriptionID) error
	SetEnabled(ctx context.Context, subID id.SubscriptionID, enabled bool, at time.Time) (*Subscription, error)
	// RecordOutcome bumps the success or failure counter. A non-empty lastError
	// is stored with at as its timestamp.
	RecordOutcome(ctx context.Context, subID id.SubscriptionID, success bool, lastError string, at time.Time) error

	CreateDelivery(ctx context.Context, d *Delivery) error
	UpdateDelivery(ctx context.Context, d *Delivery) error
	ListDeliveries(ctx context.Context, subID id.SubscriptionID, limit int) ([]*Delivery, error)
	// ClaimDue returns pending or retry deliveries whose NextRetryAt is at or
	// before now and pushes their NextRetryAt to leaseUntil so a concurrent
	// claim does not return them again.
	ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*Delivery, error)
	// ExtendLease pushes a pending or retry delivery's NextRetryAt to
	// leaseUntil when a worker starts on it.
	ExtendLease(ctx context.Context, deliveryID id.DeliveryID, leaseUntil time.Time) error
	DeleteDeliveriesBefore(ctx context.Context, cutoff time.Time) (int, error)
}
