package webhook

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	id "certifier/pkg/domain"
	dErrors "certifier/pkg/domain-errors"
	"certifier/pkg/platform/sentinel"
	"certifier/pkg/validation"
)

const (
	// MaxSubscriptionsPerTenant bounds registered endpoints per tenant.
	MaxSubscriptionsPerTenant = 10

	defaultDeliveryListLimit = 50
	maxDeliveryListLimit     = 200
)

// Sealer encrypts signing secrets at rest; *secrets.Sealer satisfies it.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// Service manages a tenant's subscriptions and exposes the delivery log.
type Service struct {
	store    Store
	sealer   Sealer
	generate func() (string, error)
	now      func() time.Time
	logger   *slog.Logger
}

func NewService(store Store, sealer Sealer, generate func() (string, error), logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, sealer: sealer, generate: generate, now: time.Now, logger: logger}
}

type RegisterCommand struct {
	URL    string
	Events []EventKind
}

// Register creates an enabled subscription and returns its signing secret.
// The secret is only ever returned here.
func (s *Service) Register(ctx context.Context, tenantID id.TenantID, cmd RegisterCommand) (*Subscription, string, error) {
	if !validation.IsWebhookURL(cmd.URL) {
		return nil, "", dErrors.New(dErrors.CodeValidation, "url must be an absolute http(s) url")
	}
	events := slices.Clone(cmd.Events)
	if len(events) == 0 {
		events = slices.Clone(AllEventKinds)
	}
	for _, e := range events {
		if _, ok := ParseEventKind(string(e)); !ok {
			return nil, "", dErrors.New(dErrors.CodeValidation, "unknown event kind: "+string(e))
		}
	}
	slices.Sort(events)
	events = slices.Compact(events)

	existing, err := s.store.ListSubscriptions(ctx, tenantID)
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeUnknown, "failed to list webhooks")
	}
	if len(existing) >= MaxSubscriptionsPerTenant {
		return nil, "", dErrors.New(dErrors.CodeValidation, "webhook limit reached for tenant")
	}

	secret, err := s.generate()
	if err != nil {
		return nil, "", err
	}
	sealed, err := s.sealer.Seal(secret)
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeUnknown, "failed to seal webhook secret")
	}

	now := s.now()
	sub := &Subscription{
		ID:           id.NewSubscriptionID(),
		TenantID:     tenantID,
		URL:          cmd.URL,
		Events:       events,
		SealedSecret: sealed,
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeUnknown, "failed to save webhook")
	}
	s.logger.InfoContext(ctx, "webhook registered",
		"tenant_id", tenantID.String(),
		"subscription_id", sub.ID.String(),
		"events", len(events),
	)
	return sub, secret, nil
}

func (s *Service) List(ctx context.Context, tenantID id.TenantID) ([]*Subscription, error) {
	subs, err := s.store.ListSubscriptions(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnknown, "failed to list webhooks")
	}
	return subs, nil
}

// owned loads a subscription and hides other tenants' records behind NotFound.
func (s *Service) owned(ctx context.Context, tenantID id.TenantID, subID id.SubscriptionID) (*Subscription, error) {
	sub, err := s.store.FindSubscription(ctx, subID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "webhook not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnknown, "failed to load webhook")
	}
	if sub.TenantID != tenantID {
		return nil, dErrors.New(dErrors.CodeNotFound, "webhook not found")
	}
	return sub, nil
}

func (s *Service) Delete(ctx context.Context, tenantID id.TenantID, subID id.SubscriptionID) error {
	if _, err := s.owned(ctx, tenantID, subID); err != nil {
		return err
	}
	if err := s.store.DeleteSubscription(ctx, subID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "webhook not found")
		}
		return dErrors.Wrap(err, dErrors.CodeUnknown, "failed to delete webhook")
	}
	return nil
}

func (s *Service) SetEnabled(ctx context.Context, tenantID id.TenantID, subID id.SubscriptionID, enabled bool) (*Subscription, error) {
	if _, err := s.owned(ctx, tenantID, subID); err != nil {
		return nil, err
	}
	sub, err := s.store.SetEnabled(ctx, subID, enabled, s.now())
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "webhook not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnknown, "failed to update webhook")
	}
	return sub, nil
}

// Deliveries returns the newest deliveries of a subscription.
func (s *Service) Deliveries(ctx context.Context, tenantID id.TenantID, subID id.SubscriptionID, limit int) ([]*Delivery, error) {
	if _, err := s.owned(ctx, tenantID, subID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultDeliveryListLimit
	}
	deliveries, err := s.store.ListDeliveries(ctx, subID, min(limit, maxDeliveryListLimit))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnknown, "failed to list deliveries")
	}
	return deliveries, nil
}
