package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certifier/internal/webhook"
	id "certifier/pkg/domain"
	"certifier/pkg/platform/sentinel"
)

type InMemorySuite struct {
	suite.Suite
	store  *InMemory
	tenant id.TenantID
	now    time.Time
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.store = NewInMemory()
	s.tenant = id.NewTenantID()
	s.now = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
}

func (s *InMemorySuite) subscription(events ...webhook.EventKind) *webhook.Subscription {
	sub := &webhook.Subscription{
		ID: id.NewSubscriptionID(), TenantID: s.tenant, URL: "https://example.test/h",
		Events: events, SealedSecret: "sealed", Enabled: true, CreatedAt: s.now, UpdatedAt: s.now,
	}
	s.Require().NoError(s.store.CreateSubscription(context.Background(), sub))
	return sub
}

func (s *InMemorySuite) delivery(subID id.SubscriptionID, status webhook.DeliveryStatus, next *time.Time, created time.Time) *webhook.Delivery {
	d := &webhook.Delivery{
		ID: id.NewDeliveryID(), SubscriptionID: subID, TenantID: s.tenant, Event: webhook.EventCredentialIssued,
		Payload: []byte(`{}`), Status: status, NextRetryAt: next, CreatedAt: created, UpdatedAt: created,
	}
	s.Require().NoError(s.store.CreateDelivery(context.Background(), d))
	return d
}

func (s *InMemorySuite) TestListActiveFiltersByKindAndEnabled() {
	ctx := context.Background()
	issued := s.subscription(webhook.EventCredentialIssued)
	s.subscription(webhook.EventCredentialRevoked)
	disabled := s.subscription(webhook.EventCredentialIssued)
	_, err := s.store.SetEnabled(ctx, disabled.ID, false, s.now)
	s.Require().NoError(err)

	active, err := s.store.ListActive(ctx, s.tenant, webhook.EventCredentialIssued)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal(issued.ID, active[0].ID)

	all, err := s.store.ListSubscriptions(ctx, s.tenant)
	s.Require().NoError(err)
	s.Len(all, 3)
}

func (s *InMemorySuite) TestRecordOutcome() {
	ctx := context.Background()
	sub := s.subscription(webhook.EventCredentialIssued)
	s.Require().NoError(s.store.RecordOutcome(ctx, sub.ID, true, "", s.now))
	s.Require().NoError(s.store.RecordOutcome(ctx, sub.ID, false, "timeout", s.now))

	got, err := s.store.FindSubscription(ctx, sub.ID)
	s.Require().NoError(err)
	s.EqualValues(1, got.SuccessCount)
	s.EqualValues(1, got.FailureCount)
	s.Equal("timeout", got.LastError)

	s.ErrorIs(s.store.RecordOutcome(ctx, id.NewSubscriptionID(), true, "", s.now), sentinel.ErrNotFound)
}

func (s *InMemorySuite) TestClaimDueLeasesRows() {
	ctx := context.Background()
	sub := s.subscription(webhook.EventCredentialIssued)
	due := s.now.Add(-time.Second)
	later := s.now.Add(time.Hour)
	claimed := s.delivery(sub.ID, webhook.DeliveryRetry, &due, s.now)
	s.delivery(sub.ID, webhook.DeliveryRetry, &later, s.now)
	s.delivery(sub.ID, webhook.DeliverySuccess, nil, s.now)
	s.delivery(sub.ID, webhook.DeliveryFailed, &due, s.now)

	lease := s.now.Add(30 * time.Second)
	got, err := s.store.ClaimDue(ctx, s.now, lease, 10)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(claimed.ID, got[0].ID)
	s.Equal(lease, *got[0].NextRetryAt)

	again, err := s.store.ClaimDue(ctx, s.now, lease, 10)
	s.Require().NoError(err)
	s.Empty(again)
}

func (s *InMemorySuite) TestListDeliveriesNewestFirstAndDeleteCascades() {
	ctx := context.Background()
	sub := s.subscription(webhook.EventCredentialIssued)
	first := s.delivery(sub.ID, webhook.DeliverySuccess, nil, s.now)
	second := s.delivery(sub.ID, webhook.DeliverySuccess, nil, s.now.Add(time.Minute))

	got, err := s.store.ListDeliveries(ctx, sub.ID, 1)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(second.ID, got[0].ID)

	s.Require().NoError(s.store.DeleteSubscription(ctx, sub.ID))
	s.ErrorIs(s.store.UpdateDelivery(ctx, first), sentinel.ErrNotFound)
	s.ErrorIs(s.store.DeleteSubscription(ctx, sub.ID), sentinel.ErrNotFound)
}
