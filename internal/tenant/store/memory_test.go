package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"certifier/internal/tenant/models"
	id "certifier/pkg/domain"
	"certifier/pkg/platform/sentinel"
	"certifier/pkg/testutil"
)

type InMemorySuite struct {
	suite.Suite
	store  *InMemory
	tenant *models.Tenant
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.store = NewInMemory()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.tenant = &models.Tenant{
		ID:          id.TenantID(uuid.New()),
		Name:        "Acme",
		Status:      models.StatusActive,
		BillingMode: models.BillingPrepaidCredits,
		Credits:     5,
		PeriodStart: now,
		PeriodEnd:   now.AddDate(0, 1, 0),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.Require().NoError(s.store.Create(context.Background(), s.tenant))
}

func (s *InMemorySuite) TestCreateDuplicate() {
	err := s.store.Create(context.Background(), s.tenant)
	s.ErrorIs(err, sentinel.ErrAlreadyExists)
}

func (s *InMemorySuite) TestFindReturnsCopy() {
	t, err := s.store.FindByID(context.Background(), s.tenant.ID)
	s.Require().NoError(err)
	t.Credits = 1000

	again, err := s.store.FindByID(context.Background(), s.tenant.ID)
	s.Require().NoError(err)
	s.Equal(int64(5), again.Credits)
}

func (s *InMemorySuite) TestConsumeCredit_NeverGoesNegative() {
	ctx := context.Background()
	result := testutil.RunConcurrent(20, func(int) error {
		_, err := s.store.ConsumeCredit(ctx, s.tenant.ID)
		return err
	})

	s.Equal(int32(5), result.Successes)
	s.Equal(int32(15), result.Errors)

	t, err := s.store.FindByID(ctx, s.tenant.ID)
	s.Require().NoError(err)
	s.Equal(int64(0), t.Credits)
	s.Equal(int64(5), t.PeriodUsage.CredentialsIssued)
	s.Equal(int64(5), t.LifetimeUsage.CredentialsIssued)

	_, err = s.store.ConsumeCredit(ctx, s.tenant.ID)
	s.ErrorIs(err, sentinel.ErrExhausted)
}

func (s *InMemorySuite) TestIncrementUsage_RespectsLimit() {
	ctx := context.Background()
	result := testutil.RunConcurrent(10, func(int) error {
		_, err := s.store.IncrementUsage(ctx, s.tenant.ID, models.CounterEventsCreated, 3)
		return err
	})
	s.Equal(int32(3), result.Successes)

	v, err := s.store.IncrementUsage(ctx, s.tenant.ID, models.CounterEventsCreated, -1)
	s.Require().NoError(err)
	s.Equal(int64(4), v)
}

func (s *InMemorySuite) TestRollPeriod_OnlyOnce() {
	ctx := context.Background()
	_, err := s.store.IncrementUsage(ctx, s.tenant.ID, models.CounterParticipantsAdded, -1)
	s.Require().NoError(err)

	start, end := s.tenant.PeriodEnd, s.tenant.PeriodEnd.AddDate(0, 1, 0)
	rolled, err := s.store.RollPeriod(ctx, s.tenant.ID, s.tenant.PeriodEnd, start, end)
	s.Require().NoError(err)
	s.True(rolled)

	rolled, err = s.store.RollPeriod(ctx, s.tenant.ID, s.tenant.PeriodEnd, start, end)
	s.Require().NoError(err)
	s.False(rolled)

	t, _ := s.store.FindByID(ctx, s.tenant.ID)
	s.Equal(int64(0), t.PeriodUsage.ParticipantsAdded)
	s.Equal(int64(1), t.LifetimeUsage.ParticipantsAdded)
	s.Equal(end, t.PeriodEnd)
}

func (s *InMemorySuite) TestAddCreditsAndActive() {
	ctx := context.Background()
	credits, err := s.store.AddCredits(ctx, s.tenant.ID, 10)
	s.Require().NoError(err)
	s.Equal(int64(15), credits)

	active, err := s.store.TenantActive(ctx, s.tenant.ID)
	s.Require().NoError(err)
	s.True(active)

	active, err = s.store.TenantActive(ctx, id.NewTenantID())
	s.Require().NoError(err)
	s.False(active)
}

func (s *InMemorySuite) TestUnknownTenant() {
	_, err := s.store.ConsumeCredit(context.Background(), id.NewTenantID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemorySuite) TestReleaseUsage_RefundsConsumedCredit() {
	ctx := context.Background()
	_, err := s.store.ConsumeCredit(ctx, s.tenant.ID)
	s.Require().NoError(err)

	s.Require().NoError(s.store.ReleaseUsage(ctx, s.tenant.ID, models.CounterCredentialsIssued, true))

	t, err := s.store.FindByID(ctx, s.tenant.ID)
	s.Require().NoError(err)
	s.Equal(int64(5), t.Credits)
	s.Zero(t.PeriodUsage.CredentialsIssued)
	s.Zero(t.LifetimeUsage.CredentialsIssued)

	s.Require().NoError(s.store.ReleaseUsage(ctx, s.tenant.ID, models.CounterEventsCreated, false))
	t, err = s.store.FindByID(ctx, s.tenant.ID)
	s.Require().NoError(err)
	s.Zero(t.PeriodUsage.EventsCreated, "counters stop at zero")

	s.ErrorIs(s.store.ReleaseUsage(ctx, id.NewTenantID(), models.CounterEventsCreated, false), sentinel.ErrNotFound)
}
