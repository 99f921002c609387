package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certifier/internal/catalog/store"
	"certifier/internal/quota"
	"certifier/internal/render"
	tenantmodels "certifier/internal/tenant/models"
	tenantstore "certifier/internal/tenant/store"
	id "certifier/pkg/domain"
	dErrors "certifier/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	tenants *tenantstore.InMemory
	tenant  id.TenantID
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.tenants = tenantstore.NewInMemory()
	s.tenant = id.NewTenantID()
	s.Require().NoError(s.tenants.Create(s.ctx, &tenantmodels.Tenant{
		ID:                 s.tenant,
		Name:               "Acme",
		Status:             tenantmodels.StatusActive,
		BillingMode:        tenantmodels.BillingSubscription,
		PlanID:             "free",
		SubscriptionStatus: tenantmodels.SubscriptionActive,
		PeriodEnd:          time.Now().Add(24 * time.Hour),
	}))
	catalog := store.NewInMemory()
	s.service = New(catalog, catalog, catalog, quota.NewGate(s.tenants, quota.DefaultCatalog()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func (s *ServiceSuite) TestCreateEvent_CountsAgainstPlan() {
	for i := 0; i < 3; i++ {
		_, err := s.service.CreateEvent(s.ctx, s.tenant, CreateEventCommand{Title: "Workshop"})
		s.Require().NoError(err)
	}
	_, err := s.service.CreateEvent(s.ctx, s.tenant, CreateEventCommand{Title: "One too many"})
	s.True(dErrors.HasCode(err, dErrors.CodeLimitReached))

	t, err := s.tenants.FindByID(s.ctx, s.tenant)
	s.Require().NoError(err)
	s.Equal(int64(3), t.PeriodUsage.EventsCreated)
}

func (s *ServiceSuite) TestCreateEvent_InvalidInputIsNotCharged() {
	start := time.Now()
	end := start.Add(-time.Hour)
	_, err := s.service.CreateEvent(s.ctx, s.tenant, CreateEventCommand{Title: "Backwards", StartDate: &start, EndDate: &end})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	t, err := s.tenants.FindByID(s.ctx, s.tenant)
	s.Require().NoError(err)
	s.Zero(t.PeriodUsage.EventsCreated)
}

func (s *ServiceSuite) TestCreateEvent_DuplicateCode() {
	_, err := s.service.CreateEvent(s.ctx, s.tenant, CreateEventCommand{Title: "A", Code: "go25"})
	s.Require().NoError(err)
	_, err = s.service.CreateEvent(s.ctx, s.tenant, CreateEventCommand{Title: "B", Code: "GO25"})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestGetEvent_OtherTenantIsNotFound() {
	event, err := s.service.CreateEvent(s.ctx, s.tenant, CreateEventCommand{Title: "Private"})
	s.Require().NoError(err)

	_, err = s.service.GetEvent(s.ctx, id.NewTenantID(), event.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestEnrollParticipant() {
	event, err := s.service.CreateEvent(s.ctx, s.tenant, CreateEventCommand{Title: "Summit", Capacity: 1})
	s.Require().NoError(err)
	ada, err := s.service.CreateParticipant(s.ctx, s.tenant, CreateParticipantCommand{Name: "Ada", Email: "Ada@Example.test"})
	s.Require().NoError(err)
	s.Equal("ada@example.test", ada.Email)
	bob, err := s.service.CreateParticipant(s.ctx, s.tenant, CreateParticipantCommand{Name: "Bob", Email: "bob@example.test"})
	s.Require().NoError(err)

	updated, err := s.service.EnrollParticipant(s.ctx, s.tenant, event.ID, ada.ID)
	s.Require().NoError(err)
	s.Equal([]id.ParticipantID{ada.ID}, updated.ParticipantIDs)

	_, err = s.service.EnrollParticipant(s.ctx, s.tenant, event.ID, ada.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = s.service.EnrollParticipant(s.ctx, s.tenant, event.ID, bob.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.EnrollParticipant(s.ctx, s.tenant, event.ID, id.NewParticipantID())
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidReference))

	t, err := s.tenants.FindByID(s.ctx, s.tenant)
	s.Require().NoError(err)
	s.Equal(int64(1), t.PeriodUsage.ParticipantsAdded)
}

func (s *ServiceSuite) TestCreateParticipant_DuplicateEmail() {
	_, err := s.service.CreateParticipant(s.ctx, s.tenant, CreateParticipantCommand{Name: "Ada", Email: "ada@example.test"})
	s.Require().NoError(err)
	_, err = s.service.CreateParticipant(s.ctx, s.tenant, CreateParticipantCommand{Name: "Ada L", Email: "ada@example.test"})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestTemplateLifecycle() {
	tpl, err := s.service.CreateTemplate(s.ctx, s.tenant, CreateTemplateCommand{
		Name:   "Classic",
		Type:   "certificate",
		Design: render.Design{Width: 1200, Height: 800},
	})
	s.Require().NoError(err)
	s.Equal(1, tpl.Version)

	updated, err := s.service.UpdateTemplate(s.ctx, s.tenant, tpl.ID, UpdateTemplateCommand{
		Design: render.Design{Width: 800, Height: 600},
	})
	s.Require().NoError(err)
	s.Equal(2, updated.Version)
	s.Equal("Classic", updated.Name)
	s.Require().Len(updated.History, 1)
	s.Equal(1200, updated.History[0].Design.Width)

	_, err = s.service.GetTemplate(s.ctx, id.NewTenantID(), tpl.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestCreateTemplate_Rejects() {
	_, err := s.service.CreateTemplate(s.ctx, s.tenant, CreateTemplateCommand{Name: "X", Type: "trophy"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.CreateTemplate(s.ctx, s.tenant, CreateTemplateCommand{
		Name:   "X",
		Type:   "badge",
		Design: render.Design{Background: render.Background{Type: "plaid"}},
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
