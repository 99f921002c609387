package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"certifier/internal/catalog/models"
	"certifier/internal/render"
	id "certifier/pkg/domain"
	"certifier/pkg/platform/sentinel"
)

type InMemorySuite struct {
	suite.Suite
	store  *InMemory
	ctx    context.Context
	tenant id.TenantID
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.tenant = id.NewTenantID()
}

func (s *InMemorySuite) newEvent(code string) *models.Event {
	e, err := models.NewEvent(s.tenant, "Go Summit", nil, nil, time.Now())
	s.Require().NoError(err)
	e.Code = code
	return e
}

func (s *InMemorySuite) TestEventCodeUniquePerTenant() {
	s.Require().NoError(s.store.CreateEvent(s.ctx, s.newEvent("GS25")))
	err := s.store.CreateEvent(s.ctx, s.newEvent("GS25"))
	s.ErrorIs(err, sentinel.ErrAlreadyExists)

	other := s.newEvent("GS25")
	other.TenantID = id.NewTenantID()
	s.NoError(s.store.CreateEvent(s.ctx, other))

	// events without a code never collide
	s.NoError(s.store.CreateEvent(s.ctx, s.newEvent("")))
	s.NoError(s.store.CreateEvent(s.ctx, s.newEvent("")))
}

func (s *InMemorySuite) TestAddParticipantKeepsOrder() {
	e := s.newEvent("")
	s.Require().NoError(s.store.CreateEvent(s.ctx, e))
	first, second := id.NewParticipantID(), id.NewParticipantID()

	s.Require().NoError(s.store.AddParticipant(s.ctx, e.ID, first))
	s.Require().NoError(s.store.AddParticipant(s.ctx, e.ID, second))
	s.ErrorIs(s.store.AddParticipant(s.ctx, e.ID, first), sentinel.ErrAlreadyExists)
	s.ErrorIs(s.store.AddParticipant(s.ctx, id.NewEventID(), first), sentinel.ErrNotFound)

	got, err := s.store.FindEvent(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Equal([]id.ParticipantID{first, second}, got.ParticipantIDs)
}

func (s *InMemorySuite) TestParticipantEmailUniqueAcrossTenants() {
	p := &models.Participant{ID: id.NewParticipantID(), TenantID: s.tenant, Name: "Ada", Email: "ada@example.test"}
	s.Require().NoError(s.store.CreateParticipant(s.ctx, p))

	dup := &models.Participant{ID: id.NewParticipantID(), TenantID: id.NewTenantID(), Name: "Ada", Email: "ADA@example.test"}
	s.ErrorIs(s.store.CreateParticipant(s.ctx, dup), sentinel.ErrAlreadyExists)

	_, err := s.store.FindParticipant(s.ctx, id.NewParticipantID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemorySuite) TestUpdateTemplateChecksVersion() {
	tpl := &models.Template{ID: id.NewTemplateID(), TenantID: s.tenant, Name: "Classic", Version: 1}
	s.Require().NoError(s.store.CreateTemplate(s.ctx, tpl))

	tpl.Revise(render.Design{Width: 900, Height: 600}, time.Now())
	s.Require().NoError(s.store.UpdateTemplate(s.ctx, tpl, 1))

	stale := *tpl
	stale.Revise(render.Design{Width: 100, Height: 100}, time.Now())
	s.ErrorIs(s.store.UpdateTemplate(s.ctx, &stale, 1), sentinel.ErrConflict)

	got, err := s.store.FindTemplate(s.ctx, tpl.ID)
	s.Require().NoError(err)
	s.Equal(2, got.Version)
	s.Equal(900, got.Design.Width)
	s.Len(got.History, 1)
}

func TestInMemory_ReturnsCopies(t *testing.T) {
	store := NewInMemory()
	e, err := models.NewEvent(id.NewTenantID(), "Copy", nil, nil, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.CreateEvent(context.Background(), e))

	got, err := store.FindEvent(context.Background(), e.ID)
	require.NoError(t, err)
	got.Title = "mutated"
	got.ParticipantIDs = append(got.ParticipantIDs, id.NewParticipantID())

	again, err := store.FindEvent(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Copy", again.Title)
	assert.Empty(t, again.ParticipantIDs)
}
