// Package service manages the events, participants and design templates that
// credentials are issued against.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"certifier/internal/catalog/models"
	"certifier/internal/catalog/store"
	credmodels "certifier/internal/credential/models"
	"certifier/internal/quota"
	"certifier/internal/render"
	id "certifier/pkg/domain"
	dErrors "certifier/pkg/domain-errors"
	"certifier/pkg/platform/sentinel"
)

// Admitter is the quota gate consulted before billable catalog changes.
type Admitter interface {
	Admit(ctx context.Context, tenantID id.TenantID, kind quota.Kind) (quota.Admission, error)
}

type Service struct {
	events       store.EventStore
	participants store.ParticipantStore
	templates    store.TemplateStore
	quota        Admitter
	logger       *slog.Logger
	now          func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(events store.EventStore, participants store.ParticipantStore, templates store.TemplateStore, gate Admitter, opts ...Option) *Service {
	s := &Service{
		events:       events,
		participants: participants,
		templates:    templates,
		quota:        gate,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateEventCommand struct {
	Title       string
	Description string
	StartDate   *time.Time
	EndDate     *time.Time
	Capacity    int
	Category    string
	Code        string
}

// CreateEvent admits an events-created unit and stores the event.
func (s *Service) CreateEvent(ctx context.Context, tenantID id.TenantID, cmd CreateEventCommand) (*models.Event, error) {
	event, err := models.NewEvent(tenantID, strings.TrimSpace(cmd.Title), cmd.StartDate, cmd.EndDate, s.now())
	if err != nil {
		return nil, err
	}
	if cmd.Capacity < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "capacity must not be negative")
	}
	event.Description = cmd.Description
	event.Capacity = cmd.Capacity
	event.Category = cmd.Category
	event.Code = strings.ToUpper(strings.TrimSpace(cmd.Code))

	if err := s.admit(ctx, tenantID, quota.KindEventCreate); err != nil {
		return nil, err
	}
	if err := s.events.CreateEvent(ctx, event); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			return nil, dErrors.New(dErrors.CodeConflict, "event code already in use")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnknown, "failed to create event")
	}
	s.logger.InfoContext(ctx, "event created",
		"tenant_id", tenantID.String(),
		"event_id", event.ID.String(),
	)
	return event, nil
}

// GetEvent returns the event when it belongs to tenantID.
func (s *Service) GetEvent(ctx context.Context, tenantID id.TenantID, eventID id.EventID) (*models.Event, error) {
	event, err := s.events.FindEvent(ctx, eventID)
	if err != nil {
		return nil, notFound(err, "event not found")
	}
	if event.TenantID != tenantID {
		return nil, dErrors.New(dErrors.CodeNotFound, "event not found")
	}
	return event, nil
}

type CreateParticipantCommand struct {
	Name   string
	Email  string
	Skills []string
}

func (s *Service) CreateParticipant(ctx context.Context, tenantID id.TenantID, cmd CreateParticipantCommand) (*models.Participant, error) {
	name := strings.TrimSpace(cmd.Name)
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if name == "" || email == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "name and email are required")
	}
	now := s.now()
	p := &models.Participant{
		ID:        id.NewParticipantID(),
		TenantID:  tenantID,
		Name:      name,
		Email:     email,
		Skills:    cmd.Skills,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.participants.CreateParticipant(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			return nil, dErrors.New(dErrors.CodeConflict, "a participant with this email already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnknown, "failed to create participant")
	}
	return p, nil
}

// GetParticipant returns the participant when it belongs to tenantID.
func (s *Service) GetParticipant(ctx context.Context, tenantID id.TenantID, participantID id.ParticipantID) (*models.Participant, error) {
	p, err := s.participants.FindParticipant(ctx, participantID)
	if err != nil {
		return nil, notFound(err, "participant not found")
	}
	if p.TenantID != tenantID {
		return nil, dErrors.New(dErrors.CodeNotFound, "participant not found")
	}
	return p, nil
}

// EnrollParticipant adds a registered participant to an event. The
// participants-added unit is only admitted for a new enrollment.
func (s *Service) EnrollParticipant(ctx context.Context, tenantID id.TenantID, eventID id.EventID, participantID id.ParticipantID) (*models.Event, error) {
	event, err := s.GetEvent(ctx, tenantID, eventID)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetParticipant(ctx, tenantID, participantID); err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeInvalidReference, "participant is not registered")
		}
		return nil, err
	}
	if event.HasParticipant(participantID) {
		return nil, dErrors.New(dErrors.CodeConflict, "participant already enrolled")
	}
	if event.IsFull() {
		return nil, dErrors.New(dErrors.CodeValidation, "event is at capacity")
	}
	if err := s.admit(ctx, tenantID, quota.KindParticipantAdd); err != nil {
		return nil, err
	}
	if err := s.events.AddParticipant(ctx, eventID, participantID); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			return nil, dErrors.New(dErrors.CodeConflict, "participant already enrolled")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnknown, "failed to enroll participant")
	}
	event.ParticipantIDs = append(event.ParticipantIDs, participantID)
	return event, nil
}

type CreateTemplateCommand struct {
	Name   string
	Type   string
	Design render.Design
}

func (s *Service) CreateTemplate(ctx context.Context, tenantID id.TenantID, cmd CreateTemplateCommand) (*models.Template, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "template name is required")
	}
	kind, ok := credmodels.ParseType(cmd.Type)
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "type must be one of certificate, badge, diploma, award")
	}
	if err := render.Validate(&cmd.Design); err != nil {
		return nil, render.ToDomain(err)
	}
	now := s.now()
	tpl := &models.Template{
		ID:        id.NewTemplateID(),
		TenantID:  tenantID,
		Name:      name,
		Type:      string(kind),
		Design:    cmd.Design,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.templates.CreateTemplate(ctx, tpl); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnknown, "failed to create template")
	}
	return tpl, nil
}

type UpdateTemplateCommand struct {
	Name   string
	Design render.Design
}

// UpdateTemplate stores a new version and archives the previous design.
func (s *Service) UpdateTemplate(ctx context.Context, tenantID id.TenantID, templateID id.TemplateID, cmd UpdateTemplateCommand) (*models.Template, error) {
	if err := render.Validate(&cmd.Design); err != nil {
		return nil, render.ToDomain(err)
	}
	tpl, err := s.GetTemplate(ctx, tenantID, templateID)
	if err != nil {
		return nil, err
	}
	expected := tpl.Version
	if name := strings.TrimSpace(cmd.Name); name != "" {
		tpl.Name = name
	}
	tpl.Revise(cmd.Design, s.now())

	if err := s.templates.UpdateTemplate(ctx, tpl, expected); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "template was modified concurrently")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnknown, "failed to update template")
	}
	s.logger.InfoContext(ctx, "template revised",
		"tenant_id", tenantID.String(),
		"template_id", templateID.String(),
		"version", tpl.Version,
	)
	return tpl, nil
}

// GetTemplate returns the template when it belongs to tenantID.
func (s *Service) GetTemplate(ctx context.Context, tenantID id.TenantID, templateID id.TemplateID) (*models.Template, error) {
	tpl, err := s.templates.FindTemplate(ctx, templateID)
	if err != nil {
		return nil, notFound(err, "template not found")
	}
	if tpl.TenantID != tenantID {
		return nil, dErrors.New(dErrors.CodeNotFound, "template not found")
	}
	return tpl, nil
}

func (s *Service) admit(ctx context.Context, tenantID id.TenantID, kind quota.Kind) error {
	admission, err := s.quota.Admit(ctx, tenantID, kind)
	if err != nil {
		return err
	}
	return admission.Err()
}

func notFound(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeUnknown, msg)
}
