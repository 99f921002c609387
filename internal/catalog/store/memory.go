package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"certifier/internal/catalog/models"
	id "certifier/pkg/domain"
	"certifier/pkg/platform/sentinel"
)

type eventCodeKey struct {
	tenant id.TenantID
	code   string
}

// InMemory implements EventStore, ParticipantStore and TemplateStore.
type InMemory struct {
	mu           sync.RWMutex
	events       map[id.EventID]*models.Event
	eventCodes   map[eventCodeKey]id.EventID
	participants map[id.ParticipantID]*models.Participant
	emails       map[string]id.ParticipantID
	templates    map[id.TemplateID]*models.Template
}

func NewInMemory() *InMemory {
	return &InMemory{
		events:       make(map[id.EventID]*models.Event),
		eventCodes:   make(map[eventCodeKey]id.EventID),
		participants: make(map[id.ParticipantID]*models.Participant),
		emails:       make(map[string]id.ParticipantID),
		templates:    make(map[id.TemplateID]*models.Template),
	}
}

func (s *InMemory) CreateEvent(_ context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[event.ID]; ok {
		return sentinel.ErrAlreadyExists
	}
	if event.Code != "" {
		key := eventCodeKey{tenant: event.TenantID, code: event.Code}
		if _, taken := s.eventCodes[key]; taken {
			return sentinel.ErrAlreadyExists
		}
		s.eventCodes[key] = event.ID
	}
	s.events[event.ID] = copyEvent(event)
	return nil
}

func (s *InMemory) FindEvent(_ context.Context, eventID id.EventID) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[eventID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyEvent(e), nil
}

func (s *InMemory) AddParticipant(_ context.Context, eventID id.EventID, participantID id.ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if e.HasParticipant(participantID) {
		return sentinel.ErrAlreadyExists
	}
	e.ParticipantIDs = append(e.ParticipantIDs, participantID)
	return nil
}

func (s *InMemory) CreateParticipant(_ context.Context, p *models.Participant) error {
	email := strings.ToLower(p.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.emails[email]; ok {
		return sentinel.ErrAlreadyExists
	}
	if _, ok := s.participants[p.ID]; ok {
		return sentinel.ErrAlreadyExists
	}
	cp := *p
	cp.Skills = slices.Clone(p.Skills)
	s.participants[p.ID] = &cp
	s.emails[email] = p.ID
	return nil
}

func (s *InMemory) FindParticipant(_ context.Context, participantID id.ParticipantID) (*models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[participantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	cp.Skills = slices.Clone(p.Skills)
	return &cp, nil
}

func (s *InMemory) CreateTemplate(_ context.Context, tpl *models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[tpl.ID]; ok {
		return sentinel.ErrAlreadyExists
	}
	s.templates[tpl.ID] = copyTemplate(tpl)
	return nil
}

func (s *InMemory) FindTemplate(_ context.Context, templateID id.TemplateID) (*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[templateID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyTemplate(t), nil
}

func (s *InMemory) UpdateTemplate(_ context.Context, tpl *models.Template, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.templates[tpl.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	s.templates[tpl.ID] = copyTemplate(tpl)
	return nil
}

func copyEvent(e *models.Event) *models.Event {
	cp := *e
	cp.ParticipantIDs = slices.Clone(e.ParticipantIDs)
	return &cp
}

func copyTemplate(t *models.Template) *models.Template {
	cp := *t
	cp.History = slices.Clone(t.History)
	cp.Design.Elements = slices.Clone(t.Design.Elements)
	return &cp
}
