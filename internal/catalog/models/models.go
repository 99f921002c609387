package models

import (
	"slices"
	"time"

	"certifier/internal/render"
	id "certifier/pkg/domain"
	dErrors "certifier/pkg/domain-errors"
)

// MaxTemplateHistory bounds the previous versions kept on a template.
const MaxTemplateHistory = 10

type EventStatus string

const (
	EventUpcoming  EventStatus = "upcoming"
	EventActive    EventStatus = "active"
	EventCompleted EventStatus = "completed"
)

// Event groups participants for one issuance campaign.
type Event struct {
	ID             id.EventID
	TenantID       id.TenantID
	Title          string
	Description    string
	StartDate      *time.Time
	EndDate        *time.Time
	Capacity       int
	Category       string
	Code           string
	ParticipantIDs []id.ParticipantID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewEvent(tenantID id.TenantID, title string, start, end *time.Time, now time.Time) (*Event, error) {
	if title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "event title is required")
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, dErrors.New(dErrors.CodeValidation, "endDate must not be before startDate")
	}
	return &Event{
		ID:        id.NewEventID(),
		TenantID:  tenantID,
		Title:     title,
		StartDate: start,
		EndDate:   end,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Status derives the event phase from its dates at now.
func (e *Event) Status(now time.Time) EventStatus {
	switch {
	case e.StartDate != nil && now.Before(*e.StartDate):
		return EventUpcoming
	case e.EndDate != nil && now.After(*e.EndDate):
		return EventCompleted
	default:
		return EventActive
	}
}

func (e *Event) HasParticipant(pid id.ParticipantID) bool {
	return slices.Contains(e.ParticipantIDs, pid)
}

// IsFull reports whether the event reached its capacity. Zero capacity is unbounded.
func (e *Event) IsFull() bool {
	return e.Capacity > 0 && len(e.ParticipantIDs) >= e.Capacity
}

// Participant is a person who can receive credentials. Email is unique
// across all participants.
type Participant struct {
	ID        id.ParticipantID
	TenantID  id.TenantID
	Name      string
	Email     string
	Skills    []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Template is a versioned design document.
type Template struct {
	ID        id.TemplateID
	TenantID  id.TenantID
	Name      string
	Type      string
	Design    render.Design
	Version   int
	History   []TemplateVersion
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TemplateVersion is a retained previous design.
type TemplateVersion struct {
	Version   int           `json:"version"`
	Design    render.Design `json:"design"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Revise replaces the design, archiving the current one and dropping the
// oldest archived versions beyond MaxTemplateHistory.
func (t *Template) Revise(design render.Design, now time.Time) {
	t.History = append(t.History, TemplateVersion{Version: t.Version, Design: t.Design, UpdatedAt: t.UpdatedAt})
	if len(t.History) > MaxTemplateHistory {
		t.History = slices.Clone(t.History[len(t.History)-MaxTemplateHistory:])
	}
	t.Design = design
	t.Version++
	t.UpdatedAt = now
}
