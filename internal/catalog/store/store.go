// Package store persists events, participants and design templates.
package store

import (
	"context"

	"certifier/internal/catalog/models"
	id "certifier/pkg/domain"
)

type EventStore interface {
	// CreateEvent returns sentinel.ErrAlreadyExists when the tenant already
	// has an event with the same non-empty code.
	CreateEvent(ctx context.Context, event *models.Event) error
	FindEvent(ctx context.Context, eventID id.EventID) (*models.Event, error)
	// AddParticipant appends to the event's ordered participant set. It
	// returns sentinel.ErrAlreadyExists when the participant is enrolled.
	AddParticipant(ctx context.Context, eventID id.EventID, participantID id.ParticipantID) error
}

type ParticipantStore interface {
	// CreateParticipant returns sentinel.ErrAlreadyExists on a duplicate email.
	CreateParticipant(ctx context.Context, participant *models.Participant) error
	FindParticipant(ctx context.Context, participantID id.ParticipantID) (*models.Participant, error)
}

type TemplateStore interface {
	CreateTemplate(ctx context.Context, tpl *models.Template) error
	FindTemplate(ctx context.Context, templateID id.TemplateID) (*models.Template, error)
	// UpdateTemplate saves tpl if the stored version still equals
	// expectedVersion, otherwise it returns sentinel.ErrConflict.
	UpdateTemplate(ctx context.Context, tpl *models.Template, expectedVersion int) error
}
