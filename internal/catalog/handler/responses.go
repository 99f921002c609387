package handler

import (
	"time"

	"certifier/internal/catalog/models"
	"certifier/internal/render"
)

type EventResponse struct {
	Success        bool       `json:"success"`
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	StartDate      *time.Time `json:"startDate,omitempty"`
	EndDate        *time.Time `json:"endDate,omitempty"`
	Capacity       int        `json:"capacity"`
	Category       string     `json:"category,omitempty"`
	Code           string     `json:"eventCode,omitempty"`
	Status         string     `json:"status"`
	ParticipantIDs []string   `json:"participants"`
	CreatedAt      time.Time  `json:"createdAt"`
}

func toEventResponse(e *models.Event, now time.Time) *EventResponse {
	ids := make([]string, len(e.ParticipantIDs))
	for i, pid := range e.ParticipantIDs {
		ids[i] = pid.String()
	}
	return &EventResponse{
		Success:        true,
		ID:             e.ID.String(),
		Title:          e.Title,
		Description:    e.Description,
		StartDate:      e.StartDate,
		EndDate:        e.EndDate,
		Capacity:       e.Capacity,
		Category:       e.Category,
		Code:           e.Code,
		Status:         string(e.Status(now)),
		ParticipantIDs: ids,
		CreatedAt:      e.CreatedAt,
	}
}

type ParticipantResponse struct {
	Success   bool      `json:"success"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Skills    []string  `json:"skills"`
	CreatedAt time.Time `json:"createdAt"`
}

func toParticipantResponse(p *models.Participant) *ParticipantResponse {
	skills := p.Skills
	if skills == nil {
		skills = []string{}
	}
	return &ParticipantResponse{
		Success:   true,
		ID:        p.ID.String(),
		Name:      p.Name,
		Email:     p.Email,
		Skills:    skills,
		CreatedAt: p.CreatedAt,
	}
}

type TemplateResponse struct {
	Success   bool                     `json:"success"`
	ID        string                   `json:"id"`
	Name      string                   `json:"name"`
	Type      string                   `json:"type"`
	Version   int                      `json:"version"`
	Design    render.Design            `json:"design"`
	History   []models.TemplateVersion `json:"history"`
	UpdatedAt time.Time                `json:"updatedAt"`
}

func toTemplateResponse(t *models.Template) *TemplateResponse {
	history := t.History
	if history == nil {
		history = []models.TemplateVersion{}
	}
	return &TemplateResponse{
		Success:   true,
		ID:        t.ID.String(),
		Name:      t.Name,
		Type:      t.Type,
		Version:   t.Version,
		Design:    t.Design,
		History:   history,
		UpdatedAt: t.UpdatedAt,
	}
}
