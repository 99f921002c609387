package handler

import (
	"strings"

	"certifier/internal/credential/models"
	"certifier/internal/issuance"
	"certifier/internal/render"
	id "certifier/pkg/domain"
	dErrors "certifier/pkg/domain-errors"
	"certifier/pkg/platform/validation"
	pkgvalidation "certifier/pkg/validation"
)

// DesignIssueRequest issues one credential from a template or inline design.
type DesignIssueRequest struct {
	ParticipantID   string            `json:"participantId" validate:"required,uuid"`
	EventID         string            `json:"eventId" validate:"required,uuid"`
	Title           string            `json:"title" validate:"notblank"`
	Type            string            `json:"type" validate:"required,oneof=certificate badge diploma award"`
	TemplateID      *string           `json:"templateId,omitempty" validate:"omitempty,uuid"`
	DesignData      *render.Design    `json:"designData,omitempty"`
	ParticipantData map[string]string `json:"participantData,omitempty"`
}

func (r *DesignIssueRequest) Normalize() {
	if r == nil {
		return
	}
	r.ParticipantID = strings.TrimSpace(r.ParticipantID)
	r.EventID = strings.TrimSpace(r.EventID)
	r.Title = strings.TrimSpace(r.Title)
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
	if r.TemplateID != nil {
		tid := strings.TrimSpace(*r.TemplateID)
		r.TemplateID = &tid
	}
}

func (r *DesignIssueRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	if err := validation.CheckStringLength("title", r.Title, validation.MaxTitleLength); err != nil {
		return err
	}
	if err := checkOverrides(r.ParticipantData); err != nil {
		return err
	}
	return pkgvalidation.Validate(r)
}

func (r *DesignIssueRequest) ToCommand() (issuance.IssueCommand, error) {
	participantID, err := id.ParseParticipantID(r.ParticipantID)
	if err != nil {
		return issuance.IssueCommand{}, err
	}
	eventID, err := id.ParseEventID(r.EventID)
	if err != nil {
		return issuance.IssueCommand{}, err
	}
	templateID, err := parseTemplateID(r.TemplateID)
	if err != nil {
		return issuance.IssueCommand{}, err
	}
	return issuance.IssueCommand{
		ParticipantID: participantID,
		EventID:       eventID,
		Title:         r.Title,
		Type:          models.Type(r.Type),
		TemplateID:    templateID,
		Design:        r.DesignData,
		Overrides:     render.Bundle(r.ParticipantData),
	}, nil
}

type BatchItemRequest struct {
	ParticipantID   string            `json:"participantId" validate:"required,uuid"`
	ParticipantData map[string]string `json:"participantData,omitempty"`
}

// BatchIssueRequest issues one credential per item under a shared event and
// design.
type BatchIssueRequest struct {
	EventID    string             `json:"eventId" validate:"required,uuid"`
	Title      string             `json:"title" validate:"notblank"`
	Type       string             `json:"type" validate:"required,oneof=certificate badge diploma award"`
	TemplateID *string            `json:"templateId,omitempty" validate:"omitempty,uuid"`
	DesignData *render.Design     `json:"designData,omitempty"`
	Items      []BatchItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (r *BatchIssueRequest) Normalize() {
	if r == nil {
		return
	}
	r.EventID = strings.TrimSpace(r.EventID)
	r.Title = strings.TrimSpace(r.Title)
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
	for i := range r.Items {
		r.Items[i].ParticipantID = strings.TrimSpace(r.Items[i].ParticipantID)
	}
}

func (r *BatchIssueRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	if err := validation.CheckStringLength("title", r.Title, validation.MaxTitleLength); err != nil {
		return err
	}
	for _, item := range r.Items {
		if err := checkOverrides(item.ParticipantData); err != nil {
			return err
		}
	}
	return pkgvalidation.Validate(r)
}

func (r *BatchIssueRequest) ToCommand() (issuance.BatchCommand, error) {
	eventID, err := id.ParseEventID(r.EventID)
	if err != nil {
		return issuance.BatchCommand{}, err
	}
	templateID, err := parseTemplateID(r.TemplateID)
	if err != nil {
		return issuance.BatchCommand{}, err
	}
	items := make([]issuance.BatchItem, 0, len(r.Items))
	for _, item := range r.Items {
		participantID, err := id.ParseParticipantID(item.ParticipantID)
		if err != nil {
			return issuance.BatchCommand{}, err
		}
		items = append(items, issuance.BatchItem{
			ParticipantID: participantID,
			Overrides:     render.Bundle(item.ParticipantData),
		})
	}
	return issuance.BatchCommand{
		EventID:    eventID,
		Title:      r.Title,
		Type:       models.Type(r.Type),
		TemplateID: templateID,
		Design:     r.DesignData,
		Items:      items,
	}, nil
}

type RevokeRequest struct {
	Reason string `json:"reason"`
}

func (r *RevokeRequest) Normalize() {
	if r == nil {
		return
	}
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *RevokeRequest) Validate() error {
	if r == nil {
		return nil
	}
	return validation.CheckStringLength("reason", r.Reason, validation.MaxOverrideValueLength)
}

type ShareRequest struct {
	Channel   string `json:"channel" validate:"required,oneof=email link linkedin download"`
	Recipient string `json:"recipient"`
}

func (r *ShareRequest) Normalize() {
	if r == nil {
		return
	}
	r.Channel = strings.ToLower(strings.TrimSpace(r.Channel))
	r.Recipient = strings.TrimSpace(r.Recipient)
}

func (r *ShareRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	if err := validation.CheckStringLength("recipient", r.Recipient, validation.MaxEmailLength); err != nil {
		return err
	}
	if r.Channel == "email" && r.Recipient == "" {
		return dErrors.New(dErrors.CodeValidation, "recipient is required for email shares")
	}
	return pkgvalidation.Validate(r)
}

func (r *ShareRequest) ToCommand() issuance.ShareCommand {
	return issuance.ShareCommand{Channel: r.Channel, Recipient: r.Recipient}
}

func checkOverrides(data map[string]string) error {
	if err := validation.CheckSliceCount("participantData keys", len(data), validation.MaxOverrides); err != nil {
		return err
	}
	for _, v := range data {
		if err := validation.CheckStringLength("participantData value", v, validation.MaxOverrideValueLength); err != nil {
			return err
		}
	}
	return nil
}

func parseTemplateID(raw *string) (*id.TemplateID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	tid, err := id.ParseTemplateID(*raw)
	if err != nil {
		return nil, err
	}
	return &tid, nil
}
