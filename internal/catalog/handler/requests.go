package handler

import (
	"strings"
	"time"

	"certifier/internal/catalog/service"
	"certifier/internal/render"
	dErrors "certifier/pkg/domain-errors"
	strutil "certifier/pkg/platform/strings"
	"certifier/pkg/platform/validation"
	pkgvalidation "certifier/pkg/validation"
)

type CreateEventRequest struct {
	Title       string     `json:"title" validate:"notblank"`
	Description string     `json:"description"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
	Capacity    int        `json:"capacity" validate:"min=0"`
	Category    string     `json:"category"`
	Code        string     `json:"eventCode" validate:"max=32"`
}

func (r *CreateEventRequest) Normalize() {
	if r == nil {
		return
	}
	r.Title = strings.TrimSpace(r.Title)
	r.Category = strings.TrimSpace(r.Category)
	r.Code = strings.TrimSpace(r.Code)
}

func (r *CreateEventRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	if err := validation.CheckStringLength("title", r.Title, validation.MaxTitleLength); err != nil {
		return err
	}
	return pkgvalidation.Validate(r)
}

func (r *CreateEventRequest) ToCommand() service.CreateEventCommand {
	return service.CreateEventCommand{
		Title:       r.Title,
		Description: r.Description,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		Capacity:    r.Capacity,
		Category:    r.Category,
		Code:        r.Code,
	}
}

type CreateParticipantRequest struct {
	Name   string   `json:"name" validate:"notblank"`
	Email  string   `json:"email" validate:"required,email"`
	Skills []string `json:"skills"`
}

func (r *CreateParticipantRequest) Normalize() {
	if r == nil {
		return
	}
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Skills = strutil.DedupeAndTrim(r.Skills)
}

func (r *CreateParticipantRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	if err := validation.CheckSliceCount("skills", len(r.Skills), validation.MaxSkills); err != nil {
		return err
	}
	if err := validation.CheckStringLength("name", r.Name, validation.MaxNameLength); err != nil {
		return err
	}
	if err := validation.CheckStringLength("email", r.Email, validation.MaxEmailLength); err != nil {
		return err
	}
	return pkgvalidation.Validate(r)
}

type EnrollRequest struct {
	ParticipantID string `json:"participantId" validate:"required,uuid"`
}

func (r *EnrollRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	return pkgvalidation.Validate(r)
}

type CreateTemplateRequest struct {
	Name   string        `json:"name" validate:"notblank"`
	Type   string        `json:"type" validate:"required,oneof=certificate badge diploma award"`
	Design render.Design `json:"design"`
}

func (r *CreateTemplateRequest) Normalize() {
	if r == nil {
		return
	}
	r.Name = strings.TrimSpace(r.Name)
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
}

func (r *CreateTemplateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	if err := validation.CheckStringLength("name", r.Name, validation.MaxNameLength); err != nil {
		return err
	}
	return pkgvalidation.Validate(r)
}

type UpdateTemplateRequest struct {
	Name   string        `json:"name"`
	Design render.Design `json:"design"`
}

func (r *UpdateTemplateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	return validation.CheckStringLength("name", r.Name, validation.MaxNameLength)
}
