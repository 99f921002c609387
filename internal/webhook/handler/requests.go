package handler

import (
	"strings"

	"certifier/internal/webhook"
	dErrors "certifier/pkg/domain-errors"
	strutil "certifier/pkg/platform/strings"
	"certifier/pkg/platform/validation"
	pkgvalidation "certifier/pkg/validation"
)

type RegisterRequest struct {
	URL    string   `json:"url" validate:"required,webhookurl"`
	Events []string `json:"events"`
}

func (r *RegisterRequest) Normalize() {
	if r == nil {
		return
	}
	r.URL = strings.TrimSpace(r.URL)
	r.Events = strutil.DedupeAndTrimLower(r.Events)
}

func (r *RegisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	if err := validation.CheckStringLength("url", r.URL, validation.MaxURLLength); err != nil {
		return err
	}
	if err := validation.CheckSliceCount("events", len(r.Events), validation.MaxWebhookEvents); err != nil {
		return err
	}
	for _, e := range r.Events {
		if _, ok := webhook.ParseEventKind(e); !ok {
			return dErrors.New(dErrors.CodeValidation, "unknown event kind: "+e)
		}
	}
	return pkgvalidation.Validate(r)
}

func (r *RegisterRequest) ToCommand() webhook.RegisterCommand {
	events := make([]webhook.EventKind, 0, len(r.Events))
	for _, e := range r.Events {
		kind, _ := webhook.ParseEventKind(e)
		events = append(events, kind)
	}
	return webhook.RegisterCommand{URL: r.URL, Events: events}
}
