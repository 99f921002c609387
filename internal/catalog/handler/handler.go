package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"certifier/internal/catalog/models"
	"certifier/internal/catalog/service"
	id "certifier/pkg/domain"
	dErrors "certifier/pkg/domain-errors"
	"certifier/pkg/platform/httputil"
	"certifier/pkg/requestcontext"
)

// Service defines the catalog operations exposed over HTTP. All methods are
// scoped to the authenticated tenant.
type Service interface {
	CreateEvent(ctx context.Context, tenantID id.TenantID, cmd service.CreateEventCommand) (*models.Event, error)
	GetEvent(ctx context.Context, tenantID id.TenantID, eventID id.EventID) (*models.Event, error)
	CreateParticipant(ctx context.Context, tenantID id.TenantID, cmd service.CreateParticipantCommand) (*models.Participant, error)
	GetParticipant(ctx context.Context, tenantID id.TenantID, participantID id.ParticipantID) (*models.Participant, error)
	EnrollParticipant(ctx context.Context, tenantID id.TenantID, eventID id.EventID, participantID id.ParticipantID) (*models.Event, error)
	CreateTemplate(ctx context.Context, tenantID id.TenantID, cmd service.CreateTemplateCommand) (*models.Template, error)
	UpdateTemplate(ctx context.Context, tenantID id.TenantID, templateID id.TemplateID, cmd service.UpdateTemplateCommand) (*models.Template, error)
	GetTemplate(ctx context.Context, tenantID id.TenantID, templateID id.TemplateID) (*models.Template, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/events", h.HandleCreateEvent)
	r.Get("/events/{id}", h.HandleGetEvent)
	r.Post("/events/{id}/participants", h.HandleEnrollParticipant)
	r.Post("/participants", h.HandleCreateParticipant)
	r.Get("/participants/{id}", h.HandleGetParticipant)
	r.Post("/templates", h.HandleCreateTemplate)
	r.Put("/templates/{id}", h.HandleUpdateTemplate)
	r.Get("/templates/{id}", h.HandleGetTemplate)
}

// HandleCreateEvent creates an event. Counts against the events-created quota.
func (h *Handler) HandleCreateEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	tenantID, err := httputil.RequireTenantID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateEventRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	event, err := h.service.CreateEvent(ctx, tenantID, req.ToCommand())
	if err != nil {
		h.logFailure(ctx, "create event failed", err, tenantID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toEventResponse(event, requestcontext.Now(ctx)))
}

func (h *Handler) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, err := httputil.RequireTenantID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	eventID, err := id.ParseEventID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	event, err := h.service.GetEvent(ctx, tenantID, eventID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEventResponse(event, requestcontext.Now(ctx)))
}

// HandleEnrollParticipant adds a registered participant to an event. Counts
// against the participants-added quota.
func (h *Handler) HandleEnrollParticipant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	tenantID, err := httputil.RequireTenantID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	eventID, err := id.ParseEventID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[EnrollRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	participantID, err := id.ParseParticipantID(req.ParticipantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	event, err := h.service.EnrollParticipant(ctx, tenantID, eventID, participantID)
	if err != nil {
		h.logFailure(ctx, "enroll participant failed", err, tenantID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEventResponse(event, requestcontext.Now(ctx)))
}

func (h *Handler) HandleCreateParticipant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	tenantID, err := httputil.RequireTenantID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateParticipantRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	p, err := h.service.CreateParticipant(ctx, tenantID, service.CreateParticipantCommand{
		Name:   req.Name,
		Email:  req.Email,
		Skills: req.Skills,
	})
	if err != nil {
		h.logFailure(ctx, "create participant failed", err, tenantID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toParticipantResponse(p))
}

func (h *Handler) HandleGetParticipant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, err := httputil.RequireTenantID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	participantID, err := id.ParseParticipantID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	p, err := h.service.GetParticipant(ctx, tenantID, participantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toParticipantResponse(p))
}

func (h *Handler) HandleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	tenantID, err := httputil.RequireTenantID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateTemplateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	tpl, err := h.service.CreateTemplate(ctx, tenantID, service.CreateTemplateCommand{
		Name:   req.Name,
		Type:   req.Type,
		Design: req.Design,
	})
	if err != nil {
		h.logFailure(ctx, "create template failed", err, tenantID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toTemplateResponse(tpl))
}

// HandleUpdateTemplate stores a new template version.
func (h *Handler) HandleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	tenantID, err := httputil.RequireTenantID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	templateID, err := id.ParseTemplateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateTemplateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	tpl, err := h.service.UpdateTemplate(ctx, tenantID, templateID, service.UpdateTemplateCommand{
		Name:   req.Name,
		Design: req.Design,
	})
	if err != nil {
		h.logFailure(ctx, "update template failed", err, tenantID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTemplateResponse(tpl))
}

func (h *Handler) HandleGetTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, err := httputil.RequireTenantID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	templateID, err := id.ParseTemplateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	tpl, err := h.service.GetTemplate(ctx, tenantID, templateID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTemplateResponse(tpl))
}

// logFailure logs unexpected failures at error level and client errors at
// debug, so quota rejections do not page anyone.
func (h *Handler) logFailure(ctx context.Context, msg string, err error, tenantID id.TenantID) {
	code := dErrors.CodeOf(err)
	level := slog.LevelDebug
	if code == dErrors.CodeUnknown || code.IsDependency() {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"error", err,
		"code", string(code),
		"request_id", requestcontext.RequestID(ctx),
		"tenant_id", tenantID.String(),
	)
}
