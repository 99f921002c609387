package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"certifier/internal/webhook"
	id "certifier/pkg/domain"
	dErrors "certifier/pkg/domain-errors"
	"certifier/pkg/platform/httputil"
	"certifier/pkg/requestcontext"
)

// Service manages the authenticated tenant's webhook subscriptions.
type Service interface {
	Register(ctx context.Context, tenantID id.TenantID, cmd webhook.RegisterCommand) (*webhook.Subscription, string, error)
	List(ctx context.Context, tenantID id.TenantID) ([]*webhook.Subscription, error)
	Delete(ctx context.Context, tenantID id.TenantID, subID id.SubscriptionID) error
	SetEnabled(ctx context.Context, tenantID id.TenantID, subID id.SubscriptionID, enabled bool) (*webhook.Subscription, error)
	Deliveries(ctx context.Context, tenantID id.TenantID, subID id.SubscriptionID, limit int) ([]*webhook.Delivery, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/webhooks", h.HandleRegister)
	r.Get("/webhooks", h.HandleList)
	r.Delete("/webhooks/{id}", h.HandleDelete)
	r.Post("/webhooks/{id}/enable", h.HandleEnable)
	r.Post("/webhooks/{id}/disable", h.HandleDisable)
	r.Get("/webhooks/{id}/deliveries", h.HandleDeliveries)
}

// HandleRegister creates a subscription. The response is the only place the
// signing secret is ever shown.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	tenantID, err := httputil.RequireTenantID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	sub, secret, err := h.service.Register(ctx, tenantID, req.ToCommand())
	if err != nil {
		h.logFailure(ctx, "register webhook failed", err, tenantID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, RegisterResponse{
		Success: true,
		Webhook: toSubscriptionResponse(sub),
		Secret:  secret,
	})
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, err := httputil.RequireTenantID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	subs, err := h.service.List(ctx, tenantID)
	if err != nil {
		h.logFailure(ctx, "list webhooks failed", err, tenantID)
		httputil.WriteError(w, err)
		return
	}
	resp := ListResponse{Success: true, Webhooks: make([]SubscriptionResponse, 0, len(subs))}
	for _, sub := range subs {
		resp.Webhooks = append(resp.Webhooks, toSubscriptionResponse(sub))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, subID, ok := h.scope(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(ctx, tenantID, subID); err != nil {
		h.logFailure(ctx, "delete webhook failed", err, tenantID)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleEnable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

func (h *Handler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *Handler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	ctx := r.Context()
	tenantID, subID, ok := h.scope(w, r)
	if !ok {
		return
	}
	sub, err := h.service.SetEnabled(ctx, tenantID, subID, enabled)
	if err != nil {
		h.logFailure(ctx, "update webhook failed", err, tenantID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SubscriptionEnvelope{Success: true, Webhook: toSubscriptionResponse(sub)})
}

func (h *Handler) HandleDeliveries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, subID, ok := h.scope(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be an integer"))
			return
		}
		limit = n
	}

	deliveries, err := h.service.Deliveries(ctx, tenantID, subID, limit)
	if err != nil {
		h.logFailure(ctx, "list deliveries failed", err, tenantID)
		httputil.WriteError(w, err)
		return
	}
	resp := DeliveriesResponse{Success: true, Deliveries: make([]DeliveryResponse, 0, len(deliveries))}
	for _, d := range deliveries {
		resp.Deliveries = append(resp.Deliveries, toDeliveryResponse(d))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (id.TenantID, id.SubscriptionID, bool) {
	tenantID, err := httputil.RequireTenantID(r.Context(), h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return id.TenantID{}, id.SubscriptionID{}, false
	}
	subID, err := id.ParseSubscriptionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.TenantID{}, id.SubscriptionID{}, false
	}
	return tenantID, subID, true
}

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
