package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"certifier/internal/quota"
	id "certifier/pkg/domain"
	"certifier/pkg/platform/httputil"
	"certifier/pkg/requestcontext"
)

// UsageService returns the billing state of a tenant.
type UsageService interface {
	Usage(ctx context.Context, tenantID id.TenantID) (*quota.Usage, error)
}

type Handler struct {
	service UsageService
	logger  *slog.Logger
}

func New(service UsageService, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/tenant/usage", h.HandleUsage)
}

// HandleUsage returns billing mode, plan, credits and usage counters for the
// authenticated tenant.
func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, err := httputil.RequireTenantID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	usage, err := h.service.Usage(ctx, tenantID)
	if err != nil {
		h.logger.ErrorContext(ctx, "load tenant usage failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
			"tenant_id", tenantID.String(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toUsageResponse(usage))
}
