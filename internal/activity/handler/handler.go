package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"certifier/internal/activity"
	id "certifier/pkg/domain"
	dErrors "certifier/pkg/domain-errors"
	"certifier/pkg/platform/httputil"
	"certifier/pkg/requestcontext"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Querier reads a tenant's activity log.
type Querier interface {
	Query(ctx context.Context, tenantID id.TenantID, filter activity.Filter, limit, offset int) ([]*activity.Entry, int, error)
}

type Handler struct {
	store  Querier
	logger *slog.Logger
}

func New(store Querier, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/activity", h.HandleList)
}

type EntryResponse struct {
	ID           string         `json:"id"`
	Kind         string         `json:"kind"`
	Actor        string         `json:"actor"`
	CredentialID string         `json:"credentialId,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

type ListResponse struct {
	Success bool            `json:"success"`
	Entries []EntryResponse `json:"entries"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// HandleList returns the tenant's activity, newest first.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, err := httputil.RequireTenantID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter, limit, offset, err := parseQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries, total, err := h.store.Query(ctx, tenantID, filter, limit, offset)
	if err != nil {
		h.logger.ErrorContext(ctx, "query activity failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
			"tenant_id", tenantID.String(),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnknown, "failed to query activity"))
		return
	}

	resp := ListResponse{Success: true, Entries: make([]EntryResponse, 0, len(entries)), Total: total, Limit: limit, Offset: offset}
	for _, e := range entries {
		item := EntryResponse{
			ID:        e.ID.String(),
			Kind:      string(e.Kind),
			Actor:     e.Actor,
			Details:   e.Details,
			CreatedAt: e.CreatedAt,
		}
		if !e.CredentialID.IsNil() {
			item.CredentialID = e.CredentialID.String()
		}
		resp.Entries = append(resp.Entries, item)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func parseQuery(r *http.Request) (activity.Filter, int, int, error) {
	q := r.URL.Query()
	var filter activity.Filter
	if raw := q.Get("kind"); raw != "" {
		kind, ok := activity.ParseKind(raw)
		if !ok {
			return filter, 0, 0, dErrors.New(dErrors.CodeValidation, "unknown activity kind")
		}
		filter.Kind = kind
	}
	if raw := q.Get("credentialId"); raw != "" {
		credentialID, err := id.ParseCredentialID(raw)
		if err != nil {
			return filter, 0, 0, err
		}
		filter.CredentialID = credentialID
	}
	limit, err := intParam(q.Get("limit"), defaultLimit)
	if err != nil {
		return filter, 0, 0, err
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil {
		return filter, 0, 0, err
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	return filter, min(limit, maxLimit), max(offset, 0), nil
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, "limit and offset must be integers")
	}
	return n, nil
}
