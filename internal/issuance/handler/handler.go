// Package handler exposes the credential issuance and lifecycle endpoints.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"certifier/internal/credential/models"
	"certifier/internal/issuance"
	"certifier/internal/render"
	id "certifier/pkg/domain"
	dErrors "certifier/pkg/domain-errors"
	"certifier/pkg/platform/httputil"
	"certifier/pkg/platform/validation"
	"certifier/pkg/requestcontext"
)

// Service is the issuance coordinator as seen by the transport layer.
type Service interface {
	Issue(ctx context.Context, tenantID id.TenantID, cmd issuance.IssueCommand) (*issuance.Result, error)
	IssueUpload(ctx context.Context, tenantID id.TenantID, cmd issuance.UploadCommand) (*issuance.Result, error)
	IssueBatch(ctx context.Context, tenantID id.TenantID, cmd issuance.BatchCommand) (*issuance.BatchResult, error)
	Regenerate(ctx context.Context, tenantID id.TenantID, credentialID id.CredentialID) (*issuance.Result, error)
	Get(ctx context.Context, tenantID id.TenantID, credentialID id.CredentialID) (*models.Credential, error)
	List(ctx context.Context, tenantID id.TenantID, filter models.Filter, page models.Page) ([]*models.Credential, int, error)
	Download(ctx context.Context, tenantID id.TenantID, credentialID id.CredentialID, format render.Format) (string, error)
	Revoke(ctx context.Context, tenantID id.TenantID, credentialID id.CredentialID, reason string) (*models.Credential, error)
	Share(ctx context.Context, tenantID id.TenantID, credentialID id.CredentialID, cmd issuance.ShareCommand) (*models.Credential, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the tenant scoped routes. GET /credentials/verify belongs to
// the public verification handler; chi matches that static segment before
// /credentials/{id}.
func (h *Handler) Register(r chi.Router) {
	r.Post("/credentials", h.HandleUpload)
	r.Post("/credentials/design", h.HandleIssueDesign)
	r.Post("/credentials/batch", h.HandleBatch)
	r.Get("/credentials", h.HandleList)
	r.Get("/credentials/{id}", h.HandleGet)
	r.Get("/credentials/{id}/download", h.HandleDownload)
	r.Post("/credentials/{id}/revoke", h.HandleRevoke)
	r.Post("/credentials/{id}/regenerate", h.HandleRegenerate)
	r.Post("/credentials/{id}/share", h.HandleShare)
}

// HandleIssueDesign issues from a template or inline design. A render or
// storage failure still answers 201: the credential record is the receipt.
func (h *Handler) HandleIssueDesign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	tenantID, err := httputil.RequireTenantID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[DesignIssueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	cmd, err := req.ToCommand()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.Issue(ctx, tenantID, cmd)
	if err != nil {
		h.logFailure(ctx, "issue credential failed", err, tenantID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toIssueResponse(res))
}

// HandleUpload issues a credential whose artifact is the uploaded file.
// Accepted content is sniffed, not trusted from the part header.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, err := httputil.RequireTenantID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, validation.MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(validation.MaxUploadSize); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid multipart body"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "file is required"))
		return
	}
	defer file.Close()
	if header.Size > validation.MaxUploadSize {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "file exceeds 10 MB"))
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, validation.MaxUploadSize+1))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "failed to read file"))
		return
	}
	format, ok := sniffFormat(data)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "file must be a png, jpeg or pdf"))
		return
	}

	participantID, err := id.ParseParticipantID(r.FormValue("participantId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	eventID, err := id.ParseEventID(r.FormValue("eventId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	title := r.FormValue("title")
	if err := validation.CheckStringLength("title", title, validation.MaxTitleLength); err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.IssueUpload(ctx, tenantID, issuance.UploadCommand{
		ParticipantID: participantID,
		EventID:       eventID,
		Title:         title,
		Type:          models.Type(r.FormValue("type")),
		Format:        format,
		Data:          data,
	})
	if err != nil {
		h.logFailure(ctx, "upload credential failed", err, tenantID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toIssueResponse(res))
}

func sniffFormat(data []byte) (render.Format, bool) {
	switch http.DetectContentType(data) {
	case "image/png":
		return render.FormatPNG, true
	case "image/jpeg":
		return render.FormatJPEG, true
	case "application/pdf":
		return render.FormatPDF, true
	}
	return "", false
}

// HandleBatch answers 200 with the per-item outcome; only whole-batch input
// errors produce an error status.
func (h *Handler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	tenantID, err := httputil.RequireTenantID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[BatchIssueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	cmd, err := req.ToCommand()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.IssueBatch(ctx, tenantID, cmd)
	if err != nil {
		h.logFailure(ctx, "batch issuance failed", err, tenantID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toBatchResponse(res))
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, err := httputil.RequireTenantID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter, page, err := parseListQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	items, total, err := h.service.List(ctx, tenantID, filter, page)
	if err != nil {
		h.logFailure(ctx, "list credentials failed", err, tenantID)
		httputil.WriteError(w, err)
		return
	}
	page = page.Normalize()
	resp := ListResponse{
		Success:     true,
		Credentials: make([]CredentialResponse, 0, len(items)),
		Total:       total,
		Limit:       page.Limit,
		Offset:      page.Offset,
	}
	for _, c := range items {
		resp.Credentials = append(resp.Credentials, toCredentialResponse(c))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func parseListQuery(r *http.Request) (models.Filter, models.Page, error) {
	q := r.URL.Query()
	var filter models.Filter
	var page models.Page
	if raw := q.Get("status"); raw != "" {
		status, ok := models.ParseStatus(raw)
		if !ok {
			return filter, page, dErrors.New(dErrors.CodeValidation, "unknown status: "+raw)
		}
		filter.Status = status
	}
	if raw := q.Get("eventId"); raw != "" {
		eventID, err := id.ParseEventID(raw)
		if err != nil {
			return filter, page, err
		}
		filter.EventID = eventID
	}
	if raw := q.Get("participantId"); raw != "" {
		participantID, err := id.ParseParticipantID(raw)
		if err != nil {
			return filter, page, err
		}
		filter.ParticipantID = participantID
	}
	for name, dst := range map[string]*int{"limit": &page.Limit, "offset": &page.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, page, dErrors.New(dErrors.CodeValidation, name+" must be a non-negative integer")
		}
		*dst = n
	}
	return filter, page, nil
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, credentialID, ok := h.scope(w, r)
	if !ok {
		return
	}
	cred, err := h.service.Get(ctx, tenantID, credentialID)
	if err != nil {
		h.logFailure(ctx, "get credential failed", err, tenantID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CredentialEnvelope{Success: true, Credential: toCredentialResponse(cred)})
}

// HandleDownload redirects to the artifact, rendering the format first when
// it has not been produced yet.
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, credentialID, ok := h.scope(w, r)
	if !ok {
		return
	}
	raw := r.URL.Query().Get("format")
	format, ok := render.ParseFormat(raw)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "format must be png, jpeg or pdf"))
		return
	}

	url, err := h.service.Download(ctx, tenantID, credentialID, format)
	if err != nil {
		h.logFailure(ctx, "download credential failed", err, tenantID)
		httputil.WriteError(w, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, credentialID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req RevokeRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	cred, err := h.service.Revoke(ctx, tenantID, credentialID, req.Reason)
	if err != nil {
		h.logFailure(ctx, "revoke credential failed", err, tenantID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CredentialEnvelope{Success: true, Credential: toCredentialResponse(cred)})
}

func (h *Handler) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, credentialID, ok := h.scope(w, r)
	if !ok {
		return
	}
	res, err := h.service.Regenerate(ctx, tenantID, credentialID)
	if err != nil {
		h.logFailure(ctx, "regenerate credential failed", err, tenantID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toIssueResponse(res))
}

func (h *Handler) HandleShare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	tenantID, credentialID, ok := h.scope(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ShareRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	cred, err := h.service.Share(ctx, tenantID, credentialID, req.ToCommand())
	if err != nil {
		h.logFailure(ctx, "share credential failed", err, tenantID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CredentialEnvelope{Success: true, Credential: toCredentialResponse(cred)})
}

// decodeOptional accepts an empty body for endpoints whose payload is
// optional.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst *RevokeRequest) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, validation.MaxBodySize)).Decode(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return false
	}
	if err := httputil.PrepareRequest(dst); err != nil {
		httputil.WriteError(w, err)
		return false
	}
	return true
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (id.TenantID, id.CredentialID, bool) {
	tenantID, err := httputil.RequireTenantID(r.Context(), h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return id.TenantID{}, id.CredentialID{}, false
	}
	credentialID, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.TenantID{}, id.CredentialID{}, false
	}
	return tenantID, credentialID, true
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
