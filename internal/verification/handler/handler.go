// Package handler serves the public verification endpoints. No bearer token
// is required.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"certifier/internal/verification"
	dErrors "certifier/pkg/domain-errors"
	"certifier/pkg/platform/httputil"
	"certifier/pkg/requestcontext"
)

type Service interface {
	Verify(ctx context.Context, hash string) (*verification.View, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the verification routes on r. The caller wraps r with the
// verification rate limiter.
func (h *Handler) Register(r chi.Router) {
	r.Get("/credentials/verify", h.HandleVerifyQuery)
	r.Get("/verify/{fingerprint}", h.HandleVerifyPath)
}

type CredentialView struct {
	Valid           bool       `json:"valid"`
	Status          string     `json:"status"`
	Title           string     `json:"title"`
	Type            string     `json:"type"`
	ParticipantID   string     `json:"participantId"`
	EventID         string     `json:"eventId"`
	ParticipantName string     `json:"participantName"`
	EventTitle      string     `json:"eventTitle"`
	IssuedAt        *time.Time `json:"issuedAt,omitempty"`
	Revoked         bool       `json:"revoked"`
	RevokedAt       *time.Time `json:"revokedAt,omitempty"`
	Fingerprint     string     `json:"fingerprint"`
	VerificationURL string     `json:"verificationUrl"`
	QRCode          string     `json:"qrCode,omitempty"`
}

type VerifyResponse struct {
	Success    bool           `json:"success"`
	Credential CredentialView `json:"credential"`
}

func (h *Handler) HandleVerifyQuery(w http.ResponseWriter, r *http.Request) {
	h.verify(w, r, r.URL.Query().Get("hash"))
}

// HandleVerifyPath serves the verification URL printed on the credential.
func (h *Handler) HandleVerifyPath(w http.ResponseWriter, r *http.Request) {
	h.verify(w, r, chi.URLParam(r, "fingerprint"))
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request, hash string) {
	ctx := r.Context()
	view, err := h.service.Verify(ctx, hash)
	if err != nil {
		code := dErrors.CodeOf(err)
		level := slog.LevelDebug
		if code == dErrors.CodeUnknown {
			level = slog.LevelError
		}
		h.logger.Log(ctx, level, "verification failed",
			"error", err,
			"code", string(code),
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, VerifyResponse{Success: true, Credential: toView(view)})
}

func toView(v *verification.View) CredentialView {
	return CredentialView{
		Valid:           v.Valid,
		Status:          string(v.Status),
		Title:           v.Title,
		Type:            string(v.Type),
		ParticipantID:   v.ParticipantID.String(),
		EventID:         v.EventID.String(),
		ParticipantName: v.ParticipantName,
		EventTitle:      v.EventTitle,
		IssuedAt:        v.IssuedAt,
		Revoked:         v.RevokedAt != nil,
		RevokedAt:       v.RevokedAt,
		Fingerprint:     v.Fingerprint,
		VerificationURL: v.VerificationURL,
		QRCode:          v.QRCode,
	}
}
