package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	id "certifier/pkg/domain"
	dErrors "certifier/pkg/domain-errors"
	"certifier/pkg/requestcontext"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Success         bool   `json:"success"`
	Code            string `json:"code"`
	Message         string `json:"message"`
	RequiresPayment bool   `json:"requiresPayment,omitempty"`
	RequiresUpgrade bool   `json:"requiresUpgrade,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Errors after WriteHeader cannot change the status code, so we ignore encoding errors.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError centralizes domain error translation to HTTP responses.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if !errors.As(err, &domainErr) {
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
			Code:    string(dErrors.CodeUnknown),
			Message: "internal error",
		})
		return
	}

	resp := NewErrorResponse(domainErr)
	if domainErr.Code == dErrors.CodeRateLimited && w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", "60")
	}
	WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), resp)
}

// NewErrorResponse builds the response body for a domain error, including
// the routing flags the dashboard uses for billing rejections.
func NewErrorResponse(err *dErrors.Error) ErrorResponse {
	msg := err.Message
	if msg == "" {
		msg = string(err.Code)
	}
	return ErrorResponse{
		Code:            string(err.Code),
		Message:         msg,
		RequiresPayment: err.Code == dErrors.CodeInsufficientCredits,
		RequiresUpgrade: err.Code == dErrors.CodeLimitReached || err.Code == dErrors.CodeBillingNotConfigured,
	}
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation, dErrors.CodeInvalidReference:
		return http.StatusBadRequest
	case dErrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeInsufficientCredits, dErrors.CodeLimitReached, dErrors.CodeBillingNotConfigured,
		dErrors.CodeQuotaExhausted:
		return http.StatusPaymentRequired
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeInvalidStateTransition:
		return http.StatusConflict
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case dErrors.CodeStorageUnavailable, dErrors.CodeAssetUnavailable, dErrors.CodeWebhookDeliveryFailed:
		return http.StatusBadGateway
	case dErrors.CodeRenderFailed, dErrors.CodeUnknown:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// RequireTenantID extracts the authenticated tenant from context.
// Returns a domain error suitable for HTTP response on failure.
func RequireTenantID(ctx context.Context, logger *slog.Logger) (id.TenantID, error) {
	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		if logger != nil {
			logger.ErrorContext(ctx, "tenant missing from context despite auth middleware",
				"request_id", requestcontext.RequestID(ctx))
		}
		return id.TenantID{}, dErrors.New(dErrors.CodeUnauthenticated, "authentication required")
	}
	return tenantID, nil
}
