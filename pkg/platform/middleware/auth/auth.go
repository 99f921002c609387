package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "certifier/pkg/domain"
	"certifier/pkg/requestcontext"
)

// JWTValidator defines the interface for validating bearer tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// TenantGuard reports whether a tenant may currently call the API.
// A nil guard admits every tenant whose token validates.
type TenantGuard interface {
	TenantActive(ctx context.Context, tenantID id.TenantID) (bool, error)
}

// Claims represents the claims we expect from the validator.
type Claims struct {
	TenantID string
	Subject  string
	JTI      string
}

// writeJSONError writes a JSON error response in the shared error shape.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"success":false,"code":"%s","message":"%s"}`, code, message))
}

// RequireAuth returns middleware that validates bearer tokens and populates the
// context with the tenant and subject. Public routes must not be mounted behind it.
func RequireAuth(validator JWTValidator, guard TenantGuard, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "Unauthenticated", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "Unauthenticated", "Invalid or expired token")
				return
			}

			tenantID, err := id.ParseTenantID(claims.TenantID)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed tenant claim",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "Unauthenticated", "Invalid or expired token")
				return
			}

			if guard != nil {
				active, err := guard.TenantActive(ctx, tenantID)
				if err != nil {
					logger.ErrorContext(ctx, "failed to check tenant status",
						"error", err,
						"tenant_id", tenantID,
						"request_id", requestID,
					)
					writeJSONError(w, http.StatusInternalServerError, "Unknown", "Failed to validate token")
					return
				}
				if !active {
					logger.WarnContext(ctx, "forbidden - tenant not active",
						"tenant_id", tenantID,
						"request_id", requestID,
					)
					writeJSONError(w, http.StatusForbidden, "Forbidden", "Tenant is not active")
					return
				}
			}

			ctx = requestcontext.WithTenantID(ctx, tenantID)
			ctx = requestcontext.WithSubject(ctx, claims.Subject)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
