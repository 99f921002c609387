package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "certifier/pkg/domain"
	dErrors "certifier/pkg/domain-errors"
	"certifier/pkg/requestcontext"
)

func TestWriteError_StatusMapping(t *testing.T) {
	tests := []struct {
		code   dErrors.Code
		status int
	}{
		{dErrors.CodeValidation, http.StatusBadRequest},
		{dErrors.CodeInvalidReference, http.StatusBadRequest},
		{dErrors.CodeUnauthenticated, http.StatusUnauthorized},
		{dErrors.CodeForbidden, http.StatusForbidden},
		{dErrors.CodeInsufficientCredits, http.StatusPaymentRequired},
		{dErrors.CodeLimitReached, http.StatusPaymentRequired},
		{dErrors.CodeBillingNotConfigured, http.StatusPaymentRequired},
		{dErrors.CodeNotFound, http.StatusNotFound},
		{dErrors.CodeConflict, http.StatusConflict},
		{dErrors.CodeInvalidStateTransition, http.StatusConflict},
		{dErrors.CodeRateLimited, http.StatusTooManyRequests},
		{dErrors.CodeStorageUnavailable, http.StatusBadGateway},
		{dErrors.CodeUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, dErrors.New(tt.code, "boom"))

			assert.Equal(t, tt.status, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, string(tt.code), resp.Code)
			assert.Equal(t, "boom", resp.Message)
		})
	}
}

func TestWriteError_BillingFlags(t *testing.T) {
	t.Run("insufficient credits requires payment", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInsufficientCredits, "no credits"))

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, true, body["requiresPayment"])
		assert.NotContains(t, body, "requiresUpgrade")
	})

	t.Run("limit reached requires upgrade", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeLimitReached, "limit"))

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, true, body["requiresUpgrade"])
		assert.NotContains(t, body, "requiresPayment")
	})
}

func TestWriteError_NonDomainErrorIsInternal(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, errors.New("db exploded"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db exploded")
}

func TestRequireTenantID(t *testing.T) {
	_, err := RequireTenantID(context.Background(), nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))

	tenantID := id.NewTenantID()
	got, err := RequireTenantID(requestcontext.WithTenantID(context.Background(), tenantID), nil)
	require.NoError(t, err)
	assert.Equal(t, tenantID, got)
}
