package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certifier/internal/credential/models"
	"certifier/internal/verification"
	id "certifier/pkg/domain"
	dErrors "certifier/pkg/domain-errors"
)

type stubVerifier struct {
	views map[string]*verification.View
}

func (s stubVerifier) Verify(_ context.Context, hash string) (*verification.View, error) {
	if v, ok := s.views[hash]; ok {
		return v, nil
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "credential not found")
}

func TestVerifyEndpoints(t *testing.T) {
	fp := strings.Repeat("0f", 32)
	participantID := id.NewParticipantID()
	eventID := id.NewEventID()
	revokedAt := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	svc := stubVerifier{views: map[string]*verification.View{
		fp: {Valid: false, Status: models.StatusRevoked, Title: "Cert", EventTitle: "E1", Fingerprint: fp,
			ParticipantID: participantID, EventID: eventID, RevokedAt: &revokedAt},
	}}
	r := chi.NewRouter()
	New(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)

	for _, path := range []string{"/credentials/verify?hash=" + fp, "/verify/" + fp} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)

		var resp VerifyResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.True(t, resp.Success)
		assert.True(t, resp.Credential.Revoked)
		assert.Equal(t, "E1", resp.Credential.EventTitle)
		assert.Equal(t, "revoked", resp.Credential.Status)
		assert.Equal(t, participantID.String(), resp.Credential.ParticipantID)
		assert.Equal(t, eventID.String(), resp.Credential.EventID)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/credentials/verify?hash="+strings.Repeat("1f", 32), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"NotFound"`)
}
