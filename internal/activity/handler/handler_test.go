package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certifier/internal/activity"
	"certifier/internal/activity/store"
	id "certifier/pkg/domain"
	"certifier/pkg/requestcontext"
)

func TestHandleList(t *testing.T) {
	ctx := context.Background()
	entries := store.NewInMemory()
	tenant := id.NewTenantID()
	credential := id.NewCredentialID()
	require.NoError(t, entries.Append(ctx, &activity.Entry{
		ID: id.NewActivityID(), TenantID: tenant, Kind: activity.KindCredentialIssued,
		Actor: "admin", CredentialID: credential, CreatedAt: time.Now().Add(-time.Minute),
	}))
	require.NoError(t, entries.Append(ctx, &activity.Entry{
		ID: id.NewActivityID(), TenantID: tenant, Kind: activity.KindCredentialVerified,
		Actor: "198.51.100.4", CredentialID: credential, CreatedAt: time.Now(),
		Details: map[string]any{"browser": "Firefox"},
	}))

	r := chi.NewRouter()
	New(entries, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)

	call := func(query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/activity"+query, nil)
		req = req.WithContext(requestcontext.WithTenantID(req.Context(), tenant))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := call("?kind=credential_verified&credentialId=" + credential.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var body ListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "198.51.100.4", body.Entries[0].Actor)
	assert.Equal(t, "Firefox", body.Entries[0].Details["browser"])

	rec = call("?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	body = ListResponse{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 2, body.Total)
	assert.Len(t, body.Entries, 1)
	assert.Equal(t, "credential_verified", body.Entries[0].Kind)

	assert.Equal(t, http.StatusBadRequest, call("?kind=bogus").Code)
	assert.Equal(t, http.StatusBadRequest, call("?limit=abc").Code)
}
