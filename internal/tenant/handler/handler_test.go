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

	"certifier/internal/quota"
	"certifier/internal/tenant/models"
	tenantstore "certifier/internal/tenant/store"
	id "certifier/pkg/domain"
	"certifier/pkg/requestcontext"
)

func newRouter(t *testing.T) (http.Handler, id.TenantID) {
	t.Helper()
	store := tenantstore.NewInMemory()
	tenant := &models.Tenant{
		ID:                 id.NewTenantID(),
		Name:               "Acme",
		Status:             models.StatusActive,
		BillingMode:        models.BillingSubscription,
		PlanID:             "free",
		SubscriptionStatus: models.SubscriptionActive,
		PeriodEnd:          time.Now().Add(24 * time.Hour),
		PeriodUsage:        models.Usage{EventsCreated: 2},
	}
	require.NoError(t, store.Create(context.Background(), tenant))

	h := New(quota.NewGate(store, quota.DefaultCatalog()), slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.Register(r)
	return r, tenant.ID
}

func TestHandleUsage(t *testing.T) {
	router, tenantID := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/tenant/usage", nil)
	req = req.WithContext(requestcontext.WithTenantID(req.Context(), tenantID))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body UsageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "subscription", body.BillingMode)
	assert.Equal(t, int64(2), body.Period.EventsCreated)
	assert.Equal(t, int64(3), body.Limits["events-created"])
}

func TestHandleUsage_RequiresTenant(t *testing.T) {
	router, _ := newRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenant/usage", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleUsage_UnknownTenant(t *testing.T) {
	router, _ := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/tenant/usage", nil)
	req = req.WithContext(requestcontext.WithTenantID(req.Context(), id.NewTenantID()))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
