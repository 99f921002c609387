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
	"github.com/stretchr/testify/suite"

	"certifier/internal/catalog/service"
	"certifier/internal/catalog/store"
	"certifier/internal/quota"
	tenantmodels "certifier/internal/tenant/models"
	tenantstore "certifier/internal/tenant/store"
	id "certifier/pkg/domain"
	"certifier/pkg/platform/httputil"
	"certifier/pkg/requestcontext"
)

type HandlerSuite struct {
	suite.Suite
	router http.Handler
	tenant id.TenantID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	tenants := tenantstore.NewInMemory()
	s.tenant = id.NewTenantID()
	s.Require().NoError(tenants.Create(context.Background(), &tenantmodels.Tenant{
		ID:                 s.tenant,
		Name:               "Acme",
		Status:             tenantmodels.StatusActive,
		BillingMode:        tenantmodels.BillingSubscription,
		PlanID:             "free",
		SubscriptionStatus: tenantmodels.SubscriptionActive,
		PeriodEnd:          time.Now().Add(24 * time.Hour),
	}))
	catalog := store.NewInMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(catalog, catalog, catalog, quota.NewGate(tenants, quota.DefaultCatalog()), service.WithLogger(logger))

	r := chi.NewRouter()
	New(svc, logger).Register(r)
	s.router = r
}

func (s *HandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(requestcontext.WithTenantID(req.Context(), s.tenant))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) TestEventAndEnrollment() {
	rec := s.do(http.MethodPost, "/events", `{"title":"Go Summit","eventCode":"gs25","startDate":"2020-01-01T09:00:00Z","endDate":"2020-01-02T17:00:00Z"}`)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var event EventResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&event))
	s.Equal("completed", event.Status)
	s.Equal("GS25", event.Code)

	rec = s.do(http.MethodPost, "/participants", `{"name":"Ada","email":"ada@example.test","skills":["go"," go ","sql"]}`)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var p ParticipantResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&p))
	s.Equal([]string{"go", "sql"}, p.Skills)

	rec = s.do(http.MethodPost, "/events/"+event.ID+"/participants", `{"participantId":"`+p.ID+`"}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var enrolled EventResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&enrolled))
	s.Equal([]string{p.ID}, enrolled.ParticipantIDs)

	rec = s.do(http.MethodGet, "/events/"+event.ID, "")
	s.Equal(http.StatusOK, rec.Code)
}

func (s *HandlerSuite) TestCreateEvent_QuotaRejection() {
	for i := 0; i < 3; i++ {
		s.Require().Equal(http.StatusCreated, s.do(http.MethodPost, "/events", `{"title":"Meetup"}`).Code)
	}
	rec := s.do(http.MethodPost, "/events", `{"title":"Meetup"}`)
	s.Equal(http.StatusPaymentRequired, rec.Code)

	var body httputil.ErrorResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&body))
	s.Equal("LimitReached", body.Code)
	s.True(body.RequiresUpgrade)
}

func (s *HandlerSuite) TestValidationErrors() {
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/events", `{"title":"  "}`).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/participants", `{"name":"Ada","email":"nope"}`).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/templates", `{"name":"T","type":"trophy"}`).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/events/not-a-uuid", "").Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/templates/"+id.NewTemplateID().String(), "").Code)
}

func (s *HandlerSuite) TestTemplateVersioning() {
	rec := s.do(http.MethodPost, "/templates", `{"name":"Classic","type":"Certificate","design":{"width":1200,"height":800}}`)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var tpl TemplateResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&tpl))
	s.Equal("certificate", tpl.Type)
	s.Equal(1, tpl.Version)

	rec = s.do(http.MethodPut, "/templates/"+tpl.ID, `{"design":{"width":600,"height":400}}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var updated TemplateResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&updated))
	s.Equal(2, updated.Version)
	s.Require().Len(updated.History, 1)
	s.Equal(1200, updated.History[0].Design.Width)
}
