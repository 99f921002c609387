package verification

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"certifier/internal/activity"
	"certifier/internal/credential/models"
	credstore "certifier/internal/credential/store"
	"certifier/internal/render"
	"certifier/internal/webhook"
	id "certifier/pkg/domain"
	dErrors "certifier/pkg/domain-errors"
	"certifier/pkg/requestcontext"
	pkgtestutil "certifier/pkg/testutil"
)

type capture struct {
	mu       sync.Mutex
	activity []map[string]any
	actors   []string
	events   []webhook.EventKind
}

func (c *capture) Record(_ context.Context, _ id.TenantID, kind activity.Kind, _ id.CredentialID, actor string, details map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if kind != activity.KindCredentialVerified {
		panic("unexpected activity kind " + string(kind))
	}
	c.activity = append(c.activity, details)
	c.actors = append(c.actors, actor)
}

func (c *capture) Publish(_ context.Context, _ id.TenantID, kind webhook.EventKind, _ any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, kind)
}

type ServiceSuite struct {
	suite.Suite
	store   *credstore.InMemory
	capture *capture
	metrics *Metrics
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = credstore.NewInMemory()
	s.capture = &capture{}
	s.metrics = NewMetrics(prometheus.NewRegistry())
	s.service = New(s.store,
		WithActivity(s.capture),
		WithWebhooks(s.capture),
		WithMetrics(s.metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.ctx = requestcontext.WithClientMetadata(context.Background(), "203.0.113.7",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
}

// issued stores a credential and walks it to issued.
func (s *ServiceSuite) issued() *models.Credential {
	draft := pkgtestutil.NewCredentialBuilder().Build()
	draft.ParticipantData = render.Bundle{render.KeyParticipantName: "Ada Lovelace", render.KeyEventTitle: "E1"}
	s.Require().NoError(s.store.Create(s.ctx, draft))
	now := time.Now()
	_, err := s.store.Transition(s.ctx, draft.ID, models.Transition{From: models.StatusDraft, To: models.StatusGenerating, At: now})
	s.Require().NoError(err)
	_, err = s.store.AttachArtifact(s.ctx, draft.ID, render.FormatPNG, "https://objects.test/x.png")
	s.Require().NoError(err)
	cred, err := s.store.Transition(s.ctx, draft.ID, models.Transition{From: models.StatusGenerating, To: models.StatusIssued, At: now})
	s.Require().NoError(err)
	return cred
}

func (s *ServiceSuite) TestVerify_IssuedCredential() {
	cred := s.issued()

	view, err := s.service.Verify(s.ctx, strings.ToUpper(cred.Fingerprint))
	s.Require().NoError(err)
	s.True(view.Valid)
	s.Equal(cred.ParticipantID, view.ParticipantID)
	s.Equal(cred.EventID, view.EventID)
	s.Equal(cred.Title, view.Title)
	s.Equal(cred.Type, view.Type)
	s.Equal("E1", view.EventTitle)
	s.Equal("Ada Lovelace", view.ParticipantName)
	s.Nil(view.RevokedAt)

	s.Require().Len(s.capture.activity, 1)
	s.Equal("", s.capture.actors[0], "the recorder falls back to the client IP")
	s.Equal("valid", s.capture.activity[0]["outcome"])
	s.Equal("203.0.113.7", s.capture.activity[0]["ip"])
	s.Equal("chrome", s.capture.activity[0]["browser"])
	s.Equal([]webhook.EventKind{webhook.EventCredentialVerified}, s.capture.events)
	s.InDelta(1, testutil.ToFloat64(s.metrics.Lookups.WithLabelValues(outcomeValid)), 0)
}

func (s *ServiceSuite) TestVerify_RevokedCredentialShowsTimestamp() {
	cred := s.issued()
	_, err := s.store.Transition(s.ctx, cred.ID, models.Transition{From: models.StatusIssued, To: models.StatusRevoked, At: time.Now()})
	s.Require().NoError(err)

	view, err := s.service.Verify(s.ctx, cred.Fingerprint)
	s.Require().NoError(err)
	s.False(view.Valid)
	s.Equal(models.StatusRevoked, view.Status)
	s.NotNil(view.RevokedAt)
	s.Equal("revoked", s.capture.activity[0]["outcome"])
}

func (s *ServiceSuite) TestVerify_TamperedFingerprintRecordsNothing() {
	cred := s.issued()
	tampered := []byte(cred.Fingerprint)
	if tampered[0] == 'a' {
		tampered[0] = 'b'
	} else {
		tampered[0] = 'a'
	}

	_, err := s.service.Verify(s.ctx, string(tampered))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Empty(s.capture.activity)
	s.Empty(s.capture.events)
	s.InDelta(1, testutil.ToFloat64(s.metrics.Lookups.WithLabelValues(outcomeNotFound)), 0)
}

func (s *ServiceSuite) TestVerify_UnissuedCredentialsAreNotFound() {
	draft := pkgtestutil.NewCredentialBuilder().Build()
	s.Require().NoError(s.store.Create(s.ctx, draft))

	_, err := s.service.Verify(s.ctx, draft.Fingerprint)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "draft")

	now := time.Now()
	_, err = s.store.Transition(s.ctx, draft.ID, models.Transition{From: models.StatusDraft, To: models.StatusGenerating, At: now})
	s.Require().NoError(err)
	_, err = s.service.Verify(s.ctx, draft.Fingerprint)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "generating")

	_, err = s.store.Transition(s.ctx, draft.ID, models.Transition{
		From: models.StatusGenerating, To: models.StatusFailed, At: now,
		FailureCode: string(dErrors.CodeRenderFailed), FailureMessage: "asset unreachable",
	})
	s.Require().NoError(err)
	_, err = s.service.Verify(s.ctx, draft.Fingerprint)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "failed")

	s.Empty(s.capture.activity)
	s.Empty(s.capture.events)
	s.InDelta(3, testutil.ToFloat64(s.metrics.Lookups.WithLabelValues(outcomeNotIssued)), 0)
}

func (s *ServiceSuite) TestVerify_MalformedHash() {
	_, err := s.service.Verify(s.ctx, "not-a-hash")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestDescribeClient(t *testing.T) {
	c := DescribeClient("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1")
	assert.Equal(t, "safari", c.Browser)
	assert.Equal(t, "17", c.MajorVersion)
	assert.Equal(t, "mobile", c.Platform)
	assert.False(t, c.Bot)

	bot := DescribeClient("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
	assert.True(t, bot.Bot)

	empty := DescribeClient("")
	assert.Equal(t, "unknown on unknown", empty.Display())
}
