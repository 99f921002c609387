// Package verification answers the public question "is this credential
// real?" for a fingerprint.
package verification

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"certifier/internal/activity"
	"certifier/internal/credential/models"
	"certifier/internal/fingerprint"
	"certifier/internal/platform/tracer"
	"certifier/internal/render"
	"certifier/internal/webhook"
	id "certifier/pkg/domain"
	dErrors "certifier/pkg/domain-errors"
	"certifier/pkg/platform/sentinel"
	"certifier/pkg/requestcontext"
)

// Finder looks credentials up by fingerprint.
type Finder interface {
	FindByFingerprint(ctx context.Context, fp string) (*models.Credential, error)
}

type ActivityRecorder interface {
	Record(ctx context.Context, tenantID id.TenantID, kind activity.Kind, credentialID id.CredentialID, actor string, details map[string]any)
}

type WebhookPublisher interface {
	Publish(ctx context.Context, tenantID id.TenantID, kind webhook.EventKind, data any)
}

// View is the sanitized, public projection of a credential. Names come from
// the participant-data snapshot taken at issuance, so the view matches what
// was printed.
type View struct {
	Valid           bool
	Status          models.Status
	Title           string
	Type            models.Type
	ParticipantID   id.ParticipantID
	EventID         id.EventID
	ParticipantName string
	EventTitle      string
	IssuedAt        *time.Time
	RevokedAt       *time.Time
	Fingerprint     string
	VerificationURL string
	QRCode          string
}

type Service struct {
	credentials Finder
	activity    ActivityRecorder
	webhooks    WebhookPublisher
	logger      *slog.Logger
	metrics     *Metrics
	tracer      tracer.Tracer
}

type Option func(*Service)

func WithActivity(r ActivityRecorder) Option {
	return func(s *Service) {
		s.activity = r
	}
}

func WithWebhooks(p WebhookPublisher) Option {
	return func(s *Service) {
		s.webhooks = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(credentials Finder, opts ...Option) *Service {
	s := &Service{
		credentials: credentials,
		logger:      slog.Default(),
		tracer:      tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify resolves a fingerprint. It never mutates the credential. Only issued
// and revoked credentials are visible; draft, generating and failed ones
// answer NotFound like an unknown fingerprint. Every visible lookup is
// recorded as credential_verified and published as credential.verified.
func (s *Service) Verify(ctx context.Context, hash string) (view *View, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanVerify)
	outcome := outcomeError
	defer func() {
		s.metrics.lookup(outcome)
		span.SetAttributes(tracer.String(tracer.AttrOutcome, outcome))
		span.End(err)
	}()

	fp, err := fingerprint.Parse(hash)
	if err != nil {
		outcome = outcomeMalformed
		return nil, err
	}
	cred, err := s.credentials.FindByFingerprint(ctx, fp)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			outcome = outcomeNotFound
			s.logger.InfoContext(ctx, "verification lookup",
				"outcome", outcomeNotFound,
				"client_ip", requestcontext.ClientIP(ctx),
			)
			return nil, dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnknown, "failed to look up credential")
	}

	span.SetAttributes(tracer.String(tracer.AttrCredentialID, cred.ID.String()))
	switch cred.Status {
	case models.StatusIssued:
		outcome = outcomeValid
	case models.StatusRevoked:
		outcome = outcomeRevoked
	default:
		outcome = outcomeNotIssued
		s.logger.InfoContext(ctx, "verification lookup",
			"outcome", outcomeNotIssued,
			"credential_id", cred.ID.String(),
			"status", string(cred.Status),
			"client_ip", requestcontext.ClientIP(ctx),
		)
		return nil, dErrors.New(dErrors.CodeNotFound, "credential not found")
	}
	view = toView(cred)

	client := DescribeClient(requestcontext.UserAgent(ctx))
	s.logger.InfoContext(ctx, "verification lookup",
		"outcome", outcome,
		"credential_id", cred.ID.String(),
		"client_ip", requestcontext.ClientIP(ctx),
		"client", client.Display(),
	)
	if s.activity != nil {
		s.activity.Record(ctx, cred.TenantID, activity.KindCredentialVerified, cred.ID, requestcontext.Subject(ctx), map[string]any{
			"outcome":  outcome,
			"ip":       requestcontext.ClientIP(ctx),
			"browser":  client.Browser,
			"os":       client.OS,
			"platform": client.Platform,
			"bot":      client.Bot,
		})
	}
	if s.webhooks != nil {
		s.webhooks.Publish(ctx, cred.TenantID, webhook.EventCredentialVerified, cred.Summary())
	}
	return view, nil
}

func toView(c *models.Credential) *View {
	return &View{
		Valid:           c.Status == models.StatusIssued,
		Status:          c.Status,
		Title:           c.Title,
		Type:            c.Type,
		ParticipantID:   c.ParticipantID,
		EventID:         c.EventID,
		ParticipantName: c.ParticipantData[render.KeyParticipantName],
		EventTitle:      c.ParticipantData[render.KeyEventTitle],
		IssuedAt:        c.IssuedAt,
		RevokedAt:       c.RevokedAt,
		Fingerprint:     c.Fingerprint,
		VerificationURL: c.VerificationURL,
		QRCode:          c.QRCode,
	}
}
