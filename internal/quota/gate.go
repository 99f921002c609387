// Package quota admits billable operations against a tenant's plan ceilings
// or prepaid credit balance.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"certifier/internal/platform/tracer"
	"certifier/internal/tenant/models"
	tenantstore "certifier/internal/tenant/store"
	id "certifier/pkg/domain"
	dErrors "certifier/pkg/domain-errors"
	"certifier/pkg/platform/sentinel"
)

// Kind is a billable operation.
type Kind string

const (
	KindCredentialIssue Kind = "credential-issue"
	KindEventCreate     Kind = "events-created"
	KindParticipantAdd  Kind = "participants-added"
)

func (k Kind) counter() models.Counter {
	switch k {
	case KindEventCreate:
		return models.CounterEventsCreated
	case KindParticipantAdd:
		return models.CounterParticipantsAdded
	default:
		return models.CounterCredentialsIssued
	}
}

// Admission is the outcome of Admit. Remaining is -1 when the ceiling is
// unlimited. Credit is set when a prepaid credit was consumed.
type Admission struct {
	OK        bool
	Reason    dErrors.Code
	Message   string
	Deducted  int64
	Remaining int64
	Credit    bool
}

// Err returns the rejection as a domain error, or nil when admitted.
func (a Admission) Err() error {
	if a.OK {
		return nil
	}
	return dErrors.New(a.Reason, a.Message)
}

func reject(code dErrors.Code, msg string) Admission {
	return Admission{OK: false, Reason: code, Message: msg}
}

// Gate is the admission controller.
type Gate struct {
	tenants tenantstore.Store
	plans   *Catalog
	now     func() time.Time
	logger  *slog.Logger
	metrics *Metrics
	tracer  tracer.Tracer
}

type Option func(*Gate)

func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(g *Gate) {
		g.tracer = t
	}
}

func NewGate(tenants tenantstore.Store, plans *Catalog, opts ...Option) *Gate {
	g := &Gate{
		tenants: tenants,
		plans:   plans,
		now:     time.Now,
		logger:  slog.Default(),
		tracer:  tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit decides whether tenantID may perform one operation of kind and, when
// it may, records the consumption atomically. A non-nil error means the gate
// could not decide; a rejection is an Admission with OK false.
func (g *Gate) Admit(ctx context.Context, tenantID id.TenantID, kind Kind) (adm Admission, err error) {
	ctx, span := g.tracer.Start(ctx, tracer.SpanAdmit,
		tracer.String(tracer.AttrTenantID, tenantID.String()),
		tracer.String("quota.kind", string(kind)),
	)
	defer func() {
		span.SetAttributes(tracer.Bool("quota.admitted", adm.OK))
		span.End(err)
	}()

	t, err := g.current(ctx, tenantID)
	if err != nil {
		return Admission{}, err
	}

	switch t.BillingMode {
	case models.BillingPrepaidCredits:
		adm, err = g.admitPrepaid(ctx, t, kind)
	case models.BillingSubscription:
		adm, err = g.admitSubscription(ctx, t, kind)
	default:
		adm = reject(dErrors.CodeBillingNotConfigured, "billing is not configured for this tenant")
	}
	if err != nil {
		return Admission{}, err
	}

	if g.metrics != nil {
		g.metrics.ObserveAdmission(kind, adm)
	}
	if !adm.OK {
		g.logger.InfoContext(ctx, "quota rejected operation",
			"tenant_id", tenantID.String(),
			"kind", string(kind),
			"reason", string(adm.Reason),
		)
	}
	return adm, nil
}

// Release gives back what a successful admission consumed. Callers use it when
// the admitted operation failed before leaving any durable record.
func (g *Gate) Release(ctx context.Context, tenantID id.TenantID, kind Kind, adm Admission) error {
	if !adm.OK {
		return nil
	}
	if err := g.tenants.ReleaseUsage(ctx, tenantID, kind.counter(), adm.Credit); err != nil {
		return translate(err, "release usage")
	}
	if g.metrics != nil {
		g.metrics.Released.WithLabelValues(string(kind)).Inc()
	}
	g.logger.InfoContext(ctx, "quota released",
		"tenant_id", tenantID.String(),
		"kind", string(kind),
		"credit_refunded", adm.Credit,
	)
	return nil
}

// current loads the tenant and rolls its billing period forward if it has ended.
func (g *Gate) current(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	t, err := g.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, translate(err, "load tenant")
	}
	now := g.now()
	if !t.PeriodExpired(now) {
		return t, nil
	}

	start, end := t.NextPeriod(now)
	rolled, err := g.tenants.RollPeriod(ctx, tenantID, t.PeriodEnd, start, end)
	if err != nil {
		return nil, translate(err, "roll billing period")
	}
	if rolled {
		g.logger.InfoContext(ctx, "billing period rolled over",
			"tenant_id", tenantID.String(),
			"period_end", end,
		)
	}
	// Another admission may have rolled concurrently; reload either way.
	t, err = g.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, translate(err, "load tenant")
	}
	return t, nil
}

func (g *Gate) admitPrepaid(ctx context.Context, t *models.Tenant, kind Kind) (Admission, error) {
	if kind != KindCredentialIssue {
		if _, err := g.tenants.IncrementUsage(ctx, t.ID, kind.counter(), Unlimited); err != nil {
			return Admission{}, translate(err, "record usage")
		}
		return Admission{OK: true, Remaining: Unlimited}, nil
	}

	remaining, err := g.tenants.ConsumeCredit(ctx, t.ID)
	if errors.Is(err, sentinel.ErrExhausted) {
		adm := reject(dErrors.CodeInsufficientCredits, "insufficient credits to issue a credential")
		return adm, nil
	}
	if err != nil {
		return Admission{}, translate(err, "consume credit")
	}
	return Admission{OK: true, Deducted: 1, Remaining: remaining, Credit: true}, nil
}

func (g *Gate) admitSubscription(ctx context.Context, t *models.Tenant, kind Kind) (Admission, error) {
	if !t.SubscriptionStatus.Usable() {
		return reject(dErrors.CodeBillingNotConfigured,
			fmt.Sprintf("subscription is %s", orUnset(string(t.SubscriptionStatus)))), nil
	}
	plan, err := g.plans.Plan(t.PlanID)
	if err != nil {
		return reject(dErrors.CodeBillingNotConfigured, "tenant has no valid plan"), nil
	}

	counter := kind.counter()
	limit := plan.Limit(counter)
	value, err := g.tenants.IncrementUsage(ctx, t.ID, counter, limit)
	if errors.Is(err, sentinel.ErrExhausted) {
		return reject(dErrors.CodeLimitReached,
			fmt.Sprintf("plan %s allows %d %s per period", plan.ID, limit, counter)), nil
	}
	if err != nil {
		return Admission{}, translate(err, "record usage")
	}

	remaining := Unlimited
	if limit >= 0 {
		remaining = limit - value
	}
	return Admission{OK: true, Deducted: 1, Remaining: remaining}, nil
}

// Usage is the billing view of a tenant.
type Usage struct {
	Tenant *models.Tenant
	Plan   *Plan
}

// Usage returns the tenant's current billing state, rolling the period first.
func (g *Gate) Usage(ctx context.Context, tenantID id.TenantID) (*Usage, error) {
	t, err := g.current(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	u := &Usage{Tenant: t}
	if t.BillingMode == models.BillingSubscription {
		if p, err := g.plans.Plan(t.PlanID); err == nil {
			u.Plan = p
		}
	}
	return u, nil
}

func translate(err error, action string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "tenant not found")
	}
	return dErrors.Wrap(err, dErrors.CodeUnknown, "failed to "+action)
}

func orUnset(s string) string {
	if s == "" {
		return "not set"
	}
	return s
}
