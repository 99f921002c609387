// Package seeder populates a fresh deployment with demo tenants, an event,
// participants and a template so the issuance API can be exercised locally.
package seeder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	catalogmodels "certifier/internal/catalog/models"
	catalogservice "certifier/internal/catalog/service"
	"certifier/internal/render"
	tenantmodels "certifier/internal/tenant/models"
	id "certifier/pkg/domain"
	"certifier/pkg/platform/sentinel"
)

// Fixed demo tenant IDs so tokens minted by cmd/tokengen survive restarts.
var (
	DemoSubscriptionTenantID = id.TenantID(uuid.MustParse("7a1c2f4e-0d55-4c36-9c7e-3f1f0a6b9e01"))
	DemoPrepaidTenantID      = id.TenantID(uuid.MustParse("7a1c2f4e-0d55-4c36-9c7e-3f1f0a6b9e02"))
)

// TenantStore creates tenants.
type TenantStore interface {
	Create(ctx context.Context, t *tenantmodels.Tenant) error
}

// Catalog is the subset of the catalog service the seeder drives.
type Catalog interface {
	CreateEvent(ctx context.Context, tenantID id.TenantID, cmd catalogservice.CreateEventCommand) (*catalogmodels.Event, error)
	CreateParticipant(ctx context.Context, tenantID id.TenantID, cmd catalogservice.CreateParticipantCommand) (*catalogmodels.Participant, error)
	EnrollParticipant(ctx context.Context, tenantID id.TenantID, eventID id.EventID, participantID id.ParticipantID) (*catalogmodels.Event, error)
	CreateTemplate(ctx context.Context, tenantID id.TenantID, cmd catalogservice.CreateTemplateCommand) (*catalogmodels.Template, error)
}

// Seeder populates stores with demo data.
type Seeder struct {
	tenants TenantStore
	catalog Catalog
	logger  *slog.Logger
	now     func() time.Time
}

func New(tenants TenantStore, catalog Catalog, logger *slog.Logger) *Seeder {
	return &Seeder{
		tenants: tenants,
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}
}

// SeedAll creates both demo tenants and their catalog. A tenant that already
// exists is left untouched, so seeding a persistent database twice is a no-op.
func (s *Seeder) SeedAll(ctx context.Context) error {
	s.logger.InfoContext(ctx, "seeding demo data")

	tenants := []*tenantmodels.Tenant{
		s.demoTenant(DemoSubscriptionTenantID, "Acme Academy", tenantmodels.BillingSubscription, "starter", 0),
		s.demoTenant(DemoPrepaidTenantID, "Pay-as-you-go Workshops", tenantmodels.BillingPrepaidCredits, "", 25),
	}
	for _, t := range tenants {
		err := s.tenants.Create(ctx, t)
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			s.logger.InfoContext(ctx, "demo tenant already present", "tenant_id", t.ID)
			continue
		}
		if err != nil {
			return fmt.Errorf("seed tenant %s: %w", t.Name, err)
		}
		if err := s.seedCatalog(ctx, t.ID); err != nil {
			return fmt.Errorf("seed catalog for %s: %w", t.Name, err)
		}
	}

	s.logger.InfoContext(ctx, "demo data seeded",
		"subscription_tenant_id", DemoSubscriptionTenantID,
		"prepaid_tenant_id", DemoPrepaidTenantID,
	)
	return nil
}

func (s *Seeder) demoTenant(tenantID id.TenantID, name string, mode tenantmodels.BillingMode, plan string, credits int64) *tenantmodels.Tenant {
	now := s.now().UTC()
	t := &tenantmodels.Tenant{
		ID:          tenantID,
		Name:        name,
		Status:      tenantmodels.StatusActive,
		BillingMode: mode,
		PlanID:      plan,
		Credits:     credits,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if mode == tenantmodels.BillingSubscription {
		t.SubscriptionStatus = tenantmodels.SubscriptionActive
		t.PeriodStart = now
		t.PeriodEnd = now.AddDate(0, 1, 0)
	}
	return t
}

func (s *Seeder) seedCatalog(ctx context.Context, tenantID id.TenantID) error {
	start := s.now().UTC().AddDate(0, 0, -7).Truncate(24 * time.Hour)
	end := start.AddDate(0, 0, 2)
	event, err := s.catalog.CreateEvent(ctx, tenantID, catalogservice.CreateEventCommand{
		Title:       "Go Concurrency Workshop",
		Description: "Two days of channels, contexts and errgroups.",
		StartDate:   &start,
		EndDate:     &end,
		Capacity:    30,
		Category:    "workshop",
		Code:        "GOCONC-1",
	})
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}

	people := []catalogservice.CreateParticipantCommand{
		{Name: "Ada Lovelace", Email: "ada@example.com", Skills: []string{"analysis", "programming"}},
		{Name: "Grace Hopper", Email: "grace@example.com", Skills: []string{"compilers"}},
		{Name: "Alan Turing", Email: "alan@example.com", Skills: []string{"computability", "cryptography"}},
	}
	for _, cmd := range people {
		p, err := s.catalog.CreateParticipant(ctx, tenantID, cmd)
		if err != nil {
			return fmt.Errorf("create participant %s: %w", cmd.Email, err)
		}
		if _, err := s.catalog.EnrollParticipant(ctx, tenantID, event.ID, p.ID); err != nil {
			return fmt.Errorf("enroll participant %s: %w", cmd.Email, err)
		}
	}

	_, err = s.catalog.CreateTemplate(ctx, tenantID, catalogservice.CreateTemplateCommand{
		Name:   "Classic certificate",
		Type:   "certificate",
		Design: classicDesign(),
	})
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func classicDesign() render.Design {
	return render.Design{
		Width:  1200,
		Height: 850,
		Background: render.Background{
			Type:           render.BackgroundGradient,
			Color:          "#fdfbf5",
			SecondaryColor: "#efe6cf",
		},
		Elements: []render.Element{
			{
				ID: "frame", Type: render.ElementShape, X: 30, Y: 30, Width: 1140, Height: 790,
				Shape: &render.ShapeProps{Kind: render.ShapeRectangle, Stroke: "#8a6d3b", StrokeWidth: 6, CornerRadius: 12},
			},
			{
				ID: "heading", Type: render.ElementText, X: 100, Y: 120, Width: 1000, Height: 80, ZIndex: 1,
				Text: &render.TextProps{Content: "{{credentialTitle}}", FontSize: 56, FontWeight: "bold", Align: "center", Color: "#3b2f1e"},
			},
			{
				ID: "name", Type: render.ElementText, X: 100, Y: 320, Width: 1000, Height: 90, ZIndex: 1,
				Text: &render.TextProps{Content: "{{participantName}}", FontSize: 64, FontStyle: "italic", Align: "center", Color: "#1f1a12"},
			},
			{
				ID: "event", Type: render.ElementText, X: 100, Y: 450, Width: 1000, Height: 60, ZIndex: 1,
				Text: &render.TextProps{Content: "for completing {{eventTitle}} on {{eventDate}}", FontSize: 28, Align: "center", Color: "#3b2f1e"},
			},
			{
				ID: "issued", Type: render.ElementText, X: 100, Y: 700, Width: 600, Height: 40, ZIndex: 1,
				Text: &render.TextProps{Content: "Issued {{issueDate}}", FontSize: 20, Color: "#5c4a2e"},
			},
		},
		Content: render.Content{
			Placeholders: []string{render.KeyCredentialTitle, render.KeyParticipantName, render.KeyEventTitle, render.KeyEventDate, render.KeyIssueDate},
		},
	}
}
