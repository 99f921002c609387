package testutil

import (
	"time"

	"github.com/google/uuid"

	credmodels "certifier/internal/credential/models"
	"certifier/internal/fingerprint"
	"certifier/internal/render"
	tenantmodels "certifier/internal/tenant/models"
	id "certifier/pkg/domain"
)

// TestIDs provides convenient pre-generated IDs for tests.
// Use these for deterministic test data.
var TestIDs = struct {
	TenantID1      id.TenantID
	TenantID2      id.TenantID
	EventID1       id.EventID
	ParticipantID1 id.ParticipantID
	ParticipantID2 id.ParticipantID
}{
	TenantID1:      id.TenantID(uuid.MustParse("aaaa0000-0000-0000-0000-000000000001")),
	TenantID2:      id.TenantID(uuid.MustParse("aaaa0000-0000-0000-0000-000000000002")),
	EventID1:       id.EventID(uuid.MustParse("eeee0000-0000-0000-0000-000000000001")),
	ParticipantID1: id.ParticipantID(uuid.MustParse("11111111-1111-1111-1111-111111111111")),
	ParticipantID2: id.ParticipantID(uuid.MustParse("22222222-2222-2222-2222-222222222222")),
}

// TenantBuilder provides a fluent interface for building test tenants.
type TenantBuilder struct {
	tenant *tenantmodels.Tenant
}

// NewTenantBuilder creates an active subscription tenant on the free plan with
// a period that ends in 30 days.
func NewTenantBuilder() *TenantBuilder {
	now := time.Now()
	return &TenantBuilder{
		tenant: &tenantmodels.Tenant{
			ID:                 id.NewTenantID(),
			Name:               "Test Tenant",
			Status:             tenantmodels.StatusActive,
			BillingMode:        tenantmodels.BillingSubscription,
			PlanID:             "free",
			SubscriptionStatus: tenantmodels.SubscriptionActive,
			PeriodStart:        now,
			PeriodEnd:          now.AddDate(0, 0, 30),
			CreatedAt:          now,
			UpdatedAt:          now,
		},
	}
}

func (b *TenantBuilder) WithID(tenantID id.TenantID) *TenantBuilder {
	b.tenant.ID = tenantID
	return b
}

func (b *TenantBuilder) WithPlan(planID string) *TenantBuilder {
	b.tenant.PlanID = planID
	return b
}

// Prepaid switches the tenant to prepaid credits with the given balance.
func (b *TenantBuilder) Prepaid(credits int64) *TenantBuilder {
	b.tenant.BillingMode = tenantmodels.BillingPrepaidCredits
	b.tenant.Credits = credits
	return b
}

func (b *TenantBuilder) WithSubscriptionStatus(status tenantmodels.SubscriptionStatus) *TenantBuilder {
	b.tenant.SubscriptionStatus = status
	return b
}

func (b *TenantBuilder) WithPeriodUsage(usage tenantmodels.Usage) *TenantBuilder {
	b.tenant.PeriodUsage = usage
	return b
}

func (b *TenantBuilder) Unconfigured() *TenantBuilder {
	b.tenant.BillingMode = ""
	b.tenant.PlanID = ""
	return b
}

func (b *TenantBuilder) Build() *tenantmodels.Tenant {
	return b.tenant
}

// CredentialBuilder provides a fluent interface for building draft credentials
// with a valid, unique fingerprint.
type CredentialBuilder struct {
	credential *credmodels.Credential
}

func NewCredentialBuilder() *CredentialBuilder {
	now := time.Now()
	nonce, _ := fingerprint.NewNonce()
	c := &credmodels.Credential{
		ID:            id.NewCredentialID(),
		TenantID:      TestIDs.TenantID1,
		ParticipantID: TestIDs.ParticipantID1,
		EventID:       TestIDs.EventID1,
		Title:         "Certificate of Completion",
		Type:          credmodels.TypeCertificate,
		Source:        credmodels.SourceDesign,
		Status:        credmodels.StatusDraft,
		ParticipantData: render.Bundle{
			render.KeyParticipantName: "Ada Lovelace",
			render.KeyEventTitle:      "E1",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.Fingerprint = fingerprint.Compute(fingerprint.Input{
		ParticipantRef: c.ParticipantID.String(),
		EventRef:       c.EventID.String(),
		Title:          c.Title,
		Type:           string(c.Type),
		IssuedAt:       now,
		Nonce:          nonce,
	})
	c.VerificationURL = "https://example.test/verify/" + c.Fingerprint
	return &CredentialBuilder{credential: c}
}

func (b *CredentialBuilder) WithTenantID(tenantID id.TenantID) *CredentialBuilder {
	b.credential.TenantID = tenantID
	return b
}

func (b *CredentialBuilder) WithEventID(eventID id.EventID) *CredentialBuilder {
	b.credential.EventID = eventID
	return b
}

func (b *CredentialBuilder) WithParticipantID(participantID id.ParticipantID) *CredentialBuilder {
	b.credential.ParticipantID = participantID
	return b
}

func (b *CredentialBuilder) WithFingerprint(fp string) *CredentialBuilder {
	b.credential.Fingerprint = fp
	return b
}

func (b *CredentialBuilder) CreatedAt(t time.Time) *CredentialBuilder {
	b.credential.CreatedAt = t
	b.credential.UpdatedAt = t
	return b
}

func (b *CredentialBuilder) Build() *credmodels.Credential {
	return b.credential
}
