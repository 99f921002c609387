package webhook_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"certifier/internal/webhook"
	"certifier/internal/webhook/store"
	id "certifier/pkg/domain"
	dErrors "certifier/pkg/domain-errors"
	"certifier/pkg/secrets"
)

type ServiceSuite struct {
	suite.Suite
	store   *store.InMemory
	sealer  *secrets.Sealer
	service *webhook.Service
	tenant  id.TenantID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	sealer, err := secrets.NewSealer("")
	s.Require().NoError(err)
	s.sealer = sealer
	s.service = webhook.NewService(s.store, sealer, secrets.Generate, discardLogger())
	s.tenant = id.NewTenantID()
}

func (s *ServiceSuite) TestRegisterSealsSecretAndDefaultsToAllEvents() {
	sub, secret, err := s.service.Register(context.Background(), s.tenant, webhook.RegisterCommand{URL: "https://example.test/hook"})
	s.Require().NoError(err)
	s.NotEmpty(secret)
	s.True(sub.Enabled)
	s.ElementsMatch(webhook.AllEventKinds, sub.Events)

	stored, err := s.store.FindSubscription(context.Background(), sub.ID)
	s.Require().NoError(err)
	s.NotEqual(secret, stored.SealedSecret)
	opened, err := s.sealer.Open(stored.SealedSecret)
	s.Require().NoError(err)
	s.Equal(secret, opened)
}

func (s *ServiceSuite) TestRegisterValidation() {
	ctx := context.Background()
	_, _, err := s.service.Register(ctx, s.tenant, webhook.RegisterCommand{URL: "ftp://example.test"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, _, err = s.service.Register(ctx, s.tenant, webhook.RegisterCommand{
		URL:    "https://example.test/hook",
		Events: []webhook.EventKind{"credential.exploded"},
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	for range webhook.MaxSubscriptionsPerTenant {
		_, _, err = s.service.Register(ctx, s.tenant, webhook.RegisterCommand{URL: "https://example.test/hook"})
		s.Require().NoError(err)
	}
	_, _, err = s.service.Register(ctx, s.tenant, webhook.RegisterCommand{URL: "https://example.test/hook"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestRegisterDedupesEvents() {
	sub, _, err := s.service.Register(context.Background(), s.tenant, webhook.RegisterCommand{
		URL:    "https://example.test/hook",
		Events: []webhook.EventKind{webhook.EventCredentialIssued, webhook.EventCredentialIssued},
	})
	s.Require().NoError(err)
	s.Equal([]webhook.EventKind{webhook.EventCredentialIssued}, sub.Events)
}

func (s *ServiceSuite) TestOtherTenantsSubscriptionsAreHidden() {
	ctx := context.Background()
	sub, _, err := s.service.Register(ctx, s.tenant, webhook.RegisterCommand{URL: "https://example.test/hook"})
	s.Require().NoError(err)
	other := id.NewTenantID()

	s.True(dErrors.HasCode(s.service.Delete(ctx, other, sub.ID), dErrors.CodeNotFound))
	_, err = s.service.SetEnabled(ctx, other, sub.ID, false)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = s.service.Deliveries(ctx, other, sub.ID, 10)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	list, err := s.service.List(ctx, other)
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *ServiceSuite) TestEnableDisableAndDelete() {
	ctx := context.Background()
	sub, _, err := s.service.Register(ctx, s.tenant, webhook.RegisterCommand{URL: "https://example.test/hook"})
	s.Require().NoError(err)

	updated, err := s.service.SetEnabled(ctx, s.tenant, sub.ID, false)
	s.Require().NoError(err)
	s.False(updated.Enabled)

	active, err := s.store.ListActive(ctx, s.tenant, webhook.EventCredentialIssued)
	s.Require().NoError(err)
	s.Empty(active)

	s.Require().NoError(s.service.Delete(ctx, s.tenant, sub.ID))
	s.True(dErrors.HasCode(s.service.Delete(ctx, s.tenant, sub.ID), dErrors.CodeNotFound))
}
