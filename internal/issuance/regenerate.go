package issuance

import (
	"context"

	"certifier/internal/credential/models"
	"certifier/internal/platform/tracer"
	id "certifier/pkg/domain"
	dErrors "certifier/pkg/domain-errors"
)

// Regenerate re-renders a failed or stuck credential from its stored design
// snapshot. The fingerprint and verification URL are kept and no quota is
// charged.
func (c *Coordinator) Regenerate(ctx context.Context, tenantID id.TenantID, credentialID id.CredentialID) (res *Result, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanRegenerate,
		tracer.String(tracer.AttrTenantID, tenantID.String()),
		tracer.String(tracer.AttrCredentialID, credentialID.String()),
	)
	start := c.now()
	defer func() {
		c.observe(opRegenerate, res, err, start)
		span.End(err)
	}()

	cred, err := c.owned(ctx, tenantID, credentialID)
	if err != nil {
		return nil, err
	}
	if cred.Source != models.SourceDesign {
		return nil, dErrors.New(dErrors.CodeValidation, "uploaded credentials cannot be regenerated")
	}

	switch cred.Status {
	case models.StatusFailed:
		cred, err = c.credentials.Transition(ctx, cred.ID, models.Transition{
			From: models.StatusFailed,
			To:   models.StatusGenerating,
			At:   c.now(),
		})
		if err != nil {
			return nil, translateStore(err, "failed to restart generation")
		}
	case models.StatusGenerating:
	default:
		return nil, dErrors.New(dErrors.CodeInvalidStateTransition, "only failed or generating credentials can be regenerated")
	}

	c.logger.InfoContext(ctx, "regenerating credential",
		"credential_id", cred.ID.String(),
		"tenant_id", tenantID.String(),
	)
	return c.produce(ctx, cred)
}
