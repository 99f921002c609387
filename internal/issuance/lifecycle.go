package issuance

import (
	"context"
	"errors"
	"strings"

	"certifier/internal/credential/models"
	"certifier/internal/objectstore"
	"certifier/internal/render"
	id "certifier/pkg/domain"
	dErrors "certifier/pkg/domain-errors"
	"certifier/pkg/platform/privacy"
	"certifier/pkg/platform/sentinel"
)

// ShareCommand records a hand-off of an issued credential.
type ShareCommand struct {
	Channel   string
	Recipient string
}

// owned loads a credential and hides other tenants' records.
func (c *Coordinator) owned(ctx context.Context, tenantID id.TenantID, credentialID id.CredentialID) (*models.Credential, error) {
	cred, err := c.credentials.FindByID(ctx, credentialID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnknown, "failed to load credential")
	}
	if cred.TenantID != tenantID {
		return nil, dErrors.New(dErrors.CodeNotFound, "credential not found")
	}
	return cred, nil
}

// Get returns one of the tenant's credentials.
func (c *Coordinator) Get(ctx context.Context, tenantID id.TenantID, credentialID id.CredentialID) (*models.Credential, error) {
	return c.owned(ctx, tenantID, credentialID)
}

// List returns a page of the tenant's credentials, newest first, with the
// unpaged total.
func (c *Coordinator) List(ctx context.Context, tenantID id.TenantID, filter models.Filter, page models.Page) ([]*models.Credential, int, error) {
	items, total, err := c.credentials.ListByTenant(ctx, tenantID, filter, page.Normalize())
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeUnknown, "failed to list credentials")
	}
	return items, total, nil
}

// Download returns the artifact URL for format, rendering and caching it on
// first request. Only issued credentials can be downloaded.
func (c *Coordinator) Download(ctx context.Context, tenantID id.TenantID, credentialID id.CredentialID, format render.Format) (url string, err error) {
	start := c.now()
	defer func() { c.observe(opDownload, nil, err, start) }()

	cred, err := c.owned(ctx, tenantID, credentialID)
	if err != nil {
		return "", err
	}
	if cred.Status != models.StatusIssued {
		return "", dErrors.New(dErrors.CodeInvalidStateTransition, "credential is "+string(cred.Status)+", not issued")
	}

	url, ok := cred.ArtifactURL(format)
	if !ok {
		if cred.Source == models.SourceUpload {
			return "", dErrors.New(dErrors.CodeNotFound, "uploaded credential has no "+string(format)+" artifact")
		}
		out, rerr := c.render(ctx, cred, format)
		if rerr != nil {
			return "", render.ToDomain(rerr)
		}
		url, err = c.objects.Put(ctx, out.Bytes, objectstore.Kind(format), artifactFolder(cred.TenantID), cred.Fingerprint, false)
		if err != nil {
			return "", err
		}
		if _, err := c.credentials.AttachArtifact(ctx, cred.ID, format, url); err != nil {
			return "", translateStore(err, "failed to attach artifact")
		}
	}

	updated, err := c.credentials.RecordDownload(ctx, cred.ID, c.now())
	if err != nil {
		return "", translateStore(err, "failed to record download")
	}
	c.recordActivity(ctx, updated, activityDownloaded, map[string]any{"format": string(format)})
	c.publish(ctx, updated, eventDownloaded)
	return url, nil
}

// Revoke moves an issued credential to revoked. Concurrent revocations of the
// same credential have exactly one winner; the others see Conflict.
func (c *Coordinator) Revoke(ctx context.Context, tenantID id.TenantID, credentialID id.CredentialID, reason string) (cred *models.Credential, err error) {
	start := c.now()
	defer func() { c.observe(opRevoke, nil, err, start) }()

	cred, err = c.owned(ctx, tenantID, credentialID)
	if err != nil {
		return nil, err
	}
	switch cred.Status {
	case models.StatusIssued:
	case models.StatusRevoked:
		return nil, dErrors.New(dErrors.CodeConflict, "credential is already revoked")
	default:
		return nil, dErrors.New(dErrors.CodeInvalidStateTransition, "only issued credentials can be revoked")
	}
	revoked, err := c.credentials.Transition(ctx, cred.ID, models.Transition{
		From:         models.StatusIssued,
		To:           models.StatusRevoked,
		At:           c.now(),
		RevokeReason: strings.TrimSpace(reason),
	})
	if err != nil {
		return nil, translateStore(err, "credential cannot be revoked")
	}

	c.logger.InfoContext(ctx, "credential revoked",
		"credential_id", revoked.ID.String(),
		"tenant_id", tenantID.String(),
	)
	c.recordActivity(ctx, revoked, activityRevoked, map[string]any{"reason": revoked.RevokeReason})
	c.publish(ctx, revoked, eventRevoked)
	return revoked, nil
}

// Share records that an issued credential was delivered to a recipient.
func (c *Coordinator) Share(ctx context.Context, tenantID id.TenantID, credentialID id.CredentialID, cmd ShareCommand) (cred *models.Credential, err error) {
	start := c.now()
	defer func() { c.observe(opShare, nil, err, start) }()

	channel := strings.ToLower(strings.TrimSpace(cmd.Channel))
	recipient := strings.TrimSpace(cmd.Recipient)
	if channel == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "channel is required")
	}

	cred, err = c.owned(ctx, tenantID, credentialID)
	if err != nil {
		return nil, err
	}
	if cred.Status != models.StatusIssued {
		return nil, dErrors.New(dErrors.CodeInvalidStateTransition, "only issued credentials can be shared")
	}
	shared, err := c.credentials.AddShare(ctx, cred.ID, models.Share{
		Channel:   channel,
		Recipient: recipient,
		SharedAt:  c.now(),
	})
	if err != nil {
		return nil, translateStore(err, "failed to record share")
	}
	c.logger.InfoContext(ctx, "credential shared",
		"tenant_id", tenantID.String(),
		"credential_id", shared.ID.String(),
		"channel", channel,
		"recipient", privacy.MaskEmail(recipient),
	)
	c.recordActivity(ctx, shared, activityDelivered, map[string]any{"channel": channel, "recipient": recipient})
	c.publish(ctx, shared, eventDelivered)
	return shared, nil
}
