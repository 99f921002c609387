package issuance

import (
	"context"
	"time"

	"certifier/internal/activity"
	"certifier/internal/credential/models"
	"certifier/internal/webhook"
	dErrors "certifier/pkg/domain-errors"
	"certifier/pkg/requestcontext"
)

const (
	opIssue      = "issue"
	opUpload     = "upload"
	opRegenerate = "regenerate"
	opBatch      = "batch"
	opDownload   = "download"
	opRevoke     = "revoke"
	opShare      = "share"

	activityIssued     = activity.KindCredentialIssued
	activityDownloaded = activity.KindCredentialDownloaded
	activityDelivered  = activity.KindCredentialDelivered
	activityRevoked    = activity.KindCredentialRevoked

	eventIssued     = webhook.EventCredentialIssued
	eventFailed     = webhook.EventCredentialFailed
	eventRevoked    = webhook.EventCredentialRevoked
	eventDownloaded = webhook.EventCredentialDownloaded
	eventDelivered  = webhook.EventCredentialDelivered
)

// observe classifies an operation for metrics. Policy refusals are counted as
// rejected rather than errors.
func (c *Coordinator) observe(op string, res *Result, err error, start time.Time) {
	outcome := "ok"
	switch {
	case err != nil && dErrors.CodeOf(err).IsPolicy():
		outcome = "rejected"
	case err != nil:
		outcome = "error"
	case res != nil && res.Failure != nil:
		outcome = "failed"
	}
	c.metrics.observe(op, outcome, c.now().Sub(start))
}

func (c *Coordinator) recordActivity(ctx context.Context, cred *models.Credential, kind activity.Kind, details map[string]any) {
	if c.activity == nil {
		return
	}
	c.activity.Record(ctx, cred.TenantID, kind, cred.ID, requestcontext.Subject(ctx), details)
}

func (c *Coordinator) publish(ctx context.Context, cred *models.Credential, kind webhook.EventKind) {
	if c.webhooks == nil {
		return
	}
	c.webhooks.Publish(ctx, cred.TenantID, kind, cred.Summary())
}
