package issuance

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"certifier/internal/credential/models"
	"certifier/internal/platform/tracer"
	"certifier/internal/render"
	id "certifier/pkg/domain"
	dErrors "certifier/pkg/domain-errors"
)

// BatchItem is one participant in a batch with its own placeholder overrides.
type BatchItem struct {
	ParticipantID id.ParticipantID
	Overrides     render.Bundle
}

// BatchCommand issues one credential per item under a shared event, design
// and type.
type BatchCommand struct {
	EventID    id.EventID
	Title      string
	Type       models.Type
	TemplateID *id.TemplateID
	Design     *render.Design
	Items      []BatchItem
}

// BatchFailure reports why one item did not produce an issued credential.
// CredentialID is set when the credential was created but its artifact failed.
type BatchFailure struct {
	Index         int
	ParticipantID id.ParticipantID
	Code          dErrors.Code
	Reason        string
	CredentialID  *id.CredentialID
}

// BatchResult aggregates the per-item outcomes in item order.
type BatchResult struct {
	Successes []*models.Credential
	Failures  []BatchFailure
}

type batchSlot struct {
	cred    *models.Credential
	failure *BatchFailure
}

// IssueBatch admits items in order and renders the admitted ones on a bounded
// pool. Once the gate refuses, the refused item and every later item are
// reported as QuotaExhausted without being attempted. Errors that apply to
// the whole batch (bad event, template or design) are returned directly.
func (c *Coordinator) IssueBatch(ctx context.Context, tenantID id.TenantID, cmd BatchCommand) (res *BatchResult, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanBatch,
		tracer.String(tracer.AttrTenantID, tenantID.String()),
		tracer.Int64(tracer.AttrBatchSize, int64(len(cmd.Items))),
	)
	start := c.now()
	defer func() {
		c.observe(opBatch, nil, err, start)
		span.End(err)
	}()

	switch {
	case len(cmd.Items) == 0:
		return nil, dErrors.New(dErrors.CodeValidation, "items must not be empty")
	case len(cmd.Items) > c.maxBatchItems:
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("items must not exceed %d", c.maxBatchItems))
	}

	credType, ok := models.ParseType(string(cmd.Type))
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "type must be one of certificate, badge, diploma, award")
	}
	if _, err := c.catalog.GetEvent(ctx, tenantID, cmd.EventID); err != nil {
		return nil, err
	}
	shared := &subject{tenantID: tenantID}
	if err := c.resolveDesign(ctx, shared, cmd.TemplateID, cmd.Design); err != nil {
		return nil, err
	}

	slots := make([]batchSlot, len(cmd.Items))
	minted := make([]int, 0, len(cmd.Items))
	var exhausted error
	for i, item := range cmd.Items {
		fail := func(err error) {
			slots[i].failure = &BatchFailure{
				Index:         i,
				ParticipantID: item.ParticipantID,
				Code:          dErrors.CodeOf(err),
				Reason:        err.Error(),
			}
		}
		if exhausted != nil {
			fail(exhausted)
			continue
		}
		if ctx.Err() != nil {
			fail(dErrors.Wrap(ctx.Err(), dErrors.CodeUnknown, "batch cancelled"))
			continue
		}

		subj, err := c.resolve(ctx, tenantID, item.ParticipantID, cmd.EventID, cmd.Title, credType)
		if err != nil {
			fail(err)
			continue
		}
		subj.design = shared.design
		subj.templateID = shared.templateID
		subj.overrides = item.Overrides

		cred, err := c.admitAndMint(ctx, subj)
		if err != nil {
			if dErrors.CodeOf(err).IsPolicy() {
				exhausted = dErrors.New(dErrors.CodeQuotaExhausted, "quota exhausted: "+err.Error())
				fail(exhausted)
				continue
			}
			fail(err)
			continue
		}
		slots[i].cred = cred
		minted = append(minted, i)
	}

	// Each goroutine owns its slot.
	var g errgroup.Group
	g.SetLimit(c.batchConcurrency)
	for _, i := range minted {
		g.Go(func() error {
			cred := slots[i].cred
			r, err := c.produce(ctx, cred)
			switch {
			case err != nil:
				slots[i].failure = &BatchFailure{Index: i, ParticipantID: cred.ParticipantID, Code: dErrors.CodeOf(err), Reason: err.Error(), CredentialID: &cred.ID}
				slots[i].cred = nil
			case r.Failure != nil:
				slots[i].failure = &BatchFailure{Index: i, ParticipantID: cred.ParticipantID, Code: dErrors.CodeOf(r.Failure), Reason: r.Failure.Error(), CredentialID: &cred.ID}
				slots[i].cred = nil
			default:
				slots[i].cred = r.Credential
			}
			return nil
		})
	}
	_ = g.Wait()

	res = &BatchResult{}
	for _, slot := range slots {
		if slot.failure != nil {
			res.Failures = append(res.Failures, *slot.failure)
			c.metrics.batchItem("failed")
			continue
		}
		res.Successes = append(res.Successes, slot.cred)
		c.metrics.batchItem("issued")
	}

	c.logger.InfoContext(ctx, "batch issuance finished",
		"tenant_id", tenantID.String(),
		"items", len(cmd.Items),
		"issued", len(res.Successes),
		"failed", len(res.Failures),
	)
	return res, nil
}
