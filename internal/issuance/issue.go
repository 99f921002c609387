package issuance

import (
	"context"
	"errors"
	"maps"
	"strings"

	catalogmodels "certifier/internal/catalog/models"
	"certifier/internal/credential/models"
	"certifier/internal/fingerprint"
	"certifier/internal/objectstore"
	"certifier/internal/platform/tracer"
	"certifier/internal/quota"
	"certifier/internal/render"
	id "certifier/pkg/domain"
	dErrors "certifier/pkg/domain-errors"
	"certifier/pkg/platform/sentinel"
)

const dateLayout = "January 2, 2006"

// IssueCommand issues a credential from a design. TemplateID and Design are
// mutually exclusive; with neither the default layout is rendered.
type IssueCommand struct {
	ParticipantID id.ParticipantID
	EventID       id.EventID
	Title         string
	Type          models.Type
	TemplateID    *id.TemplateID
	Design        *render.Design
	Overrides     render.Bundle
}

// UploadCommand issues a credential whose artifact is supplied by the caller.
type UploadCommand struct {
	ParticipantID id.ParticipantID
	EventID       id.EventID
	Title         string
	Type          models.Type
	Format        render.Format
	Data          []byte
}

// Result is the durable receipt of an issuance. When the artifact could not
// be produced Credential is in the failed state and Failure carries the
// retriable error.
type Result struct {
	Credential *models.Credential
	Failure    error
}

// HasGeneratedImage reports whether the credential carries an artifact.
func (r *Result) HasGeneratedImage() bool {
	return r.Failure == nil && r.Credential != nil && r.Credential.HasArtifact()
}

// subject is a resolved, validated issuance request, ready to be admitted.
type subject struct {
	tenantID    id.TenantID
	participant *catalogmodels.Participant
	event       *catalogmodels.Event
	title       string
	credType    models.Type
	templateID  *id.TemplateID
	design      *render.Design
	source      models.Source
	overrides   render.Bundle
}

// Issue runs the full pipeline for one credential. Errors returned before the
// draft exists (references, validation, quota) leave nothing behind; render
// and storage failures are reported through Result.Failure instead.
func (c *Coordinator) Issue(ctx context.Context, tenantID id.TenantID, cmd IssueCommand) (res *Result, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanIssue, tracer.String(tracer.AttrTenantID, tenantID.String()))
	start := c.now()
	defer func() {
		c.observe(opIssue, res, err, start)
		span.End(err)
	}()

	subj, err := c.resolve(ctx, tenantID, cmd.ParticipantID, cmd.EventID, cmd.Title, cmd.Type)
	if err != nil {
		return nil, err
	}
	if err := c.resolveDesign(ctx, subj, cmd.TemplateID, cmd.Design); err != nil {
		return nil, err
	}
	subj.overrides = cmd.Overrides

	cred, err := c.admitAndMint(ctx, subj)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.String(tracer.AttrCredentialID, cred.ID.String()))
	return c.produce(ctx, cred)
}

// IssueUpload stores the uploaded artifact as the credential's only format.
// The credential still passes through draft and generating.
func (c *Coordinator) IssueUpload(ctx context.Context, tenantID id.TenantID, cmd UploadCommand) (res *Result, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanIssue,
		tracer.String(tracer.AttrTenantID, tenantID.String()),
		tracer.String("issuance.source", string(models.SourceUpload)),
	)
	start := c.now()
	defer func() {
		c.observe(opUpload, res, err, start)
		span.End(err)
	}()

	if len(cmd.Data) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "file is required")
	}
	if _, ok := render.ParseFormat(string(cmd.Format)); !ok || cmd.Format == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "file must be a png, jpeg or pdf")
	}
	subj, err := c.resolve(ctx, tenantID, cmd.ParticipantID, cmd.EventID, cmd.Title, cmd.Type)
	if err != nil {
		return nil, err
	}
	subj.source = models.SourceUpload

	cred, err := c.admitAndMint(ctx, subj)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.String(tracer.AttrCredentialID, cred.ID.String()))

	url, err := c.upload(ctx, cred, cmd.Format, cmd.Data)
	if err != nil {
		return c.fail(ctx, cred, err)
	}
	return c.complete(ctx, cred, cmd.Format, url)
}

func (c *Coordinator) resolve(ctx context.Context, tenantID id.TenantID, participantID id.ParticipantID, eventID id.EventID, title string, credType models.Type) (*subject, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "title is required")
	}
	credType, ok := models.ParseType(string(credType))
	if !ok {
		return nil, dErrors.New(dErrors.CodeValidation, "type must be one of certificate, badge, diploma, award")
	}
	participant, err := c.catalog.GetParticipant(ctx, tenantID, participantID)
	if err != nil {
		return nil, err
	}
	event, err := c.catalog.GetEvent(ctx, tenantID, eventID)
	if err != nil {
		return nil, err
	}
	return &subject{
		tenantID:    tenantID,
		participant: participant,
		event:       event,
		title:       title,
		credType:    credType,
		source:      models.SourceDesign,
	}, nil
}

func (c *Coordinator) resolveDesign(ctx context.Context, subj *subject, templateID *id.TemplateID, inline *render.Design) error {
	switch {
	case templateID != nil && inline != nil:
		return dErrors.New(dErrors.CodeValidation, "templateId and designData are mutually exclusive")
	case templateID != nil:
		tpl, err := c.catalog.GetTemplate(ctx, subj.tenantID, *templateID)
		if err != nil {
			return err
		}
		design := tpl.Design
		subj.design = &design
		tid := *templateID
		subj.templateID = &tid
	case inline != nil:
		if err := render.Validate(inline); err != nil {
			return render.ToDomain(err)
		}
		subj.design = inline
	default:
		subj.design = &render.Design{}
	}
	return nil
}

// admit charges one credential-issue against the tenant.
func (c *Coordinator) admit(ctx context.Context, tenantID id.TenantID) (quota.Admission, error) {
	adm, err := c.gate.Admit(ctx, tenantID, quota.KindCredentialIssue)
	if err != nil {
		return quota.Admission{}, dErrors.Wrap(err, dErrors.CodeUnknown, "quota check failed")
	}
	return adm, adm.Err()
}

// admitAndMint charges the tenant and persists the draft. When the draft
// cannot be stored the charge is given back, since no record remains that a
// regenerate could complete.
func (c *Coordinator) admitAndMint(ctx context.Context, subj *subject) (*models.Credential, error) {
	adm, err := c.admit(ctx, subj.tenantID)
	if err != nil {
		return nil, err
	}
	cred, err := c.mint(ctx, subj)
	if err != nil {
		if relErr := c.gate.Release(context.WithoutCancel(ctx), subj.tenantID, quota.KindCredentialIssue, adm); relErr != nil {
			c.logger.ErrorContext(ctx, "quota release failed",
				"error", relErr,
				"tenant_id", subj.tenantID.String(),
			)
		}
		return nil, err
	}
	return cred, nil
}

// bundle merges the caller's overrides over the values taken from the
// participant and event.
func (c *Coordinator) bundle(subj *subject, issuedAt string) render.Bundle {
	data := render.Bundle{
		render.KeyParticipantName: subj.participant.Name,
		render.KeyEventTitle:      subj.event.Title,
		render.KeySkills:          strings.Join(subj.participant.Skills, ", "),
		render.KeyIssueDate:       issuedAt,
		render.KeyCredentialTitle: subj.title,
		render.KeyCredentialType:  string(subj.credType),
	}
	if subj.event.StartDate != nil {
		data[render.KeyEventDate] = subj.event.StartDate.Format(dateLayout)
	}
	maps.Copy(data, subj.overrides)
	return data
}

// mint fingerprints the subject, persists the draft and moves it to
// generating.
func (c *Coordinator) mint(ctx context.Context, subj *subject) (*models.Credential, error) {
	now := c.now()
	fp, verificationURL, err := c.fingerprints.Issue(fingerprint.Input{
		ParticipantRef: subj.participant.ID.String(),
		EventRef:       subj.event.ID.String(),
		Title:          subj.title,
		Type:           string(subj.credType),
		IssuedAt:       now,
	})
	if err != nil {
		return nil, err
	}
	qr, err := c.qr.DataURI(verificationURL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnknown, "failed to encode verification QR")
	}

	draft := &models.Credential{
		ID:              id.NewCredentialID(),
		TenantID:        subj.tenantID,
		ParticipantID:   subj.participant.ID,
		EventID:         subj.event.ID,
		TemplateID:      subj.templateID,
		Title:           subj.title,
		Type:            subj.credType,
		Source:          subj.source,
		Design:          subj.design,
		ParticipantData: c.bundle(subj, now.Format(dateLayout)),
		Fingerprint:     fp,
		VerificationURL: verificationURL,
		QRCode:          qr,
		ArtifactURLs:    map[render.Format]string{},
		Status:          models.StatusDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := c.credentials.Create(ctx, draft); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			return nil, dErrors.New(dErrors.CodeConflict, "fingerprint collision, retry the request")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnknown, "failed to create credential")
	}
	cred, err := c.credentials.Transition(ctx, draft.ID, models.Transition{
		From: models.StatusDraft,
		To:   models.StatusGenerating,
		At:   c.now(),
	})
	if err != nil {
		return nil, translateStore(err, "failed to start generation")
	}
	return cred, nil
}

// produce renders the PNG artifact, stores it and finishes the credential.
// A cancelled caller leaves the credential generating for the sweeper or a
// regenerate call.
func (c *Coordinator) produce(ctx context.Context, cred *models.Credential) (*Result, error) {
	out, err := c.render(ctx, cred, render.FormatPNG)
	if err != nil {
		if ctx.Err() != nil {
			return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeUnknown, "request cancelled during render")
		}
		return c.fail(ctx, cred, render.ToDomain(err))
	}
	url, err := c.upload(ctx, cred, render.FormatPNG, out.Bytes)
	if err != nil {
		if ctx.Err() != nil {
			return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeUnknown, "request cancelled during upload")
		}
		return c.fail(ctx, cred, err)
	}
	return c.complete(ctx, cred, render.FormatPNG, url)
}

// render draws the credential in format. An unavailable asset is retried once.
func (c *Coordinator) render(ctx context.Context, cred *models.Credential, format render.Format) (out *render.Output, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanRender,
		tracer.String(tracer.AttrCredentialID, cred.ID.String()),
		tracer.String(tracer.AttrFormat, string(format)),
	)
	defer func() { span.End(err) }()

	req := render.Request{
		Design:          cred.Design,
		Data:            cred.ParticipantData,
		Format:          format,
		VerificationURL: cred.VerificationURL,
		Scale:           1,
	}
	for attempt := 1; ; attempt++ {
		out, err = c.renderOnce(ctx, req)
		if err == nil || attempt == 2 || !render.IsAssetUnavailable(err) || ctx.Err() != nil {
			break
		}
		c.logger.WarnContext(ctx, "render asset unavailable, retrying",
			"error", err,
			"credential_id", cred.ID.String(),
		)
	}
	if err != nil {
		return nil, err
	}
	for _, w := range out.Warnings {
		c.logger.WarnContext(ctx, "render degraded", "warning", w, "credential_id", cred.ID.String())
	}
	return out, nil
}

func (c *Coordinator) renderOnce(ctx context.Context, req render.Request) (*render.Output, error) {
	ctx, cancel := context.WithTimeout(ctx, c.renderTimeout)
	defer cancel()
	return c.renderer.Render(ctx, req)
}

func (c *Coordinator) upload(ctx context.Context, cred *models.Credential, format render.Format, data []byte) (url string, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanUpload,
		tracer.String(tracer.AttrCredentialID, cred.ID.String()),
		tracer.String(tracer.AttrFormat, string(format)),
	)
	defer func() { span.End(err) }()
	return c.objects.Put(ctx, data, objectstore.Kind(format), artifactFolder(cred.TenantID), cred.Fingerprint, false)
}

// complete attaches the artifact and moves generating -> issued.
func (c *Coordinator) complete(ctx context.Context, cred *models.Credential, format render.Format, url string) (*Result, error) {
	if _, err := c.credentials.AttachArtifact(ctx, cred.ID, format, url); err != nil {
		return nil, translateStore(err, "failed to attach artifact")
	}
	issued, err := c.credentials.Transition(ctx, cred.ID, models.Transition{
		From: models.StatusGenerating,
		To:   models.StatusIssued,
		At:   c.now(),
	})
	if err != nil {
		return nil, translateStore(err, "failed to mark credential issued")
	}

	c.logger.InfoContext(ctx, "credential issued",
		"credential_id", issued.ID.String(),
		"tenant_id", issued.TenantID.String(),
		"fingerprint", issued.Fingerprint,
	)
	c.recordActivity(ctx, issued, activityIssued, map[string]any{"format": string(format), "source": string(issued.Source)})
	c.publish(ctx, issued, eventIssued)
	return &Result{Credential: issued}, nil
}

// fail moves generating -> failed, recording cause on the record.
func (c *Coordinator) fail(ctx context.Context, cred *models.Credential, cause error) (*Result, error) {
	code := dErrors.CodeOf(cause)
	if code == dErrors.CodeUnknown || code == dErrors.CodeValidation {
		code = dErrors.CodeRenderFailed
	}
	failed, err := c.credentials.Transition(ctx, cred.ID, models.Transition{
		From:           models.StatusGenerating,
		To:             models.StatusFailed,
		At:             c.now(),
		FailureCode:    string(code),
		FailureMessage: cause.Error(),
	})
	if err != nil {
		return nil, translateStore(err, "failed to record generation failure")
	}

	c.logger.WarnContext(ctx, "credential generation failed",
		"error", cause,
		"code", string(code),
		"credential_id", failed.ID.String(),
		"tenant_id", failed.TenantID.String(),
	)
	c.publish(ctx, failed, eventFailed)
	return &Result{
		Credential: failed,
		Failure:    &dErrors.Error{Code: code, Message: "credential artifact could not be generated: " + cause.Error(), Err: cause},
	}, nil
}

// translateStore maps store sentinels to domain errors.
func translateStore(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "credential not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "credential was modified concurrently")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeInvalidStateTransition, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeUnknown, msg)
	}
}
