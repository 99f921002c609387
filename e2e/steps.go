package e2e

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cucumber/godog"

	"certifier/internal/activity"
	tenantmodels "certifier/internal/tenant/models"
	id "certifier/pkg/domain"
)

var fingerprintPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// RegisterSteps registers all step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Background steps
	ctx.Step(`^the certifier is running$`, tc.certifierIsRunning)

	// Tenant and catalog setup
	ctx.Step(`^a subscription tenant on the "([^"]*)" plan$`, tc.subscriptionTenant)
	ctx.Step(`^a prepaid tenant with (\d+) credits?$`, tc.prepaidTenant)
	ctx.Step(`^an event titled "([^"]*)"$`, tc.createEvent)
	ctx.Step(`^a participant named "([^"]*)" with email "([^"]*)"$`, tc.createParticipant)
	ctx.Step(`^a webhook subscription for "([^"]*)"$`, tc.subscribeWebhook)

	// Issuance and lifecycle
	ctx.Step(`^I issue a "([^"]*)" titled "([^"]*)" to "([^"]*)" for "([^"]*)"$`, tc.issueCredential)
	ctx.Step(`^I issue a "([^"]*)" titled "([^"]*)" to "([^"]*)" for "([^"]*)" with background image "([^"]*)"$`, tc.issueWithBackgroundImage)
	ctx.Step(`^I verify the issued fingerprint$`, tc.verifyIssuedFingerprint)
	ctx.Step(`^I verify the issued fingerprint with one hex digit changed$`, tc.verifyTamperedFingerprint)
	ctx.Step(`^I revoke the credential twice in parallel$`, tc.revokeTwiceInParallel)

	// Assertion steps
	ctx.Step(`^the response status should be (\d+)$`, tc.responseStatusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, tc.responseFieldShouldEqual)
	ctx.Step(`^the response field "([^"]*)" should name participant "([^"]*)"$`, tc.responseFieldShouldNameParticipant)
	ctx.Step(`^the response field "([^"]*)" should name event "([^"]*)"$`, tc.responseFieldShouldNameEvent)
	ctx.Step(`^the credential fingerprint should be 64 lowercase hex characters$`, tc.fingerprintShouldBeHex)
	ctx.Step(`^the verification URL should be "([^"]*)" followed by the fingerprint$`, tc.verificationURLShouldBe)
	ctx.Step(`^the activity log should contain "([^"]*)" for the credential$`, tc.activityShouldContain)
	ctx.Step(`^the "([^"]*)" activity actor should be "([^"]*)"$`, tc.activityActorShouldBe)
	ctx.Step(`^the activity log should contain no "([^"]*)" entries$`, tc.activityShouldNotContain)
	ctx.Step(`^the webhook receiver should get a "([^"]*)" event$`, tc.webhookShouldArrive)
	ctx.Step(`^the tenant should have (\d+) credits? left$`, tc.tenantCreditsShouldBe)
	ctx.Step(`^exactly one revoke should return (\d+) and the other (\d+) with code "([^"]*)"$`, tc.oneRevokeShouldWin)
}

func (tc *TestContext) certifierIsRunning(ctx context.Context) error {
	return tc.GET(ctx, "/health/ready")
}

func (tc *TestContext) createTenant(ctx context.Context, t *tenantmodels.Tenant) error {
	if err := tc.App.Stores.Tenants.Create(ctx, t); err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	token, err := tc.App.Tokens.GenerateAccessToken(ctx, t.ID, "e2e-admin")
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}
	tc.TenantID = t.ID
	tc.AccessToken = token
	return nil
}

func (tc *TestContext) subscriptionTenant(ctx context.Context, plan string) error {
	now := time.Now().UTC()
	return tc.createTenant(ctx, &tenantmodels.Tenant{
		ID:                 id.NewTenantID(),
		Name:               "E2E subscription tenant",
		Status:             tenantmodels.StatusActive,
		BillingMode:        tenantmodels.BillingSubscription,
		PlanID:             plan,
		SubscriptionStatus: tenantmodels.SubscriptionActive,
		PeriodStart:        now.Add(-time.Hour),
		PeriodEnd:          now.AddDate(0, 1, 0),
		CreatedAt:          now,
		UpdatedAt:          now,
	})
}

func (tc *TestContext) prepaidTenant(ctx context.Context, credits int) error {
	now := time.Now().UTC()
	return tc.createTenant(ctx, &tenantmodels.Tenant{
		ID:          id.NewTenantID(),
		Name:        "E2E prepaid tenant",
		Status:      tenantmodels.StatusActive,
		BillingMode: tenantmodels.BillingPrepaidCredits,
		Credits:     int64(credits),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (tc *TestContext) createEvent(ctx context.Context, title string) error {
	if err := tc.POST(ctx, "/events", map[string]any{"title": title}); err != nil {
		return err
	}
	raw, err := tc.createdID()
	if err != nil {
		return err
	}
	eventID, err := id.ParseEventID(raw)
	if err != nil {
		return err
	}
	tc.Events[title] = eventID
	return nil
}

func (tc *TestContext) createParticipant(ctx context.Context, name, email string) error {
	if err := tc.POST(ctx, "/participants", map[string]any{"name": name, "email": email}); err != nil {
		return err
	}
	raw, err := tc.createdID()
	if err != nil {
		return err
	}
	participantID, err := id.ParseParticipantID(raw)
	if err != nil {
		return err
	}
	tc.Participants[name] = participantID
	return nil
}

func (tc *TestContext) createdID() (string, error) {
	if tc.LastResponse.Status != http.StatusCreated {
		return "", fmt.Errorf("expected 201, got %d: %s", tc.LastResponse.Status, tc.LastResponse.Body)
	}
	v, err := tc.Field("id")
	if err != nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}

func (tc *TestContext) subscribeWebhook(ctx context.Context, event string) error {
	tc.Receiver = newWebhookReceiver()
	if err := tc.POST(ctx, "/webhooks", map[string]any{"url": tc.Receiver.URL(), "events": []string{event}}); err != nil {
		return err
	}
	if tc.LastResponse.Status != http.StatusCreated {
		return fmt.Errorf("register webhook: %d %s", tc.LastResponse.Status, tc.LastResponse.Body)
	}
	return nil
}

func (tc *TestContext) issueCredential(ctx context.Context, kind, title, participant, event string) error {
	return tc.issue(ctx, kind, title, participant, event, map[string]any{
		"width":      800,
		"height":     600,
		"background": map[string]any{"type": "solid", "color": "#ffffff"},
	})
}

func (tc *TestContext) issueWithBackgroundImage(ctx context.Context, kind, title, participant, event, imageURL string) error {
	return tc.issue(ctx, kind, title, participant, event, map[string]any{
		"width":      800,
		"height":     600,
		"background": map[string]any{"type": "image", "imageUrl": imageURL},
	})
}

func (tc *TestContext) issue(ctx context.Context, kind, title, participant, event string, design map[string]any) error {
	participantID, ok := tc.Participants[participant]
	if !ok {
		return fmt.Errorf("unknown participant %q", participant)
	}
	eventID, ok := tc.Events[event]
	if !ok {
		return fmt.Errorf("unknown event %q", event)
	}
	err := tc.POST(ctx, "/credentials/design", map[string]any{
		"participantId": participantID.String(),
		"eventId":       eventID.String(),
		"title":         title,
		"type":          kind,
		"designData":    design,
	})
	if err != nil {
		return err
	}
	if tc.LastResponse.Status != http.StatusCreated {
		return nil
	}
	credID, err := tc.Field("credential.id")
	if err != nil {
		return err
	}
	fp, err := tc.Field("credential.fingerprint")
	if err != nil {
		return err
	}
	tc.CredentialID = fmt.Sprint(credID)
	tc.Fingerprint = fmt.Sprint(fp)
	return nil
}

func (tc *TestContext) verifyIssuedFingerprint(ctx context.Context) error {
	return tc.GET(ctx, "/credentials/verify?hash="+tc.Fingerprint)
}

func (tc *TestContext) verifyTamperedFingerprint(ctx context.Context) error {
	if tc.Fingerprint == "" {
		return fmt.Errorf("no fingerprint issued yet")
	}
	digit := byte('0')
	if tc.Fingerprint[0] == '0' {
		digit = '1'
	}
	return tc.GET(ctx, "/credentials/verify?hash="+string(digit)+tc.Fingerprint[1:])
}

func (tc *TestContext) revokeTwiceInParallel(ctx context.Context) error {
	path := "/credentials/" + tc.CredentialID + "/revoke"
	results := make([]Response, 2)
	errs := make([]error, 2)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = tc.do(ctx, http.MethodPost, path, map[string]any{"reason": "issued in error"}, true)
		}(i)
	}
	close(start)
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	tc.ParallelResults = results
	return nil
}

func (tc *TestContext) responseStatusShouldBe(ctx context.Context, expected int) error {
	if tc.LastResponse.Status != expected {
		return fmt.Errorf("expected status %d, got %d: %s", expected, tc.LastResponse.Status, tc.LastResponse.Body)
	}
	return nil
}

func (tc *TestContext) responseFieldShouldEqual(ctx context.Context, field, expected string) error {
	v, err := tc.Field(field)
	if err != nil {
		return err
	}
	if actual := fmt.Sprint(v); actual != expected {
		return fmt.Errorf("expected %s to be %q, got %q", field, expected, actual)
	}
	return nil
}

func (tc *TestContext) responseFieldShouldNameParticipant(ctx context.Context, field, name string) error {
	participantID, ok := tc.Participants[name]
	if !ok {
		return fmt.Errorf("unknown participant %q", name)
	}
	return tc.responseFieldShouldEqual(ctx, field, participantID.String())
}

func (tc *TestContext) responseFieldShouldNameEvent(ctx context.Context, field, title string) error {
	eventID, ok := tc.Events[title]
	if !ok {
		return fmt.Errorf("unknown event %q", title)
	}
	return tc.responseFieldShouldEqual(ctx, field, eventID.String())
}

func (tc *TestContext) fingerprintShouldBeHex(ctx context.Context) error {
	if !fingerprintPattern.MatchString(tc.Fingerprint) {
		return fmt.Errorf("fingerprint %q is not 64 lowercase hex characters", tc.Fingerprint)
	}
	return nil
}

func (tc *TestContext) verificationURLShouldBe(ctx context.Context, prefix string) error {
	return tc.responseFieldShouldEqual(ctx, "credential.verificationUrl", prefix+tc.Fingerprint)
}

func (tc *TestContext) findActivity(ctx context.Context, kind string, credentialID id.CredentialID) ([]*activity.Entry, error) {
	entries, _, err := tc.App.Stores.Activity.Query(ctx, tc.TenantID, activity.Filter{
		Kind:         activity.Kind(kind),
		CredentialID: credentialID,
	}, 100, 0)
	return entries, err
}

func (tc *TestContext) issuedCredentialID() (id.CredentialID, error) {
	return id.ParseCredentialID(tc.CredentialID)
}

func (tc *TestContext) activityShouldContain(ctx context.Context, kind string) error {
	credID, err := tc.issuedCredentialID()
	if err != nil {
		return err
	}
	return eventually(ctx, func() error {
		entries, err := tc.findActivity(ctx, kind, credID)
		if err != nil {
			return err
		}
		if len(entries) != 1 {
			return fmt.Errorf("expected one %s entry, found %d", kind, len(entries))
		}
		return nil
	})
}

func (tc *TestContext) activityActorShouldBe(ctx context.Context, kind, actor string) error {
	credID, err := tc.issuedCredentialID()
	if err != nil {
		return err
	}
	return eventually(ctx, func() error {
		entries, err := tc.findActivity(ctx, kind, credID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return fmt.Errorf("no %s entry yet", kind)
		}
		if entries[0].Actor != actor {
			return fmt.Errorf("expected actor %q, got %q", actor, entries[0].Actor)
		}
		return nil
	})
}

func (tc *TestContext) activityShouldNotContain(ctx context.Context, kind string) error {
	// Entries are persisted asynchronously; give the recorder time to drain.
	time.Sleep(200 * time.Millisecond)
	entries, err := tc.findActivity(ctx, kind, id.CredentialID{})
	if err != nil {
		return err
	}
	for _, e := range entries {
		if outcome, _ := e.Details["outcome"].(string); outcome != "not_found" {
			return fmt.Errorf("unexpected %s entry for %s with outcome %q", kind, e.CredentialID, outcome)
		}
	}
	return nil
}

func (tc *TestContext) webhookShouldArrive(ctx context.Context, event string) error {
	if tc.Receiver == nil {
		return fmt.Errorf("no webhook subscription registered")
	}
	return eventually(ctx, func() error {
		for _, got := range tc.Receiver.Events() {
			if got == event {
				return nil
			}
		}
		return fmt.Errorf("no %s delivery yet, got %s", event, strings.Join(tc.Receiver.Events(), ","))
	})
}

func (tc *TestContext) tenantCreditsShouldBe(ctx context.Context, expected int) error {
	t, err := tc.App.Stores.Tenants.FindByID(ctx, tc.TenantID)
	if err != nil {
		return err
	}
	if t.Credits != int64(expected) {
		return fmt.Errorf("expected %d credits, got %d", expected, t.Credits)
	}
	return nil
}

func (tc *TestContext) oneRevokeShouldWin(ctx context.Context, winner, loser int, code string) error {
	var wins, losses int
	for _, r := range tc.ParallelResults {
		switch r.Status {
		case winner:
			wins++
		case loser:
			losses++
			tc.LastResponse = r
			if err := tc.responseFieldShouldEqual(ctx, "code", code); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unexpected revoke status %d: %s", r.Status, r.Body)
		}
	}
	if wins != 1 || losses != 1 {
		return fmt.Errorf("expected one %d and one %d, got %d and %d", winner, loser, wins, losses)
	}
	return nil
}
