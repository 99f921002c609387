package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign_MatchesHMAC(t *testing.T) {
	body := []byte(`{"event":"credential.issued","timestamp":"2026-01-02T03:04:05Z","data":{}}`)
	mac := hmac.New(sha256.New, []byte("whsec_test"))
	mac.Write(body)

	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), Sign("whsec_test", body))
	assert.True(t, VerifySignature("whsec_test", body, Sign("whsec_test", body)))
	assert.False(t, VerifySignature("whsec_other", body, Sign("whsec_test", body)))
	assert.False(t, VerifySignature("whsec_test", body, hex.EncodeToString(mac.Sum(nil))))
}

func TestBuildPayload(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	body, err := buildPayload(EventCredentialVerified, at, map[string]string{"fingerprint": "abc"})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "credential.verified", got["event"])
	assert.Equal(t, "2026-03-01T11:00:00Z", got["timestamp"])
	assert.Equal(t, map[string]any{"fingerprint": "abc"}, got["data"])
}

func TestParseEventKind(t *testing.T) {
	k, ok := ParseEventKind(" Credential.Revoked ")
	assert.True(t, ok)
	assert.Equal(t, EventCredentialRevoked, k)

	_, ok = ParseEventKind("credential.deleted")
	assert.False(t, ok)
}

func TestSubscriptionAccepts(t *testing.T) {
	sub := &Subscription{Enabled: true, Events: []EventKind{EventCredentialIssued}}
	assert.True(t, sub.Accepts(EventCredentialIssued))
	assert.False(t, sub.Accepts(EventCredentialFailed))

	sub.Enabled = false
	assert.False(t, sub.Accepts(EventCredentialIssued))
}
