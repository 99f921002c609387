package fingerprint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certifier/pkg/domain-errors"
)

func baseInput() Input {
	return Input{
		ParticipantRef: "7a1c0f1e-0000-4000-8000-000000000001",
		EventRef:       "7a1c0f1e-0000-4000-8000-000000000002",
		Title:          "Certificate of Completion",
		Type:           "certificate",
		IssuedAt:       time.Date(2025, 5, 1, 10, 0, 0, 123, time.UTC),
		Nonce:          "00112233445566778899aabbccddeeff",
	}
}

func TestCompute_DeterministicAndWellFormed(t *testing.T) {
	a := Compute(baseInput())
	b := Compute(baseInput())

	assert.Equal(t, a, b)
	assert.Len(t, a, Length)
	assert.True(t, Valid(a))
}

func TestCompute_EveryFieldContributes(t *testing.T) {
	ref := Compute(baseInput())
	mutations := map[string]func(*Input){
		"participant": func(in *Input) { in.ParticipantRef += "x" },
		"event":       func(in *Input) { in.EventRef += "x" },
		"title":       func(in *Input) { in.Title = "Other" },
		"type":        func(in *Input) { in.Type = "badge" },
		"issued_at":   func(in *Input) { in.IssuedAt = in.IssuedAt.Add(time.Nanosecond) },
		"nonce":       func(in *Input) { in.Nonce = "ff" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			in := baseInput()
			mutate(&in)
			assert.NotEqual(t, ref, Compute(in))
		})
	}
}

func TestCompute_LengthPrefixPreventsShifting(t *testing.T) {
	a := baseInput()
	a.Title, a.Type = "ab", "c"
	b := baseInput()
	b.Title, b.Type = "a", "bc"
	assert.NotEqual(t, Compute(a), Compute(b))
}

func TestService_IssueDrawsFreshNonce(t *testing.T) {
	svc := New("https://example.test/")
	in := baseInput()
	in.Nonce = ""

	fp1, url1, err := svc.Issue(in)
	require.NoError(t, err)
	fp2, _, err := svc.Issue(in)
	require.NoError(t, err)

	assert.NotEqual(t, fp1, fp2, "re-issuing the same tuple yields a distinct fingerprint")
	assert.Equal(t, "https://example.test/verify/"+fp1, url1)
}

func TestParse(t *testing.T) {
	fp := Compute(baseInput())

	got, err := Parse("  " + fp + " ")
	require.NoError(t, err)
	assert.Equal(t, fp, got)

	_, err = Parse(fp[:63])
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = Parse(fp[:63] + "g")
	assert.Error(t, err)
}
