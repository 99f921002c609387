package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certifier/pkg/domain-errors"
)

func TestGenerate(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(a, "whsec_"))
	assert.NotEqual(t, a, b)
}

func TestSealer_RoundTrip(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	s, err := NewSealer(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)

	sealed, err := s.Seal("whsec_abc")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "whsec_abc")

	again, err := s.Seal("whsec_abc")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "each seal uses a fresh nonce")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "whsec_abc", plain)
}

func TestSealer_RejectsForeignKeyAndGarbage(t *testing.T) {
	a, err := NewSealer("")
	require.NoError(t, err)
	b, err := NewSealer("")
	require.NoError(t, err)

	sealed, err := a.Seal("secret")
	require.NoError(t, err)

	_, err = b.Open(sealed)
	assert.Error(t, err)
	_, err = a.Open("not base64!")
	assert.Error(t, err)
	_, err = a.Open(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}

func TestNewSealer_KeyValidation(t *testing.T) {
	_, err := NewSealer("%%%")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = NewSealer(base64.StdEncoding.EncodeToString([]byte("too short")))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
