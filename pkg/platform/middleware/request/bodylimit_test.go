package request

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func TestBodyLimit(t *testing.T) {
	echoLen := func(t *testing.T, want int) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			assert.Len(t, data, want)
			w.WriteHeader(http.StatusOK)
		})
	}

	t.Run("body at the limit passes through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/credentials/design", strings.NewReader(strings.Repeat("x", 100)))
		w := httptest.NewRecorder()
		BodyLimit(100)(echoLen(t, 100)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("declared length over the limit is refused before the handler", func(t *testing.T) {
		called := false
		next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })

		req := httptest.NewRequest(http.MethodPost, "/credentials", strings.NewReader(strings.Repeat("x", 200)))
		w := httptest.NewRecorder()
		BodyLimit(100)(next).ServeHTTP(w, req)

		assert.False(t, called)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		var body errorBody
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "ValidationFailed", body.Code)
		assert.Contains(t, body.Message, "100 bytes")
	})

	t.Run("streamed body over the limit fails on read", func(t *testing.T) {
		var readErr error
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, readErr = io.ReadAll(r.Body)
		})

		req := httptest.NewRequest(http.MethodPost, "/credentials", io.NopCloser(strings.NewReader(strings.Repeat("x", 200))))
		req.ContentLength = -1
		w := httptest.NewRecorder()
		BodyLimit(100)(next).ServeHTTP(w, req)

		require.Error(t, readErr)
		assert.Contains(t, readErr.Error(), "request body too large")
	})

	t.Run("bodyless GET passes through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/credentials", nil)
		w := httptest.NewRecorder()
		BodyLimit(1)(echoLen(t, 0)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
