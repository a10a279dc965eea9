package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/cernops/keystone/pkg/domainerrors"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body.Error
}

func TestWriteError(t *testing.T) {
	t.Run("internal error hides description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		require.Equal(t, http.StatusInternalServerError, w.Code)
		detail := decodeError(t, w)
		assert.Equal(t, http.StatusInternalServerError, detail.Code)
		assert.NotContains(t, detail.Message, "db failed")
	})

	t.Run("uncoded errors are internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, assert.AnError)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("client errors include message and title", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeConflict, "domain name already exists"))

		require.Equal(t, http.StatusConflict, w.Code)
		detail := decodeError(t, w)
		assert.Equal(t, "Conflict", detail.Title)
		assert.Equal(t, "domain name already exists", detail.Message)
	})

	t.Run("unavailable keeps its message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeUnavailable, "domain store unavailable"))

		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "domain store unavailable", decodeError(t, w).Message)
	})
}

func TestDecodeJSON(t *testing.T) {
	t.Run("empty body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		var dst map[string]any
		err := DecodeJSON(r, &dst)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("malformed body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
		var dst map[string]any
		err := DecodeJSON(r, &dst)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("oversize body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"`+strings.Repeat("x", 64)+`"}`))
		r.Body = http.MaxBytesReader(httptest.NewRecorder(), r.Body, 16)
		var dst map[string]any
		err := DecodeJSON(r, &dst)
		assert.True(t, dErrors.HasCode(err, dErrors.CodePayloadTooLarge))
	})
}

func TestBaseURL(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://identity.example.com/v3/domains", nil)
	assert.Equal(t, "https://keystone.example.com", BaseURL(r, "https://keystone.example.com/"))
	assert.Equal(t, "http://identity.example.com", BaseURL(r, ""))

	r.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://identity.example.com", BaseURL(r, ""))
}
