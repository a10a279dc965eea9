package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	t.Run("matches through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeNotFound, "domain not found"))
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeConflict))
	})

	t.Run("outermost code wins", func(t *testing.T) {
		inner := New(CodeNotFound, "missing")
		err := Wrap(inner, CodeInternal, "lookup failed")
		assert.True(t, HasCode(err, CodeInternal))
		assert.Equal(t, "lookup failed: missing", err.Error())
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		_, ok := CodeOf(errors.New("boom"))
		assert.False(t, ok)
	})
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeBadRequest:           http.StatusBadRequest,
		CodeInvariantViolation:   http.StatusBadRequest,
		CodeUnauthorized:         http.StatusUnauthorized,
		CodeForbidden:            http.StatusForbidden,
		CodeNotFound:             http.StatusNotFound,
		CodeMethodNotAllowed:     http.StatusMethodNotAllowed,
		CodeConflict:             http.StatusConflict,
		CodePayloadTooLarge:      http.StatusRequestEntityTooLarge,
		CodeUnsupportedMediaType: http.StatusUnsupportedMediaType,
		CodeUnavailable:          http.StatusServiceUnavailable,
		CodeInternal:             http.StatusInternalServerError,
		Code("unknown"):          http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(code), "code %s", code)
	}
}
