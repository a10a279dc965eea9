// Package httputil writes JSON responses and identity-API error envelopes.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	dErrors "github.com/cernops/keystone/pkg/domainerrors"
)

// internalMessage is returned for every 5xx so storage details never leak.
const internalMessage = "An unexpected error prevented the server from fulfilling your request."

// ErrorBody is the identity API error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates err into an error envelope. Errors without a code
// are treated as internal.
func WriteError(w http.ResponseWriter, err error) {
	code, ok := dErrors.CodeOf(err)
	if !ok {
		code = dErrors.CodeInternal
	}
	status := dErrors.HTTPStatus(code)
	message := dErrors.Message(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		message = internalMessage
	}
	if message == "" {
		message = http.StatusText(status)
	}
	WriteJSON(w, status, ErrorBody{Error: ErrorDetail{
		Code:    status,
		Title:   http.StatusText(status),
		Message: message,
	}})
}

// DecodeJSON decodes the request body into dst, mapping oversize bodies to
// payload_too_large and malformed JSON to bad_request.
func DecodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return nil
	}
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return dErrors.New(dErrors.CodePayloadTooLarge, "request body is too large")
	case errors.Is(err, io.EOF):
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	default:
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "request body is not valid JSON")
	}
}

// BaseURL returns the configured public endpoint, or one derived from the
// request when none is configured.
func BaseURL(r *http.Request, configured string) string {
	if configured != "" {
		return strings.TrimRight(configured, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	return scheme + "://" + r.Host
}
