package middleware

import (
	"mime"
	"net/http"

	dErrors "github.com/cernops/keystone/pkg/domainerrors"
	"github.com/cernops/keystone/pkg/platform/httputil"
)

// MaxBody rejects requests whose declared length exceeds limit and caps
// the body reader for the rest, so chunked uploads fail on decode.
func MaxBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				httputil.WriteError(w, dErrors.New(dErrors.CodePayloadTooLarge, "request body is too large"))
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireJSON rejects requests that carry a body with a media type other
// than application/json. Bodyless requests pass regardless of method.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !hasBody(r) {
			next.ServeHTTP(w, r)
			return
		}
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "application/json" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnsupportedMediaType,
				"Content-Type must be application/json"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func hasBody(r *http.Request) bool {
	if r.ContentLength > 0 {
		return true
	}
	// Unknown length means a chunked body.
	return r.ContentLength < 0 && r.Body != nil && r.Body != http.NoBody
}
