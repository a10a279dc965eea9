// Package requesttime pins one "now" per request so every timestamp written
// while serving it agrees.
package requesttime

import (
	"net/http"
	"time"

	"github.com/cernops/keystone/pkg/requestcontext"
)

// Middleware stores the request start time, truncated to microseconds to
// match Postgres timestamp precision.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC().Truncate(time.Microsecond)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), now)))
	})
}
