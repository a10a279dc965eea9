package middleware

import (
	"net/http"
	"strings"

	"github.com/cernops/keystone/pkg/ids"
	"github.com/cernops/keystone/pkg/requestcontext"
)

// RequestIDHeader carries the request ID on requests and responses.
const RequestIDHeader = "X-Openstack-Request-Id"

const maxInboundRequestID = 128

// RequestID propagates an inbound request ID or generates one, and echoes it
// on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if reqID == "" || len(reqID) > maxInboundRequestID {
			reqID = "req-" + ids.NewHex()
		}
		w.Header().Set(RequestIDHeader, reqID)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), reqID)))
	})
}
