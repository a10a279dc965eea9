package middleware

import (
	"net/http"

	dErrors "github.com/cernops/keystone/pkg/domainerrors"
	"github.com/cernops/keystone/pkg/platform/httputil"
)

// NotFound answers unknown routes with a 404 envelope.
func NotFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound,
		"The resource could not be found."))
}

// MethodNotAllowed answers known routes hit with an unsupported method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteError(w, dErrors.New(dErrors.CodeMethodNotAllowed,
		"The method "+r.Method+" is not supported for this resource."))
}
