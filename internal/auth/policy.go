package auth

import (
	"context"
	"net/http"

	dErrors "github.com/cernops/keystone/pkg/domainerrors"
	"github.com/cernops/keystone/pkg/platform/httputil"
	"github.com/cernops/keystone/pkg/requestcontext"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleReader = "reader"
)

// Access names the kind of operation being authorized.
type Access int

const (
	Read Access = iota
	Write
)

func (a Access) roles() []string {
	if a == Write {
		return []string{RoleAdmin}
	}
	return []string{RoleAdmin, RoleReader}
}

// Authorize returns unauthorized when ctx has no caller and forbidden when
// the caller lacks every role accepted for access.
func Authorize(ctx context.Context, access Access) error {
	caller, ok := requestcontext.Principal(ctx)
	if !ok {
		return dErrors.New(dErrors.CodeUnauthorized, "The request you have made requires authentication.")
	}
	if !caller.HasAnyRole(access.roles()...) {
		return dErrors.New(dErrors.CodeForbidden, "You are not authorized to perform the requested action.")
	}
	return nil
}

// Require is middleware enforcing Authorize for access.
func Require(access Access) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := Authorize(r.Context(), access); err != nil {
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
