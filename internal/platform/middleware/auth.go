package middleware

import (
	"context"
	"log/slog"
	"net/http"

	dErrors "github.com/cernops/keystone/pkg/domainerrors"
	"github.com/cernops/keystone/pkg/platform/httputil"
	"github.com/cernops/keystone/pkg/requestcontext"
)

// AuthTokenHeader carries the caller's token.
const AuthTokenHeader = "X-Auth-Token"

// TokenValidator resolves a raw token to the calling principal.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (requestcontext.Caller, error)
}

// RequireToken rejects requests without a valid X-Auth-Token with 401 and
// stores the resolved caller in the request context.
func RequireToken(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := r.Header.Get(AuthTokenHeader)
			if token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized,
					"The request you have made requires authentication."))
				return
			}

			caller, err := validator.Validate(ctx, token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized,
					"The request you have made requires authentication."))
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithPrincipal(ctx, caller)))
		})
	}
}
