package auth

import (
	"context"
	"crypto/subtle"

	dErrors "github.com/cernops/keystone/pkg/domainerrors"
	strs "github.com/cernops/keystone/pkg/platform/strings"
	"github.com/cernops/keystone/pkg/requestcontext"
)

// BootstrapUserID identifies callers presenting the shared admin token.
const BootstrapUserID = "bootstrap-admin"

// Validator resolves X-Auth-Token values. The configured admin token maps
// to a bootstrap caller holding the admin role; anything else must be a
// valid JWT.
type Validator struct {
	adminToken []byte
	jwt        *JWTService
}

// NewValidator builds a validator. An empty adminToken disables the shared
// token; a nil jwt disables scoped tokens.
func NewValidator(adminToken string, jwt *JWTService) *Validator {
	return &Validator{adminToken: []byte(adminToken), jwt: jwt}
}

func (v *Validator) Validate(_ context.Context, token string) (requestcontext.Caller, error) {
	if len(v.adminToken) > 0 && subtle.ConstantTimeCompare([]byte(token), v.adminToken) == 1 {
		return requestcontext.Caller{
			UserID:    BootstrapUserID,
			Roles:     []string{RoleAdmin},
			Bootstrap: true,
		}, nil
	}
	if v.jwt == nil {
		return requestcontext.Caller{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, err := v.jwt.ValidateToken(token)
	if err != nil {
		return requestcontext.Caller{}, err
	}
	return requestcontext.Caller{
		UserID:   claims.UserID,
		DomainID: claims.DomainID,
		Roles:    strs.DedupeFold(claims.Roles),
	}, nil
}
