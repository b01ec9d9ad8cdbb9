package session

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	autherrors "github.com/jrsteele09/go-admin-console/internal/errors"
	"github.com/jrsteele09/go-admin-console/internal/utils"
	"github.com/pkg/errors"
)

// ParseClaims decodes the claims of an access token without checking its
// signature. The console never holds the identity service's signing keys; the
// server side check is the provider's VerifiedClaims.
func ParseClaims(rawToken string) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, errors.Wrap(autherrors.ErrInvalidToken, "[ParseClaims] empty token")
	}

	token, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return nil, errors.Wrap(autherrors.ErrInvalidToken, err.Error())
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.Wrap(autherrors.ErrInvalidToken, "[ParseClaims] error extracting claims")
	}

	sub, _ := mapClaims["sub"].(string)
	email, _ := mapClaims["email"].(string)
	exp, _ := mapClaims["exp"].(float64)
	iat, _ := mapClaims["iat"].(float64)

	if sub == "" {
		return nil, errors.Wrap(autherrors.ErrInvalidToken, "[ParseClaims] token missing sub claim")
	}
	if exp == 0 {
		return nil, errors.Wrap(autherrors.ErrInvalidToken, "[ParseClaims] token missing exp claim")
	}

	var roles []string
	if claimRoles, ok := mapClaims["roles"].([]any); ok {
		roles = utils.ToStringSlice(claimRoles)
	}

	return &Claims{
		Subject:   sub,
		Email:     email,
		ExpiresAt: int64(exp),
		IssuedAt:  int64(iat),
		Roles:     roles,
	}, nil
}
