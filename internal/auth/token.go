package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ukydev/fleet-console/internal/models"
)

// ErrInvalidToken is returned by InspectToken for anything that is not a JWT.
var ErrInvalidToken = errors.New("invalid token")

// TokenInfo holds the claims the console can read from a credential without the
// signing key. It is never used to grant access; the API stays the authority.
type TokenInfo struct {
	UserID    string
	Username  string
	Role      models.Role
	ExpiresAt time.Time
}

// Expired reports whether the credential has passed its expiry at now. Tokens
// without an expiry never expire locally.
func (i TokenInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// InspectToken decodes the claims of a JWT without verifying its signature.
// Tokens that are not JWTs yield ErrInvalidToken.
func InspectToken(token string) (TokenInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, ErrInvalidToken
	}

	var info TokenInfo
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return TokenInfo{}, ErrInvalidToken
	}
	if exp != nil {
		info.ExpiresAt = exp.Time
	}
	if id, ok := claims["user_id"].(string); ok {
		info.UserID = id
	} else if sub, err := claims.GetSubject(); err == nil {
		info.UserID = sub
	}
	info.Username, _ = claims["username"].(string)
	if role, ok := claims["role"].(string); ok {
		info.Role = models.Role(role)
	}
	return info, nil
}
