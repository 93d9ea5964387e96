package fakeapi

import (
	"context"
	"net/http"

	"github.com/ukydev/fleet-console/internal/models"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	UserContextKey contextKey = "user"
)

// authenticate validates the bearer token and adds the caller to the context.
// Tokens of deleted accounts are rejected.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := ExtractTokenFromHeader(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		claims, err := s.issuer.ValidateToken(token)
		if err != nil {
			msg := "Invalid token"
			if err == ErrExpiredToken {
				msg = "Token expired"
			}
			writeError(w, http.StatusUnauthorized, msg)
			return
		}

		s.mu.RLock()
		acc := s.accountByID(claims.UserID)
		s.mu.RUnlock()
		if acc == nil {
			writeError(w, http.StatusUnauthorized, "User no longer exists")
			return
		}
		// The stored role wins over the one in the token so role changes apply
		// immediately.
		claims.Role = acc.user.Role

		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireCap checks that the caller's role grants c.
func (s *Server) requireCap(c models.Capability, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetUserFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "User context not found")
			return
		}
		if !claims.Role.Can(c) {
			writeError(w, http.StatusForbidden, "Insufficient permissions")
			return
		}
		next(w, r)
	}
}

// GetUserFromContext extracts user claims from request context
func GetUserFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*Claims)
	return claims, ok
}
