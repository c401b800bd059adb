package httpx

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"libraryapi/internal/platform/crypto"
)

// RevocationCheck reports whether a token id was logged out.
type RevocationCheck func(ctx context.Context, jti string) (bool, error)

type authConfig struct {
	revoked RevocationCheck
}

type AuthOption func(*authConfig)

func WithRevocationCheck(check RevocationCheck) AuthOption {
	return func(c *authConfig) { c.revoked = check }
}

// AuthMiddleware requires a valid bearer token and puts its subject and
// role on the request context.
func AuthMiddleware(secret string, opts ...AuthOption) func(http.Handler) http.Handler {
	var cfg authConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				JSONError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token", nil)
				return
			}

			claims, err := crypto.ParseToken(secret, strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				msg := "Invalid token"
				if crypto.IsExpired(err) {
					msg = "Token expired"
				}
				JSONError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", msg, nil)
				return
			}
			if cfg.revoked != nil {
				revoked, err := cfg.revoked(r.Context(), claims.ID)
				if err != nil {
					InternalError(w, r)
					return
				}
				if revoked {
					JSONError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Token revoked", nil)
					return
				}
			}

			ctx := ContextWithUser(r.Context(), claims.Sub, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken returns the raw token from the Authorization header.
func BearerToken(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// RequireRole lets through only users with one of roles. It must run after AuthMiddleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !slices.Contains(roles, RoleFrom(r)) {
				JSONError(w, r, http.StatusForbidden, "FORBIDDEN", "Insufficient role", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Chain applies middlewares so the first one listed runs first.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
