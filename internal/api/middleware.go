package api

import (
	"context"
	"net/http"

	"github.com/halvard-dev/storefront/internal/auth"
)

type ctxKey int

const claimsKey ctxKey = iota

func withClaims(ctx context.Context, c *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// claimsFromContext returns the verified claims set by requireAuth.
func claimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*auth.Claims)
	return c, ok
}

// requireAuth verifies the bearer token and stores claims in the context.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ParseBearer(r.Header.Get("Authorization"))
		if err != nil {
			a.authFailure("missing_token")
			writeError(w, http.StatusUnauthorized, "Unauthorized", "Missing bearer token")
			return
		}

		claims, err := a.opts.Tokens.Parse(token)
		if err != nil {
			a.authFailure("invalid_token")
			writeError(w, http.StatusUnauthorized, "Unauthorized", "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

// requireAdmin is requireAuth plus a role check.
func (a *API) requireAdmin(next http.Handler) http.Handler {
	return a.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFromContext(r.Context())
		if !ok || claims.Role != auth.RoleAdmin {
			a.authFailure("not_admin")
			writeError(w, http.StatusForbidden, "Forbidden", "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// optionalAuth attaches claims when a valid token is present but never
// rejects; order creation accepts both guests and signed-in users.
func (a *API) optionalAuth(r *http.Request) *auth.Claims {
	token, err := auth.ParseBearer(r.Header.Get("Authorization"))
	if err != nil {
		return nil
	}
	claims, err := a.opts.Tokens.Parse(token)
	if err != nil {
		return nil
	}
	return claims
}

func (a *API) authFailure(reason string) {
	if a.opts.Metrics != nil {
		a.opts.Metrics.IncAuthFailure(reason)
	}
}
