package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/authsession/pkg/jwtx"
)

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

type ctxKey string

const ctxKeyClaims ctxKey = "claims"

// BearerToken extracts the token from an Authorization header. The scheme
// is matched case-insensitively ("bearer" and "Bearer" are both sent).
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(authz, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// AuthnMiddleware rejects requests without a bearer accepted by verify and
// stores the claims in the request context.
func AuthnMiddleware(verify func(token string) (jwtx.Claims, error)) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := verify(raw)
			if err != nil {
				writeBearerError(w, "token verification failed")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the claims stored by AuthnMiddleware.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(ctxKeyClaims).(jwtx.Claims)
	return c, ok
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}
