package handler

import (
	"net/http"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/auth"
)

// HeaderAPIKey carries the raw API key.
const HeaderAPIKey = "X-API-Key"

// Authenticate resolves the X-API-Key header and stores the key in the
// request context. Requests without a valid key get 401.
func Authenticate(authn *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := authn.Authenticate(r.Context(), r.Header.Get(HeaderAPIKey))
			if err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithKey(r.Context(), info)))
		})
	}
}

// RequireScope rejects callers whose key was not granted scope.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := auth.KeyFrom(r.Context())
			if !ok {
				writeError(w, r, auth.ErrUnauthorized)
				return
			}
			if !info.HasScope(scope) {
				writeStatus(w, http.StatusForbidden, "API key lacks scope "+scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitKey keys rate limiting by API key id, falling back to fallback
// for unauthenticated requests.
func RateLimitKey(fallback func(*http.Request) string) func(*http.Request) string {
	return func(r *http.Request) string {
		if info, ok := auth.KeyFrom(r.Context()); ok {
			return "key:" + info.ID
		}
		return fallback(r)
	}
}
