package auth

import (
	"net/http"
)

// Middleware authenticates every request via the X-API-Key header. It never
// rejects the request itself — RequireAuth does that — so handlers that want
// to allow anonymous access can still run after it.
func Middleware(authenticator *APIKeyAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey := r.Header.Get("X-API-Key")
			if rawKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := authenticator.Authenticate(r.Context(), rawKey)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := NewContext(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects any request without a resolved identity in context.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized","message":"a valid X-API-Key header is required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
