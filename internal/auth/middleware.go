// Package auth guards the transaction-sending and import endpoints with API keys.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/pendergraft/permitclaim/internal/storage"
)

type contextKey struct{}

// ErrorWriter writes a JSON error response.
type ErrorWriter func(w http.ResponseWriter, status int, code, message string)

// KeyFromContext returns the API key that authenticated the request, or nil.
func KeyFromContext(ctx context.Context) *storage.APIKey {
	key, _ := ctx.Value(contextKey{}).(*storage.APIKey)
	return key
}

// Operator names the caller for audit logs: the key name, or "anonymous".
func Operator(ctx context.Context) string {
	if key := KeyFromContext(ctx); key != nil {
		return key.Name
	}
	return "anonymous"
}

// Middleware rejects requests without a valid key in X-API-Key or an
// Authorization bearer token.
func Middleware(store storage.APIKeyStore, writeError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := presentedKey(r)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key required")
				return
			}

			key, err := store.ValidateAPIKey(r.Context(), raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, key)))
		})
	}
}

func presentedKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
