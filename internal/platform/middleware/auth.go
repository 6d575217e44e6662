package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"anonpoll/pkg/requestcontext"
)

type contextKeyBearer struct{}

// ContextKeyBearer is exported for handler tests that bypass the middleware.
var ContextKeyBearer = contextKeyBearer{}

// GetBearerToken returns the raw credential extracted by RequireBearer.
func GetBearerToken(ctx context.Context) string {
	token, ok := ctx.Value(ContextKeyBearer).(string)
	if !ok {
		return ""
	}
	return token
}

// RequireBearer rejects requests without an Authorization bearer credential.
// Verification is left to the attestation service so that signature and
// expiry failures map to their own error codes.
func RequireBearer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			token = strings.TrimSpace(token)
			if !ok || token == "" {
				ctx := r.Context()
				logger.WarnContext(ctx, "unauthorized access - missing credential",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}
			ctx := context.WithValue(r.Context(), ContextKeyBearer, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdminToken guards endpoints called by trusted collaborators such as
// the identity verification subsystem.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Admin-Token")
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "admin token required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
