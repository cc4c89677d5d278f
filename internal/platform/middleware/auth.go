package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"papernet/internal/identity"
	"papernet/pkg/requestcontext"
)

// RequireAuth resolves the bearer credential into a caller identity and
// injects it into the request context. Requests without a resolvable
// credential are rejected with 401 before any handler runs.
func RequireAuth(resolver identity.Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			const bearerPrefix = "Bearer "
			credential, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok || credential == "" {
				logger.WarnContext(ctx, "unauthorized access, missing credential",
					"request_id", requestcontext.RequestID(ctx),
				)
				unauthorized(w, "Missing or invalid Authorization header")
				return
			}

			caller, err := resolver.ResolveCaller(ctx, credential)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access, invalid credential",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				unauthorized(w, "Invalid or expired credential")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(ctx, caller)))
		})
	}
}

func unauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
