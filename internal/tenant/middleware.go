package tenant

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/cloudsentinel/riskguard/internal/authn"
)

// bearerToken extracts the token from the Authorization: Bearer header, or
// the token query parameter (used by the websocket subscribe endpoint,
// which cannot set headers before the upgrade handshake completes).
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return after
		}
	}
	return r.URL.Query().Get("token")
}

// Middleware authenticates the request's bearer token and stores the
// resulting organization id in the request context. Requests without a
// valid token are rejected with 401.
func Middleware(verifier authn.Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, `{"detail":"missing bearer token"}`, http.StatusUnauthorized)
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				logger.Warn("tenant: token verification failed", "error", err)
				http.Error(w, `{"detail":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := NewContext(r.Context(), claims.OrganizationID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
