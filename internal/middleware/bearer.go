package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/larderhq/larder/internal/auth"
	"github.com/larderhq/larder/internal/oauth"
)

// Bearer verifies an OAuth access token, if one is presented, and stores the
// resulting grant in the request context. Requests without an Authorization
// header pass through anonymously so that public tools stay reachable; a
// presented-but-invalid token is rejected outright.
func Bearer(issuer *oauth.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				writeBearerError(w)
				return
			}
			grant, err := issuer.Verify(strings.TrimSpace(raw))
			if err != nil {
				writeBearerError(w)
				return
			}

			ctx := auth.WithGrant(r.Context(), grant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeBearerError(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":             "invalid_token",
		"error_description": "the access token is invalid or expired",
	})
}
