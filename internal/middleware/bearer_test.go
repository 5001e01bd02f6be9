package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/larderhq/larder/internal/auth"
	"github.com/larderhq/larder/internal/oauth"
)

func TestBearerAnonymousPassThrough(t *testing.T) {
	issuer := oauth.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), time.Hour)

	var sawGrant *auth.Grant
	h := Bearer(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawGrant = auth.GrantFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/tools/ping", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if sawGrant != nil {
		t.Error("expected no grant for anonymous request")
	}
}

func TestBearerValidToken(t *testing.T) {
	issuer := oauth.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	raw, err := issuer.Mint("client-1", 42, "recipes:read")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	var sawGrant *auth.Grant
	h := Bearer(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawGrant = auth.GrantFromContext(r.Context())
	}))

	req := httptest.NewRequest("POST", "/api/tools/list_recipes", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if sawGrant == nil {
		t.Fatal("expected a grant")
	}
	if sawGrant.UserID != 42 || sawGrant.ClientID != "client-1" {
		t.Errorf("grant = %+v", sawGrant)
	}
}

func TestBearerInvalidToken(t *testing.T) {
	issuer := oauth.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), time.Hour)

	tests := []string{
		"Bearer garbage",
		"Basic dXNlcjpwYXNz",
	}
	for _, header := range tests {
		h := Bearer(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler must not run for invalid token")
		}))

		req := httptest.NewRequest("POST", "/api/tools/ping", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d, want 401", header, rec.Code)
		}
		if rec.Header().Get("WWW-Authenticate") == "" {
			t.Errorf("header %q: missing WWW-Authenticate", header)
		}
	}
}
