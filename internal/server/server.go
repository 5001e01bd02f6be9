// Package server wires the stores, handlers and middleware into an HTTP
// server.
package server

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/larderhq/larder/internal/allowlist"
	"github.com/larderhq/larder/internal/audit"
	"github.com/larderhq/larder/internal/config"
	"github.com/larderhq/larder/internal/handler"
	"github.com/larderhq/larder/internal/middleware"
	"github.com/larderhq/larder/internal/oauth"
	"github.com/larderhq/larder/internal/passkey"
	"github.com/larderhq/larder/internal/store"
)

type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	users         *store.UserStore
	sessions      *store.SessionStore
	magicLinks    *store.MagicLinkStore
	authCodes     *store.AuthCodeStore
	refreshTokens *store.RefreshTokenStore

	allowlist *allowlist.Service
	issuer    *oauth.TokenIssuer
	limiter   *middleware.RateLimiter

	authHandler    *handler.AuthHandler
	passkeyHandler *handler.PasskeyHandler
	oauthHandler   *handler.OAuthHandler
	toolsHandler   *handler.ToolsHandler
}

func New(cfg *config.Config, db *sql.DB, email handler.EmailSender, logger *slog.Logger) (*Server, error) {
	users := store.NewUserStore(db)
	sessions := store.NewSessionStore(db, cfg.SessionTTL)
	magicLinks := store.NewMagicLinkStore(db, cfg.MagicLinkTTL)
	credentials := store.NewPasskeyCredentialStore(db)
	clients := store.NewOAuthClientStore(db)
	authCodes := store.NewAuthCodeStore(db)
	refreshTokens := store.NewRefreshTokenStore(db, cfg.RefreshTokenTTL)

	allowlistSvc := allowlist.NewService(store.NewAllowlistStore(db))
	issuer := oauth.NewTokenIssuer(cfg.SigningSecret, cfg.AccessTokenTTL)
	auditLog := audit.NewLogger(logger)

	passkeySvc, err := passkey.NewService(cfg.RPID, cfg.RPOrigin, cfg.SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("passkey service: %w", err)
	}

	// The public scheme, not the direct connection, decides the Secure flag:
	// behind a TLS-terminating proxy requests arrive over plain HTTP.
	secureCookies := strings.HasPrefix(cfg.BaseURL, "https://")

	return &Server{
		cfg:           cfg,
		logger:        logger,
		users:         users,
		sessions:      sessions,
		magicLinks:    magicLinks,
		authCodes:     authCodes,
		refreshTokens: refreshTokens,
		allowlist:     allowlistSvc,
		issuer:        issuer,
		limiter:       middleware.NewRateLimiter(),
		authHandler: handler.NewAuthHandler(
			allowlistSvc, users, sessions, magicLinks, refreshTokens,
			email, auditLog, cfg.SessionTTL, secureCookies, logger,
		),
		passkeyHandler: handler.NewPasskeyHandler(
			passkeySvc, allowlistSvc, users, credentials, sessions,
			auditLog, cfg.SessionTTL, secureCookies, logger,
		),
		oauthHandler: handler.NewOAuthHandler(
			clients, authCodes, refreshTokens, users, allowlistSvc,
			issuer, auditLog, cfg.RegistrationSecret, logger,
		),
		toolsHandler: handler.NewToolsHandler(auditLog, logger),
	}, nil
}

// BootstrapOwner seeds the allowlist with the configured owner email.
func (s *Server) BootstrapOwner() error {
	if s.cfg.OwnerEmail == "" {
		return nil
	}
	return s.allowlist.BootstrapOwner(s.cfg.OwnerEmail)
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	perIP := func(limit int, window time.Duration) func(http.Handler) http.Handler {
		return middleware.RateLimit(s.limiter, middleware.RealIP, limit, window)
	}
	requireAuth := middleware.RequireAuth(s.sessions, s.users)
	bearer := middleware.Bearer(s.issuer)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET /login", s.loginPage)

	// Credential endpoints: rate limited where an attacker could probe.
	mux.Handle("POST /auth/send",
		perIP(5, time.Minute)(http.HandlerFunc(s.authHandler.Send)))
	mux.Handle("GET /auth/verify",
		perIP(10, time.Minute)(http.HandlerFunc(s.authHandler.Verify)))
	mux.Handle("POST /auth/passkey/authenticate",
		perIP(10, time.Minute)(http.HandlerFunc(s.passkeyHandler.Authenticate)))

	mux.HandleFunc("POST /oauth/register", s.oauthHandler.Register)
	mux.Handle("POST /oauth/token",
		perIP(20, time.Minute)(http.HandlerFunc(s.oauthHandler.Token)))

	// Session-holding endpoints.
	mux.Handle("POST /auth/passkey/register", requireAuth(http.HandlerFunc(s.passkeyHandler.Register)))
	mux.Handle("GET /oauth/authorize", requireAuth(http.HandlerFunc(s.oauthHandler.AuthorizePage)))
	mux.Handle("POST /oauth/authorize", requireAuth(http.HandlerFunc(s.oauthHandler.Authorize)))
	mux.Handle("POST /logout", requireAuth(http.HandlerFunc(s.authHandler.Logout)))
	mux.Handle("POST /api/allowlist", requireAuth(http.HandlerFunc(s.authHandler.AllowlistAdd)))
	mux.Handle("DELETE /api/allowlist/{email}",
		requireAuth(middleware.RequireOwner(http.HandlerFunc(s.authHandler.AllowlistRemove))))

	// Bearer-token endpoints for OAuth clients.
	mux.Handle("POST /api/tools/{name}", bearer(http.HandlerFunc(s.toolsHandler.Call)))

	return middleware.RequestLogger(s.logger)(mux)
}

// Sweep deletes expired credentials and prunes stale rate-limit windows.
func (s *Server) Sweep() {
	sweeps := []struct {
		name string
		fn   func() (int64, error)
	}{
		{"sessions", s.sessions.DeleteExpired},
		{"magic_links", s.magicLinks.DeleteExpired},
		{"auth_codes", s.authCodes.DeleteExpired},
		{"refresh_tokens", s.refreshTokens.DeleteExpired},
	}
	for _, sw := range sweeps {
		count, err := sw.fn()
		if err != nil {
			s.logger.Error("sweep failed", "table", sw.name, "error", err)
			continue
		}
		if count > 0 {
			s.logger.Info("swept expired rows", "table", sw.name, "count", count)
		}
	}
	s.limiter.Cleanup()
}

func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(loginPageHTML))
}

const loginPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Sign in - Larder</title>
</head>
<body>
<h1>Sign in to Larder</h1>
<p>Enter your email and we will send you a sign-in link.</p>
<form id="send">
<input type="email" name="email" placeholder="you@example.com" required>
<button type="submit">Send link</button>
</form>
<script>
document.getElementById("send").addEventListener("submit", async (e) => {
  e.preventDefault();
  await fetch("/auth/send", {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify({email: e.target.email.value}),
  });
  e.target.outerHTML = "<p>Check your email for a sign-in link.</p>";
});
</script>
</body>
</html>
`
