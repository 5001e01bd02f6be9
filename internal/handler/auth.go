package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/larderhq/larder/internal/allowlist"
	"github.com/larderhq/larder/internal/audit"
	"github.com/larderhq/larder/internal/auth"
	"github.com/larderhq/larder/internal/middleware"
	"github.com/larderhq/larder/internal/model"
	"github.com/larderhq/larder/internal/store"
)

// EmailSender is the outbound mail collaborator. Delivery failures are
// logged, never surfaced to the requester.
type EmailSender interface {
	SendMagicLink(ctx context.Context, to, token string) error
}

type AuthHandler struct {
	allowlist     *allowlist.Service
	users         *store.UserStore
	sessions      *store.SessionStore
	magicLinks    *store.MagicLinkStore
	refreshTokens *store.RefreshTokenStore
	email         EmailSender
	audit         *audit.Logger
	sessionTTL    time.Duration
	secureCookies bool
	logger        *slog.Logger
}

func NewAuthHandler(
	al *allowlist.Service,
	us *store.UserStore,
	ss *store.SessionStore,
	mls *store.MagicLinkStore,
	rts *store.RefreshTokenStore,
	email EmailSender,
	auditLog *audit.Logger,
	sessionTTL time.Duration,
	secureCookies bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		allowlist:     al,
		users:         us,
		sessions:      ss,
		magicLinks:    mls,
		refreshTokens: rts,
		email:         email,
		audit:         auditLog,
		sessionTTL:    sessionTTL,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

// Send handles POST /auth/send. The response is {"success":true} no matter
// what: a malformed address, an unknown email, and a de-listed email all look
// identical from outside, so the endpoint cannot be used for enumeration.
func (h *AuthHandler) Send(w http.ResponseWriter, r *http.Request) {
	// Uniform response regardless of outcome.
	defer func() {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	}()

	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return
	}
	emailAddr := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(emailAddr); err != nil {
		return
	}

	entry, err := h.allowlist.IsAllowed(emailAddr)
	if err != nil {
		h.logger.Error("send lookup", "error", err)
		return
	}
	if entry == nil {
		h.audit.Event(audit.AllowlistRejected, "email", emailAddr, "op", "magic_link_request")
		return
	}

	ml, err := h.magicLinks.Create(emailAddr)
	if err != nil {
		h.logger.Error("create magic link", "error", err)
		return
	}
	h.audit.Event(audit.MagicLinkRequested, "email", emailAddr)

	if err := h.email.SendMagicLink(r.Context(), emailAddr, ml.Token); err != nil {
		h.logger.Error("send magic link", "error", err)
	}
}

// Verify handles GET /auth/verify?token=. The token is consumed before the
// allowlist re-check, so a token for a just-removed email burns even though
// it was genuine. Unknown, expired, and already-used tokens produce the same
// redirect.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		http.Redirect(w, r, "/login?error=invalid_token", http.StatusSeeOther)
		return
	}

	ml, err := h.magicLinks.Consume(tok)
	if err != nil {
		h.logger.Error("consume magic link", "error", err)
		http.Redirect(w, r, "/login?error=invalid_token", http.StatusSeeOther)
		return
	}
	if ml == nil {
		h.audit.Event(audit.MagicLinkRejected, "reason", "no_match")
		http.Redirect(w, r, "/login?error=invalid_token", http.StatusSeeOther)
		return
	}

	entry, err := h.allowlist.IsAllowed(ml.Email)
	if err != nil {
		h.logger.Error("verify allowlist lookup", "error", err)
		http.Redirect(w, r, "/login?error=invalid_token", http.StatusSeeOther)
		return
	}
	if entry == nil {
		h.audit.Event(audit.AllowlistRejected, "email", ml.Email, "op", "magic_link_verify")
		http.Redirect(w, r, "/login?error=invalid_token", http.StatusSeeOther)
		return
	}

	user, err := h.signIn(ml.Email, entry)
	if err != nil {
		h.logger.Error("magic link sign-in", "error", err)
		http.Redirect(w, r, "/login?error=internal", http.StatusSeeOther)
		return
	}

	if err := h.createSession(w, user); err != nil {
		h.logger.Error("create session", "error", err)
		http.Redirect(w, r, "/login?error=internal", http.StatusSeeOther)
		return
	}

	h.audit.Event(audit.MagicLinkVerified, "email", ml.Email, "user_id", user.ID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) signIn(emailAddr string, entry *model.AllowlistEntry) (*model.User, error) {
	return syncUser(h.users, h.allowlist, emailAddr, entry)
}

func (h *AuthHandler) createSession(w http.ResponseWriter, user *model.User) error {
	_, plain, err := h.sessions.Create(user.ID)
	if err != nil {
		return err
	}

	// Secure comes from configuration: behind a TLS-terminating proxy the
	// direct connection is plain HTTP but the cookie must still be Secure.
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    plain,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookies,
	})
	h.audit.Event(audit.SessionCreated, "user_id", user.ID)
	return nil
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if ac, ok := auth.FromContext(r.Context()); ok {
		if err := h.sessions.Delete(ac.SessionID); err != nil {
			h.logger.Error("delete session", "error", err)
		}
		h.audit.Event(audit.SessionDeleted, "user_id", ac.UserID)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// AllowlistAdd handles POST /api/allowlist. The inviter's own allowlist
// entry decides what roles they may grant; an owner may grant anything,
// everyone else only roles strictly below their own.
func (h *AuthHandler) AllowlistAdd(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(req.Email)); err != nil {
		http.Error(w, "Invalid email", http.StatusBadRequest)
		return
	}

	inviter, err := h.allowlist.IsAllowed(ac.Email)
	if err != nil || inviter == nil {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	entry, err := h.allowlist.Add(req.Email, req.Role, inviter)
	switch {
	case err == allowlist.ErrRoleTooHigh:
		http.Error(w, "Cannot grant a role at or above your own", http.StatusForbidden)
		return
	case err == allowlist.ErrInvalidRole:
		http.Error(w, "Invalid role", http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error("allowlist add", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	// Invitation email: a fresh magic link so the invitee can sign in.
	if ml, err := h.magicLinks.Create(entry.Email); err != nil {
		h.logger.Error("create invite link", "error", err)
	} else if err := h.email.SendMagicLink(r.Context(), entry.Email, ml.Token); err != nil {
		h.logger.Error("send invite link", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(entry)
}

// AllowlistRemove handles DELETE /api/allowlist/{email}. Owner only.
// Removal takes effect immediately: live sessions and refresh tokens for the
// email are killed here, and unexpired magic links die at their next
// redemption's allowlist re-check.
func (h *AuthHandler) AllowlistRemove(w http.ResponseWriter, r *http.Request) {
	if !auth.IsOwner(r.Context()) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	emailAddr := strings.ToLower(r.PathValue("email"))
	removed, err := h.allowlist.Remove(emailAddr)
	if err != nil {
		h.logger.Error("allowlist remove", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if !removed {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	if user, err := h.users.GetByEmail(emailAddr); err == nil && user != nil {
		if _, err := h.sessions.DeleteForUser(user.ID); err != nil {
			h.logger.Error("delete sessions for removed user", "error", err)
		}
		if _, err := h.refreshTokens.RevokeAllForUser(user.ID); err != nil {
			h.logger.Error("revoke tokens for removed user", "error", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
