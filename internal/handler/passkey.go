package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/larderhq/larder/internal/allowlist"
	"github.com/larderhq/larder/internal/audit"
	"github.com/larderhq/larder/internal/auth"
	"github.com/larderhq/larder/internal/middleware"
	"github.com/larderhq/larder/internal/model"
	"github.com/larderhq/larder/internal/passkey"
	"github.com/larderhq/larder/internal/store"
)

type PasskeyHandler struct {
	svc        *passkey.Service
	allowlist  *allowlist.Service
	users      *store.UserStore
	creds      *store.PasskeyCredentialStore
	sessions   *store.SessionStore
	audit         *audit.Logger
	sessionTTL    time.Duration
	secureCookies bool
	logger        *slog.Logger
}

func NewPasskeyHandler(
	svc *passkey.Service,
	al *allowlist.Service,
	us *store.UserStore,
	cs *store.PasskeyCredentialStore,
	ss *store.SessionStore,
	auditLog *audit.Logger,
	sessionTTL time.Duration,
	secureCookies bool,
	logger *slog.Logger,
) *PasskeyHandler {
	return &PasskeyHandler{
		svc:           svc,
		allowlist:     al,
		users:         us,
		creds:         cs,
		sessions:      ss,
		audit:         auditLog,
		sessionTTL:    sessionTTL,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

// ceremonyRequest is the two-phase body shape: an empty body (or absent
// response field) starts a ceremony; a response field finishes one.
type ceremonyRequest struct {
	Response json.RawMessage `json:"response"`
}

func readCeremonyRequest(r *http.Request) (ceremonyRequest, error) {
	var req ceremonyRequest
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return req, err
	}
	if len(body) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, err
	}
	return req, nil
}

func (h *PasskeyHandler) setChallengeCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     passkey.ChallengeCookieName,
		Value:    value,
		Path:     "/auth/passkey",
		MaxAge:   int(passkey.ChallengeTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookies,
	})
}

func clearChallengeCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     passkey.ChallengeCookieName,
		Value:    "",
		Path:     "/auth/passkey",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// Register handles POST /auth/passkey/register (session required).
func (h *PasskeyHandler) Register(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	user, err := h.users.GetByID(ac.UserID)
	if err != nil || user == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	req, err := readCeremonyRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	existing, err := h.creds.ListByUser(user.ID)
	if err != nil {
		h.logger.Error("list credentials", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		return
	}

	if req.Response == nil {
		options, cookie, err := h.svc.BeginRegistration(user, existing)
		if err != nil {
			h.logger.Error("begin registration", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
			return
		}
		h.setChallengeCookie(w, cookie)
		writeJSON(w, http.StatusOK, options)
		return
	}

	cookie, err := r.Cookie(passkey.ChallengeCookieName)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_challenge"})
		return
	}

	cred, err := h.svc.FinishRegistration(user, existing, cookie.Value, req.Response)
	clearChallengeCookie(w)
	switch {
	case errors.Is(err, passkey.ErrInvalidChallenge):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_challenge"})
		return
	case err != nil:
		h.audit.Event(audit.PasskeyRejected, "user_id", user.ID, "op", "register")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "verification_failed"})
		return
	}

	stored, err := h.creds.Create(cred)
	if err != nil {
		h.logger.Error("store credential", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		return
	}

	h.audit.Event(audit.PasskeyRegistered, "user_id", user.ID, "credential_id", stored.CredentialID)
	writeJSON(w, http.StatusOK, map[string]string{"credential_id": stored.CredentialID})
}

// Authenticate handles POST /auth/passkey/authenticate. No session needed:
// the credential is located by the ID asserted in the response.
func (h *PasskeyHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	req, err := readCeremonyRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	if req.Response == nil {
		options, cookie, err := h.svc.BeginAuthentication()
		if err != nil {
			h.logger.Error("begin authentication", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
			return
		}
		h.setChallengeCookie(w, cookie)
		writeJSON(w, http.StatusOK, options)
		return
	}

	cookie, err := r.Cookie(passkey.ChallengeCookieName)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_challenge"})
		return
	}

	lookup := func(credentialID string) (*model.PasskeyCredential, *model.User, error) {
		pc, err := h.creds.GetByCredentialID(credentialID)
		if err != nil || pc == nil {
			return nil, nil, err
		}
		user, err := h.users.GetByID(pc.UserID)
		if err != nil {
			return nil, nil, err
		}
		return pc, user, nil
	}

	user, cred, newCount, err := h.svc.FinishAuthentication(cookie.Value, req.Response, lookup)
	clearChallengeCookie(w)
	switch {
	case errors.Is(err, passkey.ErrInvalidChallenge):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_challenge"})
		return
	case errors.Is(err, passkey.ErrCredentialNotFound):
		h.audit.Event(audit.PasskeyRejected, "reason", "credential_not_found")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "credential_not_found"})
		return
	case err != nil:
		h.audit.Event(audit.PasskeyRejected, "reason", "verification_failed")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "verification_failed"})
		return
	}

	// Admission is re-checked at redemption, exactly as for magic links.
	entry, err := h.allowlist.IsAllowed(user.Email)
	if err != nil {
		h.logger.Error("passkey allowlist lookup", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		return
	}
	if entry == nil {
		h.audit.Event(audit.AllowlistRejected, "email", user.Email, "op", "passkey_authenticate")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "verification_failed"})
		return
	}

	user, err = syncUser(h.users, h.allowlist, user.Email, entry)
	if err != nil {
		h.logger.Error("passkey sign-in", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		return
	}

	// Counter moves forward only after every check has passed.
	if err := h.creds.UpdateSignCount(cred.CredentialID, newCount); err != nil {
		h.logger.Error("update sign count", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		return
	}

	_, plain, err := h.sessions.Create(user.ID)
	if err != nil {
		h.logger.Error("create session", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    plain,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secureCookies,
	})

	h.audit.Event(audit.PasskeyLogin, "user_id", user.ID, "credential_id", cred.CredentialID)
	h.audit.Event(audit.SessionCreated, "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]any{"user_id": user.ID, "email": user.Email})
}
