package handler

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/larderhq/larder/internal/allowlist"
	"github.com/larderhq/larder/internal/audit"
	"github.com/larderhq/larder/internal/auth"
	"github.com/larderhq/larder/internal/model"
	"github.com/larderhq/larder/internal/oauth"
	"github.com/larderhq/larder/internal/store"
	"github.com/larderhq/larder/internal/token"
)

type OAuthHandler struct {
	clients            *store.OAuthClientStore
	codes              *store.AuthCodeStore
	refreshTokens      *store.RefreshTokenStore
	users              *store.UserStore
	allowlist          *allowlist.Service
	issuer             *oauth.TokenIssuer
	audit              *audit.Logger
	registrationSecret string
	consentTmpl        *template.Template
	logger             *slog.Logger
}

func NewOAuthHandler(
	cs *store.OAuthClientStore,
	acs *store.AuthCodeStore,
	rts *store.RefreshTokenStore,
	us *store.UserStore,
	al *allowlist.Service,
	issuer *oauth.TokenIssuer,
	auditLog *audit.Logger,
	registrationSecret string,
	logger *slog.Logger,
) *OAuthHandler {
	return &OAuthHandler{
		clients:            cs,
		codes:              acs,
		refreshTokens:      rts,
		users:              us,
		allowlist:          al,
		issuer:             issuer,
		audit:              auditLog,
		registrationSecret: registrationSecret,
		consentTmpl:        template.Must(template.New("consent").Parse(consentTemplate)),
		logger:             logger,
	}
}

// oauthError is the standard error body for OAuth endpoints.
func oauthError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}

// Register handles POST /oauth/register (RFC 7591 subset). Clients and
// their redirect URI sets are immutable once registered.
func (h *OAuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if h.registrationSecret != "" {
		presented, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !token.Equal(strings.TrimSpace(presented), h.registrationSecret) {
			oauthError(w, http.StatusUnauthorized, "invalid_client", "registration requires a valid registration secret")
			return
		}
	}

	var req struct {
		ClientName              string   `json:"client_name"`
		RedirectURIs            []string `json:"redirect_uris"`
		TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		oauthError(w, http.StatusBadRequest, "invalid_client_metadata", "request body is not valid JSON")
		return
	}
	if strings.TrimSpace(req.ClientName) == "" {
		oauthError(w, http.StatusBadRequest, "invalid_client_metadata", "client_name is required")
		return
	}
	if len(req.RedirectURIs) == 0 {
		oauthError(w, http.StatusBadRequest, "invalid_redirect_uri", "at least one redirect_uri is required")
		return
	}
	for _, uri := range req.RedirectURIs {
		if err := oauth.ValidateRedirectURI(uri); err != nil {
			oauthError(w, http.StatusBadRequest, "invalid_redirect_uri", err.Error())
			return
		}
	}

	clientID := uuid.NewString()

	// Public clients (native apps) get no secret; everyone else gets one,
	// returned exactly once. Only the hash is persisted.
	var secret string
	var secretHash *string
	if req.TokenEndpointAuthMethod != "none" {
		secret = token.Random(32)
		hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			h.logger.Error("hash client secret", "error", err)
			oauthError(w, http.StatusInternalServerError, "server_error", "failed to register client")
			return
		}
		s := string(hashed)
		secretHash = &s
	}

	client, err := h.clients.Create(clientID, secretHash, strings.TrimSpace(req.ClientName), req.RedirectURIs)
	if err != nil {
		h.logger.Error("create oauth client", "error", err)
		oauthError(w, http.StatusInternalServerError, "server_error", "failed to register client")
		return
	}

	h.audit.Event(audit.ClientRegistered, "client_id", client.ClientID, "name", client.Name)

	resp := map[string]any{
		"client_id":     client.ClientID,
		"client_name":   client.Name,
		"redirect_uris": client.RedirectURIs,
	}
	if secret != "" {
		resp["client_secret"] = secret
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusCreated, resp)
}

// authorizeRequest carries the validated parameters of an authorization
// request between the GET (consent page) and POST (decision) handlers.
type authorizeRequest struct {
	client        *model.OAuthClient
	redirectURI   string
	scope         string
	codeChallenge string
	state         string
}

// parseAuthorizeRequest validates an authorization request. Client and
// redirect URI problems are terminal (no redirect to an unvalidated URI);
// everything else can be reported to the client via redirect.
func (h *OAuthHandler) parseAuthorizeRequest(values url.Values) (*authorizeRequest, string) {
	client, err := h.clients.GetByClientID(values.Get("client_id"))
	if err != nil {
		h.logger.Error("authorize client lookup", "error", err)
		return nil, "server error"
	}
	if client == nil {
		return nil, "unknown client"
	}
	redirectURI := values.Get("redirect_uri")
	if !oauth.RegisteredRedirectURI(client.RedirectURIs, redirectURI) {
		return nil, "redirect_uri is not registered for this client"
	}

	req := &authorizeRequest{
		client:        client,
		redirectURI:   redirectURI,
		scope:         strings.TrimSpace(values.Get("scope")),
		codeChallenge: values.Get("code_challenge"),
		state:         values.Get("state"),
	}

	// An absent method would default to plain per RFC 7636; only S256 is
	// accepted, so the method must be stated.
	if method := values.Get("code_challenge_method"); method != "S256" {
		return req, "code_challenge_method must be S256"
	}
	if req.codeChallenge == "" {
		return req, "code_challenge is required"
	}
	if !oauth.ValidScope(req.scope) {
		return req, "unknown or empty scope"
	}
	return req, ""
}

func redirectWithError(w http.ResponseWriter, r *http.Request, redirectURI, state, errCode string) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}
	q := u.Query()
	q.Set("error", errCode)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusSeeOther)
}

// AuthorizePage handles GET /oauth/authorize: shows the session-holding
// resource owner what the client is asking for.
func (h *OAuthHandler) AuthorizePage(w http.ResponseWriter, r *http.Request) {
	req, problem := h.parseAuthorizeRequest(r.URL.Query())
	if req == nil {
		http.Error(w, problem, http.StatusBadRequest)
		return
	}
	if problem != "" {
		redirectWithError(w, r, req.redirectURI, req.state, "invalid_request")
		return
	}

	scopes := oauth.SplitScope(req.scope)
	descriptions := make([]string, 0, len(scopes))
	for _, s := range scopes {
		descriptions = append(descriptions, oauth.ScopeDescription(s))
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	h.consentTmpl.Execute(w, map[string]any{
		"ClientName":    req.client.Name,
		"ClientID":      req.client.ClientID,
		"RedirectURI":   req.redirectURI,
		"Scope":         req.scope,
		"Scopes":        descriptions,
		"CodeChallenge": req.codeChallenge,
		"State":         req.state,
	})
}

// Authorize handles POST /oauth/authorize: the consent decision. Approval
// mints a short-lived authorization code bound to the client, redirect URI,
// PKCE challenge, scope and user.
func (h *OAuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	req, problem := h.parseAuthorizeRequest(r.PostForm)
	if req == nil {
		http.Error(w, problem, http.StatusBadRequest)
		return
	}
	if problem != "" {
		redirectWithError(w, r, req.redirectURI, req.state, "invalid_request")
		return
	}

	if r.PostForm.Get("action") != "approve" {
		h.audit.Event(audit.ConsentDenied, "client_id", req.client.ClientID, "user_id", ac.UserID)
		redirectWithError(w, r, req.redirectURI, req.state, "access_denied")
		return
	}

	code, err := h.codes.Create(req.client.ClientID, ac.UserID, req.redirectURI, req.codeChallenge, req.scope)
	if err != nil {
		h.logger.Error("create auth code", "error", err)
		redirectWithError(w, r, req.redirectURI, req.state, "server_error")
		return
	}

	h.audit.Event(audit.CodeIssued, "client_id", req.client.ClientID, "user_id", ac.UserID, "scope", req.scope)

	u, _ := url.Parse(req.redirectURI)
	q := u.Query()
	q.Set("code", code.Code)
	if req.state != "" {
		q.Set("state", req.state)
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusSeeOther)
}

// clientCredentials extracts client authentication from HTTP Basic or the
// form body. Basic components are URL-decoded per RFC 6749 §2.3.1.
func clientCredentials(r *http.Request) (string, string) {
	if id, secret, ok := r.BasicAuth(); ok {
		if decoded, err := url.QueryUnescape(id); err == nil {
			id = decoded
		}
		if decoded, err := url.QueryUnescape(secret); err == nil {
			secret = decoded
		}
		return id, secret
	}
	return r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
}

// authenticateClient loads the client and, when it is confidential, verifies
// the presented secret against the stored hash.
func (h *OAuthHandler) authenticateClient(r *http.Request) (*model.OAuthClient, bool) {
	clientID, secret := clientCredentials(r)
	client, err := h.clients.GetByClientID(clientID)
	if err != nil {
		h.logger.Error("token client lookup", "error", err)
		return nil, false
	}
	if client == nil {
		return nil, false
	}
	if client.ClientSecretHash != nil {
		if secret == "" {
			return nil, false
		}
		if bcrypt.CompareHashAndPassword([]byte(*client.ClientSecretHash), []byte(secret)) != nil {
			return nil, false
		}
	}
	return client, true
}

// Token handles POST /oauth/token.
func (h *OAuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	if err := r.ParseForm(); err != nil {
		oauthError(w, http.StatusBadRequest, "invalid_request", "request body is not valid form data")
		return
	}

	client, ok := h.authenticateClient(r)
	if !ok {
		oauthError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		h.exchangeCode(w, r, client)
	case "refresh_token":
		h.rotateRefreshToken(w, r, client)
	default:
		oauthError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be authorization_code or refresh_token")
	}
}

func (h *OAuthHandler) exchangeCode(w http.ResponseWriter, r *http.Request, client *model.OAuthClient) {
	code := r.PostForm.Get("code")
	redirectURI := r.PostForm.Get("redirect_uri")
	verifier := r.PostForm.Get("code_verifier")
	if code == "" || redirectURI == "" || verifier == "" {
		oauthError(w, http.StatusBadRequest, "invalid_request", "code, redirect_uri and code_verifier are required")
		return
	}

	// One conditional update: unknown, expired, already-used, wrong-client
	// and wrong-redirect codes are all the same no-match from here.
	grant, err := h.codes.Consume(code, client.ClientID, redirectURI)
	if err != nil {
		h.logger.Error("consume auth code", "error", err)
		oauthError(w, http.StatusInternalServerError, "server_error", "failed to redeem code")
		return
	}
	if grant == nil {
		h.audit.Event(audit.CodeRejected, "client_id", client.ClientID, "reason", "no_match")
		oauthError(w, http.StatusBadRequest, "invalid_grant", "authorization code is invalid")
		return
	}

	// The code is consumed above regardless of what happens next: a wrong
	// verifier cannot be corrected and retried.
	if !token.Equal(token.S256Challenge(verifier), grant.CodeChallenge) {
		h.audit.Event(audit.CodeRejected, "client_id", client.ClientID, "reason", "pkce_mismatch")
		oauthError(w, http.StatusBadRequest, "invalid_grant", "code_verifier does not match the challenge")
		return
	}

	if !h.userStillAllowed(grant.UserID) {
		h.audit.Event(audit.AllowlistRejected, "client_id", client.ClientID, "user_id", grant.UserID, "op", "code_exchange")
		oauthError(w, http.StatusBadRequest, "invalid_grant", "authorization code is invalid")
		return
	}

	h.audit.Event(audit.CodeExchanged, "client_id", client.ClientID, "user_id", grant.UserID, "scope", grant.Scope)
	h.issueTokens(w, client.ClientID, grant.UserID, grant.Scope)
}

func (h *OAuthHandler) rotateRefreshToken(w http.ResponseWriter, r *http.Request, client *model.OAuthClient) {
	presented := r.PostForm.Get("refresh_token")
	if presented == "" {
		oauthError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	// Revocation of the presented token and creation of its successor are
	// one atomic step; replaying a rotated token always fails here.
	rotated, plain, err := h.refreshTokens.Rotate(presented, client.ClientID)
	if err != nil {
		h.logger.Error("rotate refresh token", "error", err)
		oauthError(w, http.StatusInternalServerError, "server_error", "failed to rotate token")
		return
	}
	if rotated == nil {
		h.audit.Event(audit.TokenReplay, "client_id", client.ClientID)
		oauthError(w, http.StatusBadRequest, "invalid_grant", "refresh token is invalid")
		return
	}

	if !h.userStillAllowed(rotated.UserID) {
		h.audit.Event(audit.AllowlistRejected, "client_id", client.ClientID, "user_id", rotated.UserID, "op", "token_rotation")
		oauthError(w, http.StatusBadRequest, "invalid_grant", "refresh token is invalid")
		return
	}

	accessToken, err := h.issuer.Mint(client.ClientID, rotated.UserID, rotated.Scope)
	if err != nil {
		h.logger.Error("mint access token", "error", err)
		oauthError(w, http.StatusInternalServerError, "server_error", "failed to mint token")
		return
	}

	h.audit.Event(audit.TokenRotated, "client_id", client.ClientID, "user_id", rotated.UserID)
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  accessToken,
		"token_type":    "Bearer",
		"expires_in":    int(h.issuer.TTL().Seconds()),
		"refresh_token": plain,
		"scope":         rotated.Scope,
	})
}

func (h *OAuthHandler) issueTokens(w http.ResponseWriter, clientID string, userID int64, scope string) {
	accessToken, err := h.issuer.Mint(clientID, userID, scope)
	if err != nil {
		h.logger.Error("mint access token", "error", err)
		oauthError(w, http.StatusInternalServerError, "server_error", "failed to mint token")
		return
	}
	_, refreshPlain, err := h.refreshTokens.Create(clientID, userID, scope)
	if err != nil {
		h.logger.Error("create refresh token", "error", err)
		oauthError(w, http.StatusInternalServerError, "server_error", "failed to mint token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  accessToken,
		"token_type":    "Bearer",
		"expires_in":    int(h.issuer.TTL().Seconds()),
		"refresh_token": refreshPlain,
		"scope":         scope,
	})
}

// userStillAllowed re-checks admission at redemption time. Allowlist removal
// must take effect immediately, even for already-issued grants.
func (h *OAuthHandler) userStillAllowed(userID int64) bool {
	user, err := h.users.GetByID(userID)
	if err != nil || user == nil {
		return false
	}
	entry, err := h.allowlist.IsAllowed(user.Email)
	if err != nil {
		h.logger.Error("token allowlist lookup", "error", err)
		return false
	}
	return entry != nil
}

const consentTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Authorize {{.ClientName}} - Larder</title>
</head>
<body>
<h1>{{.ClientName}} wants access to your Larder</h1>
<ul>
{{range .Scopes}}<li>{{.}}</li>
{{end}}</ul>
<form method="POST" action="/oauth/authorize">
<input type="hidden" name="client_id" value="{{.ClientID}}">
<input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
<input type="hidden" name="scope" value="{{.Scope}}">
<input type="hidden" name="code_challenge" value="{{.CodeChallenge}}">
<input type="hidden" name="code_challenge_method" value="S256">
<input type="hidden" name="state" value="{{.State}}">
<button type="submit" name="action" value="approve">Allow</button>
<button type="submit" name="action" value="deny">Deny</button>
</form>
</body>
</html>
`
