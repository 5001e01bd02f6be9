package handler

import (
	"log/slog"
	"net/http"

	"github.com/larderhq/larder/internal/audit"
	"github.com/larderhq/larder/internal/auth"
	"github.com/larderhq/larder/internal/oauth"
)

// ToolsHandler fronts the tool endpoints that OAuth clients call with bearer
// tokens. Authorization is decided here from the grant's scopes; the tool
// implementations themselves live with the recipe and grocery services.
type ToolsHandler struct {
	audit  *audit.Logger
	logger *slog.Logger
}

func NewToolsHandler(auditLog *audit.Logger, logger *slog.Logger) *ToolsHandler {
	return &ToolsHandler{audit: auditLog, logger: logger}
}

// Call handles POST /api/tools/{name}.
func (h *ToolsHandler) Call(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	grant := auth.GrantFromContext(r.Context())

	if !oauth.IsAuthorizedForTool(grant, name) {
		if grant == nil {
			h.audit.Event(audit.AccessDenied, "tool", name, "reason", "no_token")
			w.Header().Set("WWW-Authenticate", `Bearer realm="larder"`)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
			return
		}
		h.audit.Event(audit.AccessDenied, "tool", name, "client_id", grant.ClientID, "reason", "insufficient_scope")
		w.Header().Set("WWW-Authenticate", `Bearer realm="larder", error="insufficient_scope"`)
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "insufficient_scope"})
		return
	}

	resp := map[string]any{"tool": name, "status": "ok"}
	if grant != nil {
		resp["user_id"] = grant.UserID
	}
	writeJSON(w, http.StatusOK, resp)
}
