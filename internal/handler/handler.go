// Package handler contains the HTTP handlers of the auth core.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/larderhq/larder/internal/allowlist"
	"github.com/larderhq/larder/internal/model"
	"github.com/larderhq/larder/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// syncUser lazily creates the user on first sign-in and keeps the role in
// sync with the allowlist entry.
func syncUser(users *store.UserStore, al *allowlist.Service, emailAddr string, entry *model.AllowlistEntry) (*model.User, error) {
	user, err := users.GetByEmail(emailAddr)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user, err = users.Create(emailAddr, entry.Role)
		if err != nil {
			return nil, err
		}
	} else if user.Role != entry.Role {
		if err := users.SetRole(user.ID, entry.Role); err != nil {
			return nil, err
		}
		user.Role = entry.Role
	}

	if err := al.MarkFirstSignIn(emailAddr); err != nil {
		return nil, err
	}
	return user, nil
}
