package allowlist

import (
	"errors"
	"testing"

	"github.com/larderhq/larder/internal/database"
	"github.com/larderhq/larder/internal/model"
	"github.com/larderhq/larder/internal/store"
)

func setupService(t *testing.T) *Service {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return NewService(store.NewAllowlistStore(db))
}

func TestAddGrantPolicy(t *testing.T) {
	owner := &model.AllowlistEntry{Email: "owner@example.com", Role: model.RoleOwner}
	family := &model.AllowlistEntry{Email: "family@example.com", Role: model.RoleFamily}
	friend := &model.AllowlistEntry{Email: "friend@example.com", Role: model.RoleFriend}

	tests := []struct {
		name    string
		inviter *model.AllowlistEntry
		role    string
		wantErr error
	}{
		{"owner grants owner", owner, model.RoleOwner, nil},
		{"owner grants family", owner, model.RoleFamily, nil},
		{"owner grants friend", owner, model.RoleFriend, nil},
		{"family grants friend", family, model.RoleFriend, nil},
		{"family grants family", family, model.RoleFamily, ErrRoleTooHigh},
		{"family grants owner", family, model.RoleOwner, ErrRoleTooHigh},
		{"friend grants friend", friend, model.RoleFriend, ErrRoleTooHigh},
		{"unknown role", owner, "admin", ErrInvalidRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupService(t)
			entry, err := s.Add("new@example.com", tt.role, tt.inviter)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil {
				if entry == nil || entry.Role != tt.role {
					t.Errorf("entry = %+v, want role %q", entry, tt.role)
				}
				if entry.InvitedBy == nil || *entry.InvitedBy != tt.inviter.Email {
					t.Error("invited_by not recorded")
				}
			}
		})
	}
}

func TestAddIdempotent(t *testing.T) {
	s := setupService(t)
	owner := &model.AllowlistEntry{Email: "owner@example.com", Role: model.RoleOwner}

	first, err := s.Add("alice@example.com", model.RoleFriend, owner)
	if err != nil {
		t.Fatalf("first add: %v", err)
	}

	again, err := s.Add("alice@example.com", model.RoleFamily, owner)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if again.ID != first.ID {
		t.Error("expected the existing entry back")
	}
	if again.Role != model.RoleFriend {
		t.Error("re-adding must not overwrite the role")
	}
}

func TestIsAllowedNormalizesEmail(t *testing.T) {
	s := setupService(t)
	owner := &model.AllowlistEntry{Email: "owner@example.com", Role: model.RoleOwner}
	s.Add("alice@example.com", model.RoleFriend, owner)

	entry, err := s.IsAllowed("  ALICE@Example.com ")
	if err != nil {
		t.Fatalf("is allowed: %v", err)
	}
	if entry == nil {
		t.Error("expected entry for differently-cased email")
	}

	entry, err = s.IsAllowed("bob@example.com")
	if err != nil {
		t.Fatalf("is allowed: %v", err)
	}
	if entry != nil {
		t.Error("expected nil for unlisted email")
	}
}

func TestRemoveTakesEffect(t *testing.T) {
	s := setupService(t)
	owner := &model.AllowlistEntry{Email: "owner@example.com", Role: model.RoleOwner}
	s.Add("alice@example.com", model.RoleFriend, owner)

	removed, err := s.Remove("alice@example.com")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Fatal("expected removal")
	}

	entry, _ := s.IsAllowed("alice@example.com")
	if entry != nil {
		t.Error("removed email must not be allowed")
	}
}

func TestBootstrapOwnerIdempotent(t *testing.T) {
	s := setupService(t)

	if err := s.BootstrapOwner("owner@example.com"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	entry, _ := s.IsAllowed("owner@example.com")
	if entry == nil || entry.Role != model.RoleOwner {
		t.Fatalf("entry = %+v, want owner", entry)
	}

	if err := s.BootstrapOwner("owner@example.com"); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}

	// An existing entry is never overwritten, even a demoted one.
	s.Remove("owner@example.com")
	s.Add("owner@example.com", model.RoleFriend, nil)
	if err := s.BootstrapOwner("owner@example.com"); err != nil {
		t.Fatalf("third bootstrap: %v", err)
	}
	entry, _ = s.IsAllowed("owner@example.com")
	if entry.Role != model.RoleFriend {
		t.Error("bootstrap must not overwrite an existing entry")
	}
}
