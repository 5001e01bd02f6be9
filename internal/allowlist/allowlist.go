// Package allowlist makes the admission decisions: which emails may obtain
// any credential at all, and with what role. Membership is re-checked at
// every credential redemption, never only at issuance, so removing an email
// takes effect immediately.
package allowlist

import (
	"errors"
	"fmt"
	"strings"

	"github.com/larderhq/larder/internal/model"
	"github.com/larderhq/larder/internal/store"
)

var (
	// ErrNotAllowed means the email has no allowlist entry.
	ErrNotAllowed = errors.New("email is not allowlisted")
	// ErrRoleTooHigh means an inviter tried to grant a role at or above
	// their own. Only the owner may grant any role.
	ErrRoleTooHigh = errors.New("inviter cannot grant this role")
	// ErrInvalidRole means the role is not one of owner/family/friend.
	ErrInvalidRole = errors.New("invalid role")
)

// rank orders roles for the invitation policy; higher is stronger.
var rank = map[string]int{
	model.RoleFriend: 1,
	model.RoleFamily: 2,
	model.RoleOwner:  3,
}

type Service struct {
	store *store.AllowlistStore
}

func NewService(s *store.AllowlistStore) *Service {
	return &Service{store: s}
}

// IsAllowed returns the entry for an email, or nil if it is not admitted.
func (s *Service) IsAllowed(email string) (*model.AllowlistEntry, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil
	}
	return s.store.GetByEmail(email)
}

// Add admits an email with a role. Idempotent: if the email is already
// present the existing entry is returned and its role is not overwritten.
// A non-owner inviter may only grant a role strictly below their own.
func (s *Service) Add(email, role string, inviter *model.AllowlistEntry) (*model.AllowlistEntry, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, ok := rank[role]; !ok {
		return nil, ErrInvalidRole
	}
	if inviter != nil && inviter.Role != model.RoleOwner && rank[role] >= rank[inviter.Role] {
		return nil, ErrRoleTooHigh
	}

	existing, err := s.store.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	var invitedBy *string
	if inviter != nil {
		invitedBy = &inviter.Email
	}
	return s.store.Create(email, role, invitedBy)
}

// Remove deletes an email from the allowlist. Live magic links and refresh
// tokens for the email die at their next redemption check.
func (s *Service) Remove(email string) (bool, error) {
	return s.store.Delete(email)
}

// MarkFirstSignIn records the first successful sign-in for an email.
func (s *Service) MarkFirstSignIn(email string) error {
	return s.store.MarkFirstSignIn(email)
}

// BootstrapOwner ensures exactly one owner entry exists for the configured
// email without overwriting an existing entry. Safe to call repeatedly.
func (s *Service) BootstrapOwner(email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}
	existing, err := s.store.GetByEmail(email)
	if err != nil {
		return fmt.Errorf("bootstrap owner lookup: %w", err)
	}
	if existing != nil {
		return nil
	}
	if _, err := s.store.Create(email, model.RoleOwner, nil); err != nil {
		return fmt.Errorf("bootstrap owner: %w", err)
	}
	return nil
}
