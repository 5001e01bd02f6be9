package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/larderhq/larder/internal/model"
)

type AllowlistStore struct {
	db *sql.DB
}

func NewAllowlistStore(db *sql.DB) *AllowlistStore {
	return &AllowlistStore{db: db}
}

func scanAllowlistEntry(scanner interface{ Scan(...any) error }) (*model.AllowlistEntry, error) {
	var e model.AllowlistEntry
	var invitedBy sql.NullString
	var firstSignedInAt sql.NullTime

	err := scanner.Scan(&e.ID, &e.Email, &e.Role, &invitedBy, &firstSignedInAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if invitedBy.Valid {
		e.InvitedBy = &invitedBy.String
	}
	if firstSignedInAt.Valid {
		e.FirstSignedInAt = &firstSignedInAt.Time
	}
	return &e, nil
}

const allowlistCols = `id, email, role, invited_by, first_signed_in_at, created_at`

func (s *AllowlistStore) GetByEmail(email string) (*model.AllowlistEntry, error) {
	row := s.db.QueryRow(`SELECT `+allowlistCols+` FROM allowlist WHERE email = ?`, strings.ToLower(email))
	e, err := scanAllowlistEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get allowlist entry: %w", err)
	}
	return e, nil
}

func (s *AllowlistStore) Create(email, role string, invitedBy *string) (*model.AllowlistEntry, error) {
	var inviter sql.NullString
	if invitedBy != nil {
		inviter = sql.NullString{String: strings.ToLower(*invitedBy), Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO allowlist (email, role, invited_by) VALUES (?, ?, ?)`,
		strings.ToLower(email), role, inviter,
	)
	if err != nil {
		return nil, fmt.Errorf("insert allowlist entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+allowlistCols+` FROM allowlist WHERE id = ?`, id)
	return scanAllowlistEntry(row)
}

func (s *AllowlistStore) Delete(email string) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM allowlist WHERE email = ?`, strings.ToLower(email))
	if err != nil {
		return false, fmt.Errorf("delete allowlist entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return rows > 0, nil
}

// MarkFirstSignIn records the first successful sign-in once; later sign-ins
// leave the original timestamp untouched.
func (s *AllowlistStore) MarkFirstSignIn(email string) error {
	_, err := s.db.Exec(
		`UPDATE allowlist SET first_signed_in_at = datetime('now') WHERE email = ? AND first_signed_in_at IS NULL`,
		strings.ToLower(email),
	)
	if err != nil {
		return fmt.Errorf("mark first sign-in: %w", err)
	}
	return nil
}
