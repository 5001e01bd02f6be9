package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/larderhq/larder/internal/model"
	"github.com/larderhq/larder/internal/token"
)

// authCodeTTL is short by design: a code only needs to survive one redirect.
const authCodeTTL = 5 * time.Minute

type AuthCodeStore struct {
	db *sql.DB
}

func NewAuthCodeStore(db *sql.DB) *AuthCodeStore {
	return &AuthCodeStore{db: db}
}

func scanAuthCode(scanner interface{ Scan(...any) error }) (*model.AuthorizationCode, error) {
	var ac model.AuthorizationCode
	var usedAt sql.NullTime

	err := scanner.Scan(
		&ac.ID, &ac.Code, &ac.ClientID, &ac.UserID, &ac.RedirectURI,
		&ac.CodeChallenge, &ac.Scope, &ac.ExpiresAt, &usedAt, &ac.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if usedAt.Valid {
		ac.UsedAt = &usedAt.Time
	}
	return &ac, nil
}

const authCodeCols = `id, code, client_id, user_id, redirect_uri, code_challenge, scope, expires_at, used_at, created_at`

// Create mints an authorization code bound to the client, user, redirect URI
// and PKCE challenge approved on the consent screen.
func (s *AuthCodeStore) Create(clientID string, userID int64, redirectURI, codeChallenge, scope string) (*model.AuthorizationCode, error) {
	code := token.Random(32)
	expiresAt := time.Now().Add(authCodeTTL)

	result, err := s.db.Exec(
		`INSERT INTO auth_codes (code, client_id, user_id, redirect_uri, code_challenge, scope, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		code, clientID, userID, redirectURI, codeChallenge, scope, sqlTime(expiresAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert auth code: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+authCodeCols+` FROM auth_codes WHERE id = ?`, id)
	return scanAuthCode(row)
}

// Consume atomically marks the code used, matching on code, client and
// redirect URI in the same conditional update. Returns nil on any no-match:
// unknown code, wrong client, wrong redirect URI, expired, or already used.
// The code burns even if the caller's PKCE check fails afterward.
func (s *AuthCodeStore) Consume(code, clientID, redirectURI string) (*model.AuthorizationCode, error) {
	result, err := s.db.Exec(
		`UPDATE auth_codes SET used_at = datetime('now')
		 WHERE code = ? AND client_id = ? AND redirect_uri = ? AND used_at IS NULL AND expires_at > datetime('now')`,
		code, clientID, redirectURI,
	)
	if err != nil {
		return nil, fmt.Errorf("consume auth code: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return nil, nil
	}

	row := s.db.QueryRow(`SELECT `+authCodeCols+` FROM auth_codes WHERE code = ?`, code)
	ac, err := scanAuthCode(row)
	if err != nil {
		return nil, fmt.Errorf("get consumed auth code: %w", err)
	}
	return ac, nil
}

func (s *AuthCodeStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM auth_codes WHERE expires_at <= datetime('now')`)
	if err != nil {
		return 0, fmt.Errorf("delete expired auth codes: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
