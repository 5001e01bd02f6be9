package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/larderhq/larder/internal/model"
	"github.com/larderhq/larder/internal/token"
)

type RefreshTokenStore struct {
	db  *sql.DB
	ttl time.Duration
}

func NewRefreshTokenStore(db *sql.DB, ttl time.Duration) *RefreshTokenStore {
	return &RefreshTokenStore{db: db, ttl: ttl}
}

func scanRefreshToken(scanner interface{ Scan(...any) error }) (*model.RefreshToken, error) {
	var rt model.RefreshToken
	var revokedAt sql.NullTime

	err := scanner.Scan(
		&rt.ID, &rt.TokenHash, &rt.ClientID, &rt.UserID, &rt.Scope,
		&rt.ExpiresAt, &revokedAt, &rt.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		rt.RevokedAt = &revokedAt.Time
	}
	return &rt, nil
}

const refreshTokenCols = `id, token_hash, client_id, user_id, scope, expires_at, revoked_at, created_at`

// Create persists a new refresh token and returns it with the plaintext.
// Only the SHA-256 hash hits the database.
func (s *RefreshTokenStore) Create(clientID string, userID int64, scope string) (*model.RefreshToken, string, error) {
	plain := token.Random(32)
	hash := token.HashSHA256(plain)
	expiresAt := time.Now().Add(s.ttl)

	result, err := s.db.Exec(
		`INSERT INTO refresh_tokens (token_hash, client_id, user_id, scope, expires_at) VALUES (?, ?, ?, ?, ?)`,
		hash, clientID, userID, scope, sqlTime(expiresAt),
	)
	if err != nil {
		return nil, "", fmt.Errorf("insert refresh token: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, "", fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+refreshTokenCols+` FROM refresh_tokens WHERE id = ?`, id)
	rt, err := scanRefreshToken(row)
	if err != nil {
		return nil, "", fmt.Errorf("get refresh token: %w", err)
	}
	return rt, plain, nil
}

// Rotate revokes the presented token and mints its successor in one
// transaction. The revocation is a conditional update matching the live,
// unrevoked row, so a replay of an already-rotated token always loses the
// race: it returns nil with no new token minted.
func (s *RefreshTokenStore) Rotate(plain, clientID string) (*model.RefreshToken, string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, "", fmt.Errorf("begin rotation: %w", err)
	}
	defer tx.Rollback()

	hash := token.HashSHA256(plain)
	result, err := tx.Exec(
		`UPDATE refresh_tokens SET revoked_at = datetime('now')
		 WHERE token_hash = ? AND client_id = ? AND revoked_at IS NULL AND expires_at > datetime('now')`,
		hash, clientID,
	)
	if err != nil {
		return nil, "", fmt.Errorf("revoke refresh token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, "", fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return nil, "", nil
	}

	var old model.RefreshToken
	var revokedAt sql.NullTime
	err = tx.QueryRow(`SELECT `+refreshTokenCols+` FROM refresh_tokens WHERE token_hash = ?`, hash).Scan(
		&old.ID, &old.TokenHash, &old.ClientID, &old.UserID, &old.Scope,
		&old.ExpiresAt, &revokedAt, &old.CreatedAt,
	)
	if err != nil {
		return nil, "", fmt.Errorf("get revoked refresh token: %w", err)
	}

	newPlain := token.Random(32)
	newHash := token.HashSHA256(newPlain)
	expiresAt := time.Now().Add(s.ttl)

	insert, err := tx.Exec(
		`INSERT INTO refresh_tokens (token_hash, client_id, user_id, scope, expires_at) VALUES (?, ?, ?, ?, ?)`,
		newHash, old.ClientID, old.UserID, old.Scope, sqlTime(expiresAt),
	)
	if err != nil {
		return nil, "", fmt.Errorf("insert successor token: %w", err)
	}
	id, err := insert.LastInsertId()
	if err != nil {
		return nil, "", fmt.Errorf("last insert id: %w", err)
	}

	row := tx.QueryRow(`SELECT `+refreshTokenCols+` FROM refresh_tokens WHERE id = ?`, id)
	rt, err := scanRefreshToken(row)
	if err != nil {
		return nil, "", fmt.Errorf("get successor token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("commit rotation: %w", err)
	}
	return rt, newPlain, nil
}

// RevokeAllForUser invalidates every live refresh token a user holds, for
// use when an email is removed from the allowlist.
func (s *RefreshTokenStore) RevokeAllForUser(userID int64) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE refresh_tokens SET revoked_at = datetime('now') WHERE user_id = ? AND revoked_at IS NULL`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens for user: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

func (s *RefreshTokenStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM refresh_tokens WHERE expires_at <= datetime('now')`)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
