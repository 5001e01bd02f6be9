package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/larderhq/larder/internal/model"
	"github.com/larderhq/larder/internal/token"
)

type MagicLinkStore struct {
	db  *sql.DB
	ttl time.Duration
}

func NewMagicLinkStore(db *sql.DB, ttl time.Duration) *MagicLinkStore {
	return &MagicLinkStore{db: db, ttl: ttl}
}

func scanMagicLink(scanner interface{ Scan(...any) error }) (*model.MagicLink, error) {
	var ml model.MagicLink
	var usedAt sql.NullTime

	err := scanner.Scan(&ml.ID, &ml.Token, &ml.Email, &ml.ExpiresAt, &usedAt, &ml.CreatedAt)
	if err != nil {
		return nil, err
	}
	if usedAt.Valid {
		ml.UsedAt = &usedAt.Time
	}
	return &ml, nil
}

const magicLinkCols = `id, token, email, expires_at, used_at, created_at`

// Create mints a new single-use sign-in token for the email. At most one
// unused token exists per email: prior pending tokens are invalidated first.
func (s *MagicLinkStore) Create(email string) (*model.MagicLink, error) {
	email = strings.ToLower(email)

	_, err := s.db.Exec(
		`UPDATE magic_links SET used_at = datetime('now') WHERE email = ? AND used_at IS NULL AND expires_at > datetime('now')`,
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("invalidate previous tokens: %w", err)
	}

	plain := token.Random(32)
	expiresAt := time.Now().Add(s.ttl)

	result, err := s.db.Exec(
		`INSERT INTO magic_links (token, email, expires_at) VALUES (?, ?, ?)`,
		plain, email, sqlTime(expiresAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert magic link: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+magicLinkCols+` FROM magic_links WHERE id = ?`, id)
	return scanMagicLink(row)
}

// Consume atomically marks the token used and returns it. Returns nil if the
// token is unknown, expired, or already used; the caller cannot tell which.
func (s *MagicLinkStore) Consume(plain string) (*model.MagicLink, error) {
	result, err := s.db.Exec(
		`UPDATE magic_links SET used_at = datetime('now') WHERE token = ? AND used_at IS NULL AND expires_at > datetime('now')`,
		plain,
	)
	if err != nil {
		return nil, fmt.Errorf("consume magic link: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return nil, nil
	}

	row := s.db.QueryRow(`SELECT `+magicLinkCols+` FROM magic_links WHERE token = ?`, plain)
	ml, err := scanMagicLink(row)
	if err != nil {
		return nil, fmt.Errorf("get consumed magic link: %w", err)
	}
	return ml, nil
}

func (s *MagicLinkStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM magic_links WHERE expires_at <= datetime('now')`)
	if err != nil {
		return 0, fmt.Errorf("delete expired magic links: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
