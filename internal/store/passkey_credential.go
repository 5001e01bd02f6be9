package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/larderhq/larder/internal/model"
)

type PasskeyCredentialStore struct {
	db *sql.DB
}

func NewPasskeyCredentialStore(db *sql.DB) *PasskeyCredentialStore {
	return &PasskeyCredentialStore{db: db}
}

func scanPasskeyCredential(scanner interface{ Scan(...any) error }) (*model.PasskeyCredential, error) {
	var pc model.PasskeyCredential
	var backedUp int
	var transports string
	var lastUsedAt sql.NullTime

	err := scanner.Scan(
		&pc.ID, &pc.CredentialID, &pc.UserID, &pc.PublicKey, &pc.AttestationType,
		&pc.SignCount, &pc.DeviceType, &backedUp, &transports, &lastUsedAt, &pc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	pc.BackedUp = backedUp != 0
	if lastUsedAt.Valid {
		pc.LastUsedAt = &lastUsedAt.Time
	}
	if err := json.Unmarshal([]byte(transports), &pc.Transports); err != nil {
		pc.Transports = nil
	}
	return &pc, nil
}

const passkeyCredentialCols = `id, credential_id, user_id, public_key, attestation_type, sign_count, device_type, backed_up, transports, last_used_at, created_at`

func (s *PasskeyCredentialStore) Create(pc *model.PasskeyCredential) (*model.PasskeyCredential, error) {
	transports, err := json.Marshal(pc.Transports)
	if err != nil {
		return nil, fmt.Errorf("marshal transports: %w", err)
	}
	backedUp := 0
	if pc.BackedUp {
		backedUp = 1
	}

	result, err := s.db.Exec(
		`INSERT INTO passkey_credentials (credential_id, user_id, public_key, attestation_type, sign_count, device_type, backed_up, transports)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		pc.CredentialID, pc.UserID, pc.PublicKey, pc.AttestationType,
		pc.SignCount, pc.DeviceType, backedUp, string(transports),
	)
	if err != nil {
		return nil, fmt.Errorf("insert passkey credential: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.getByID(id)
}

func (s *PasskeyCredentialStore) getByID(id int64) (*model.PasskeyCredential, error) {
	row := s.db.QueryRow(`SELECT `+passkeyCredentialCols+` FROM passkey_credentials WHERE id = ?`, id)
	pc, err := scanPasskeyCredential(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get passkey credential: %w", err)
	}
	return pc, nil
}

func (s *PasskeyCredentialStore) GetByCredentialID(credentialID string) (*model.PasskeyCredential, error) {
	row := s.db.QueryRow(`SELECT `+passkeyCredentialCols+` FROM passkey_credentials WHERE credential_id = ?`, credentialID)
	pc, err := scanPasskeyCredential(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get passkey credential by id: %w", err)
	}
	return pc, nil
}

func (s *PasskeyCredentialStore) ListByUser(userID int64) ([]*model.PasskeyCredential, error) {
	rows, err := s.db.Query(`SELECT `+passkeyCredentialCols+` FROM passkey_credentials WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list passkey credentials: %w", err)
	}
	defer rows.Close()

	var creds []*model.PasskeyCredential
	for rows.Next() {
		pc, err := scanPasskeyCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan passkey credential: %w", err)
		}
		creds = append(creds, pc)
	}
	return creds, rows.Err()
}

// UpdateSignCount records a successful authentication. Counters only move
// forward; the verification layer rejects regressions before calling this.
func (s *PasskeyCredentialStore) UpdateSignCount(credentialID string, signCount uint32) error {
	_, err := s.db.Exec(
		`UPDATE passkey_credentials SET sign_count = ?, last_used_at = datetime('now') WHERE credential_id = ?`,
		signCount, credentialID,
	)
	if err != nil {
		return fmt.Errorf("update sign count: %w", err)
	}
	return nil
}

func (s *PasskeyCredentialStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM passkey_credentials WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete passkey credential: %w", err)
	}
	return nil
}
