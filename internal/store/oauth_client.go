package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/larderhq/larder/internal/model"
)

// OAuthClientStore persists dynamically registered clients. Clients are
// immutable after registration; there is deliberately no update method.
type OAuthClientStore struct {
	db *sql.DB
}

func NewOAuthClientStore(db *sql.DB) *OAuthClientStore {
	return &OAuthClientStore{db: db}
}

func scanOAuthClient(scanner interface{ Scan(...any) error }) (*model.OAuthClient, error) {
	var c model.OAuthClient
	var secretHash sql.NullString
	var redirectURIs string

	err := scanner.Scan(&c.ID, &c.ClientID, &secretHash, &c.Name, &redirectURIs, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if secretHash.Valid {
		c.ClientSecretHash = &secretHash.String
	}
	if err := json.Unmarshal([]byte(redirectURIs), &c.RedirectURIs); err != nil {
		return nil, fmt.Errorf("unmarshal redirect uris: %w", err)
	}
	return &c, nil
}

const oauthClientCols = `id, client_id, client_secret_hash, name, redirect_uris, created_at`

func (s *OAuthClientStore) Create(clientID string, secretHash *string, name string, redirectURIs []string) (*model.OAuthClient, error) {
	uris, err := json.Marshal(redirectURIs)
	if err != nil {
		return nil, fmt.Errorf("marshal redirect uris: %w", err)
	}

	var hash sql.NullString
	if secretHash != nil {
		hash = sql.NullString{String: *secretHash, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO oauth_clients (client_id, client_secret_hash, name, redirect_uris) VALUES (?, ?, ?, ?)`,
		clientID, hash, name, string(uris),
	)
	if err != nil {
		return nil, fmt.Errorf("insert oauth client: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+oauthClientCols+` FROM oauth_clients WHERE id = ?`, id)
	return scanOAuthClient(row)
}

func (s *OAuthClientStore) GetByClientID(clientID string) (*model.OAuthClient, error) {
	row := s.db.QueryRow(`SELECT `+oauthClientCols+` FROM oauth_clients WHERE client_id = ?`, clientID)
	c, err := scanOAuthClient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get oauth client: %w", err)
	}
	return c, nil
}
