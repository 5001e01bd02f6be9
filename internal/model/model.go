// Package model holds the entities of the auth core.
package model

import "time"

// Roles, strongest first. A non-owner may only invite strictly below their
// own role.
const (
	RoleOwner  = "owner"
	RoleFamily = "family"
	RoleFriend = "friend"
)

type AllowlistEntry struct {
	ID              int64      `json:"id"`
	Email           string     `json:"email"`
	Role            string     `json:"role"`
	InvitedBy       *string    `json:"invited_by"`
	FirstSignedInAt *time.Time `json:"first_signed_in_at"`
	CreatedAt       time.Time  `json:"created_at"`
}

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session is a first-party browser session. Only the SHA-256 hash of the
// opaque token is stored; the plaintext lives in the HTTP-only cookie.
type Session struct {
	ID        int64     `json:"id"`
	TokenHash string    `json:"-"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type MagicLink struct {
	ID        int64      `json:"id"`
	Token     string     `json:"-"`
	Email     string     `json:"email"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// PasskeyCredential is a WebAuthn public-key credential bound to a user.
// CredentialID is base64url-encoded for storage and lookup.
type PasskeyCredential struct {
	ID              int64      `json:"id"`
	CredentialID    string     `json:"credential_id"`
	UserID          int64      `json:"user_id"`
	PublicKey       []byte     `json:"-"`
	AttestationType string     `json:"attestation_type"`
	SignCount       uint32     `json:"sign_count"`
	DeviceType      string     `json:"device_type"`
	BackedUp        bool       `json:"backed_up"`
	Transports      []string   `json:"transports"`
	LastUsedAt      *time.Time `json:"last_used_at"`
	CreatedAt       time.Time  `json:"created_at"`
}

// OAuthClient is a dynamically registered third-party application.
// ClientSecretHash is nil for public clients. Redirect URIs are immutable
// after registration.
type OAuthClient struct {
	ID               int64     `json:"id"`
	ClientID         string    `json:"client_id"`
	ClientSecretHash *string   `json:"-"`
	Name             string    `json:"client_name"`
	RedirectURIs     []string  `json:"redirect_uris"`
	CreatedAt        time.Time `json:"created_at"`
}

type AuthorizationCode struct {
	ID            int64      `json:"id"`
	Code          string     `json:"-"`
	ClientID      string     `json:"client_id"`
	UserID        int64      `json:"user_id"`
	RedirectURI   string     `json:"redirect_uri"`
	CodeChallenge string     `json:"-"`
	Scope         string     `json:"scope"`
	ExpiresAt     time.Time  `json:"expires_at"`
	UsedAt        *time.Time `json:"used_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

type RefreshToken struct {
	ID        int64      `json:"id"`
	TokenHash string     `json:"-"`
	ClientID  string     `json:"client_id"`
	UserID    int64      `json:"user_id"`
	Scope     string     `json:"scope"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at"`
	CreatedAt time.Time  `json:"created_at"`
}
