// Package oauth implements the token-level pieces of the authorization
// server: self-contained access tokens, scope policy for tools, and redirect
// URI validation.
package oauth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/larderhq/larder/internal/auth"
)

const issuer = "larder"

// ErrInvalidToken covers every access-token verification failure: bad
// signature, expired, malformed. Callers get no finer signal.
var ErrInvalidToken = errors.New("invalid access token")

type accessClaims struct {
	ClientID string `json:"client_id"`
	Scope    string `json:"scope"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies HS256 access tokens. Verification is
// stateless: signature and expiry only, no store lookup, so the resource
// server scales independently of the authorization server.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, ttl: ttl}
}

// TTL returns the access-token lifetime, for the expires_in response field.
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

func (t *TokenIssuer) Mint(clientID string, userID int64, scope string) (string, error) {
	now := time.Now()
	claims := accessClaims{
		ClientID: clientID,
		Scope:    scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify validates signature and expiry and returns the embedded grant.
func (t *TokenIssuer) Verify(raw string) (*auth.Grant, error) {
	var claims accessClaims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &auth.Grant{
		ClientID: claims.ClientID,
		UserID:   userID,
		Scopes:   SplitScope(claims.Scope),
	}, nil
}

// SplitScope splits a space-delimited scope string, dropping empties.
func SplitScope(scope string) []string {
	return strings.Fields(scope)
}
