// Package passkey wraps the WebAuthn ceremonies. Challenge state lives in a
// signed, time-stamped cookie held by the client, not in server memory, so
// ceremonies survive stateless invocations.
package passkey

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/larderhq/larder/internal/model"
)

var (
	// ErrInvalidChallenge means the challenge cookie is missing, expired,
	// or failed signature verification.
	ErrInvalidChallenge = errors.New("invalid or expired challenge")
	// ErrVerificationFailed means the cryptographic ceremony failed,
	// including a signature counter that did not advance.
	ErrVerificationFailed = errors.New("passkey verification failed")
	// ErrCredentialNotFound means the asserted credential ID is unknown.
	ErrCredentialNotFound = errors.New("credential not found")
)

type Service struct {
	wa     *webauthn.WebAuthn
	secret []byte
}

func NewService(rpID, rpOrigin string, secret []byte) (*Service, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: "Larder",
		RPID:          rpID,
		RPOrigins:     []string{rpOrigin},
	})
	if err != nil {
		return nil, fmt.Errorf("configure webauthn: %w", err)
	}
	return &Service{wa: wa, secret: secret}, nil
}

// webauthnUser adapts a user and their stored credentials to the library's
// User interface.
type webauthnUser struct {
	user  *model.User
	creds []webauthn.Credential
}

func (u *webauthnUser) WebAuthnID() []byte {
	return []byte(strconv.FormatInt(u.user.ID, 10))
}
func (u *webauthnUser) WebAuthnName() string                       { return u.user.Email }
func (u *webauthnUser) WebAuthnDisplayName() string                { return u.user.Email }
func (u *webauthnUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

func newWebauthnUser(user *model.User, stored []*model.PasskeyCredential) (*webauthnUser, error) {
	creds := make([]webauthn.Credential, 0, len(stored))
	for _, pc := range stored {
		c, err := toLibraryCredential(pc)
		if err != nil {
			return nil, err
		}
		creds = append(creds, *c)
	}
	return &webauthnUser{user: user, creds: creds}, nil
}

func toLibraryCredential(pc *model.PasskeyCredential) (*webauthn.Credential, error) {
	id, err := base64.RawURLEncoding.DecodeString(pc.CredentialID)
	if err != nil {
		return nil, fmt.Errorf("decode credential id: %w", err)
	}
	transports := make([]protocol.AuthenticatorTransport, 0, len(pc.Transports))
	for _, t := range pc.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}
	return &webauthn.Credential{
		ID:              id,
		PublicKey:       pc.PublicKey,
		AttestationType: pc.AttestationType,
		Transport:       transports,
		Flags: webauthn.CredentialFlags{
			BackupEligible: pc.BackedUp,
			BackupState:    pc.BackedUp,
		},
		Authenticator: webauthn.Authenticator{
			SignCount: pc.SignCount,
		},
	}, nil
}

func fromLibraryCredential(userID int64, c *webauthn.Credential) *model.PasskeyCredential {
	transports := make([]string, 0, len(c.Transport))
	for _, t := range c.Transport {
		transports = append(transports, string(t))
	}
	deviceType := "single-device"
	if c.Flags.BackupEligible {
		deviceType = "multi-device"
	}
	return &model.PasskeyCredential{
		CredentialID:    base64.RawURLEncoding.EncodeToString(c.ID),
		UserID:          userID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		SignCount:       c.Authenticator.SignCount,
		DeviceType:      deviceType,
		BackedUp:        c.Flags.BackupState,
		Transports:      transports,
	}
}

// BeginRegistration starts a registration ceremony for an authenticated
// user. Returns the creation options for the browser and the signed cookie
// value carrying the challenge.
func (s *Service) BeginRegistration(user *model.User, stored []*model.PasskeyCredential) (*protocol.CredentialCreation, string, error) {
	wu, err := newWebauthnUser(user, stored)
	if err != nil {
		return nil, "", err
	}
	options, sessionData, err := s.wa.BeginRegistration(wu)
	if err != nil {
		return nil, "", fmt.Errorf("begin registration: %w", err)
	}
	cookie, err := s.encodeChallenge(sessionData)
	if err != nil {
		return nil, "", err
	}
	return options, cookie, nil
}

// FinishRegistration validates the attestation response against the cookie's
// challenge and returns the credential to store. Nothing is stored on
// failure.
func (s *Service) FinishRegistration(user *model.User, stored []*model.PasskeyCredential, cookieValue string, response []byte) (*model.PasskeyCredential, error) {
	sessionData, err := s.decodeChallenge(cookieValue)
	if err != nil {
		return nil, err
	}
	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(response))
	if err != nil {
		return nil, ErrVerificationFailed
	}
	wu, err := newWebauthnUser(user, stored)
	if err != nil {
		return nil, err
	}
	cred, err := s.wa.CreateCredential(wu, *sessionData, parsed)
	if err != nil {
		return nil, ErrVerificationFailed
	}
	return fromLibraryCredential(user.ID, cred), nil
}

// BeginAuthentication starts a discoverable (usernameless) login ceremony.
func (s *Service) BeginAuthentication() (*protocol.CredentialAssertion, string, error) {
	options, sessionData, err := s.wa.BeginDiscoverableLogin()
	if err != nil {
		return nil, "", fmt.Errorf("begin authentication: %w", err)
	}
	cookie, err := s.encodeChallenge(sessionData)
	if err != nil {
		return nil, "", err
	}
	return options, cookie, nil
}

// CredentialLookup locates the stored credential asserted by the browser,
// by its base64url credential ID, along with the owning user.
type CredentialLookup func(credentialID string) (*model.PasskeyCredential, *model.User, error)

// FinishAuthentication verifies the assertion against the cookie's challenge
// and the stored public key. The assertion's signature counter must strictly
// exceed the stored counter; anything else signals a possible cloned
// authenticator and fails. Returns the owning user and the new counter.
func (s *Service) FinishAuthentication(cookieValue string, response []byte, lookup CredentialLookup) (*model.User, *model.PasskeyCredential, uint32, error) {
	sessionData, err := s.decodeChallenge(cookieValue)
	if err != nil {
		return nil, nil, 0, err
	}
	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(response))
	if err != nil {
		return nil, nil, 0, ErrVerificationFailed
	}

	var matched *model.PasskeyCredential
	var owner *model.User
	handler := func(rawID, userHandle []byte) (webauthn.User, error) {
		pc, user, err := lookup(base64.RawURLEncoding.EncodeToString(rawID))
		if err != nil {
			return nil, err
		}
		if pc == nil || user == nil {
			return nil, ErrCredentialNotFound
		}
		matched = pc
		owner = user
		return newWebauthnUser(user, []*model.PasskeyCredential{pc})
	}

	cred, err := s.wa.ValidateDiscoverableLogin(handler, *sessionData, parsed)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) || matched == nil {
			return nil, nil, 0, ErrCredentialNotFound
		}
		return nil, nil, 0, ErrVerificationFailed
	}
	if cred.Authenticator.CloneWarning || cred.Authenticator.SignCount <= matched.SignCount {
		return nil, nil, 0, ErrVerificationFailed
	}
	return owner, matched, cred.Authenticator.SignCount, nil
}
