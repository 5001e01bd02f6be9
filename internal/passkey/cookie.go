package passkey

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/larderhq/larder/internal/token"
)

// ChallengeCookieName is the cookie carrying signed ceremony state between
// the begin and finish requests.
const ChallengeCookieName = "larder_challenge"

// ChallengeTTL bounds how long a begun ceremony may be finished.
const ChallengeTTL = 5 * time.Minute

type challengePayload struct {
	Session  webauthn.SessionData `json:"session"`
	IssuedAt int64                `json:"iat"`
}

// encodeChallenge serializes ceremony state into base64url(payload).hmac.
func (s *Service) encodeChallenge(sd *webauthn.SessionData) (string, error) {
	payload, err := json.Marshal(challengePayload{
		Session:  *sd,
		IssuedAt: time.Now().Unix(),
	})
	if err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + token.Sign(s.secret, payload), nil
}

// decodeChallenge verifies the signature and the embedded timestamp. Any
// failure collapses to ErrInvalidChallenge.
func (s *Service) decodeChallenge(value string) (*webauthn.SessionData, error) {
	encoded, sig, ok := strings.Cut(value, ".")
	if !ok {
		return nil, ErrInvalidChallenge
	}
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidChallenge
	}
	if !token.Verify(s.secret, payload, sig) {
		return nil, ErrInvalidChallenge
	}

	var cp challengePayload
	if err := json.Unmarshal(payload, &cp); err != nil {
		return nil, ErrInvalidChallenge
	}
	if time.Since(time.Unix(cp.IssuedAt, 0)) > ChallengeTTL {
		return nil, ErrInvalidChallenge
	}
	return &cp.Session, nil
}
