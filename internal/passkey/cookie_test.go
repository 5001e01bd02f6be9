package passkey

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/larderhq/larder/internal/token"
)

func testService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService("localhost", "http://localhost:8080", []byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestChallengeRoundTrip(t *testing.T) {
	svc := testService(t)

	sd := &webauthn.SessionData{
		Challenge: "abc123",
		UserID:    []byte("42"),
	}
	value, err := svc.encodeChallenge(sd)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := svc.decodeChallenge(value)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Challenge != sd.Challenge || string(got.UserID) != "42" {
		t.Errorf("got %+v", got)
	}
}

func TestChallengeTampered(t *testing.T) {
	svc := testService(t)

	value, _ := svc.encodeChallenge(&webauthn.SessionData{Challenge: "abc123"})
	encoded, sig, _ := strings.Cut(value, ".")

	payload, _ := base64.RawURLEncoding.DecodeString(encoded)
	var cp challengePayload
	json.Unmarshal(payload, &cp)
	cp.Session.Challenge = "forged"
	forged, _ := json.Marshal(cp)
	tampered := base64.RawURLEncoding.EncodeToString(forged) + "." + sig

	if _, err := svc.decodeChallenge(tampered); err != ErrInvalidChallenge {
		t.Errorf("err = %v, want ErrInvalidChallenge", err)
	}
}

func TestChallengeWrongKey(t *testing.T) {
	svc := testService(t)
	other, _ := NewService("localhost", "http://localhost:8080", []byte("another-secret-another-secret-32"))

	value, _ := other.encodeChallenge(&webauthn.SessionData{Challenge: "abc123"})

	if _, err := svc.decodeChallenge(value); err != ErrInvalidChallenge {
		t.Errorf("err = %v, want ErrInvalidChallenge", err)
	}
}

func TestChallengeExpired(t *testing.T) {
	svc := testService(t)

	payload, _ := json.Marshal(challengePayload{
		Session:  webauthn.SessionData{Challenge: "abc123"},
		IssuedAt: time.Now().Add(-2 * ChallengeTTL).Unix(),
	})
	stale := base64.RawURLEncoding.EncodeToString(payload) + "." + token.Sign(svc.secret, payload)

	if _, err := svc.decodeChallenge(stale); err != ErrInvalidChallenge {
		t.Errorf("err = %v, want ErrInvalidChallenge", err)
	}
}

func TestChallengeMalformed(t *testing.T) {
	svc := testService(t)

	for _, value := range []string{"", "no-dot", "notbase64!.sig", "YWJj."} {
		if _, err := svc.decodeChallenge(value); err != ErrInvalidChallenge {
			t.Errorf("decodeChallenge(%q) err = %v, want ErrInvalidChallenge", value, err)
		}
	}
}
