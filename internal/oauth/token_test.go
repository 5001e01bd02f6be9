package oauth

import (
	"testing"
	"time"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestMintAndVerify(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)

	raw, err := issuer.Mint("client-1", 42, "recipes:read grocery:write")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	grant, err := issuer.Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if grant.ClientID != "client-1" || grant.UserID != 42 {
		t.Errorf("grant = %+v", grant)
	}
	if !grant.HasScope("recipes:read") || !grant.HasScope("grocery:write") {
		t.Error("granted scopes missing")
	}
	if grant.HasScope("recipes:write") {
		t.Error("ungranted scope present")
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	minter := NewTokenIssuer(testSecret, time.Hour)
	verifier := NewTokenIssuer([]byte("another-secret-another-secret-32"), time.Hour)

	raw, _ := minter.Mint("client-1", 42, "recipes:read")

	if _, err := verifier.Verify(raw); err != ErrInvalidToken {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, -time.Minute)

	raw, _ := issuer.Mint("client-1", 42, "recipes:read")

	if _, err := issuer.Verify(raw); err != ErrInvalidToken {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)

	for _, raw := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := issuer.Verify(raw); err != ErrInvalidToken {
			t.Errorf("Verify(%q) err = %v, want ErrInvalidToken", raw, err)
		}
	}
}

func TestSplitScope(t *testing.T) {
	got := SplitScope("  recipes:read   grocery:read ")
	if len(got) != 2 || got[0] != "recipes:read" || got[1] != "grocery:read" {
		t.Errorf("got %v", got)
	}
	if got := SplitScope(""); len(got) != 0 {
		t.Errorf("empty scope split to %v", got)
	}
}
