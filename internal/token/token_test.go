package token

import (
	"strings"
	"testing"
)

func TestRandomLengthAndUniqueness(t *testing.T) {
	a := Random(32)
	b := Random(32)
	if len(a) != 64 { // hex-encoded
		t.Errorf("token length = %d, want 64", len(a))
	}
	if a == b {
		t.Error("two random tokens are identical")
	}
	if strings.ToLower(a) != a {
		t.Error("expected lowercase hex")
	}
}

func TestHashSHA256(t *testing.T) {
	// Stable digest: SHA-256("abc")
	got := HashSHA256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("digest = %s, want %s", got, want)
	}
}

func TestS256Challenge(t *testing.T) {
	// Test vector from RFC 7636 appendix B.
	got := S256Challenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	if got != want {
		t.Errorf("challenge = %s, want %s", got, want)
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"equal", "secret-value", "secret-value", true},
		{"different", "secret-value", "secret-walue", false},
		{"different length", "short", "longer-string", false},
		{"empty both", "", "", true},
		{"empty one", "", "x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSignVerify(t *testing.T) {
	key := []byte("test-signing-key")
	payload := []byte(`{"challenge":"abc"}`)

	sig := Sign(key, payload)
	if !Verify(key, payload, sig) {
		t.Error("valid signature rejected")
	}
	if Verify(key, []byte(`{"challenge":"abd"}`), sig) {
		t.Error("tampered payload accepted")
	}
	if Verify([]byte("other-key"), payload, sig) {
		t.Error("wrong key accepted")
	}
}
