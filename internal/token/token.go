// Package token provides the credential primitives every other component
// builds on: high-entropy opaque tokens, digests for at-rest storage, and
// timing-safe comparison.
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Random returns n random bytes from the OS entropy source, hex-encoded.
// A broken entropy source is a fatal misconfiguration, so it panics rather
// than returning an error every caller would have to treat as fatal anyway.
func Random(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("token: entropy source unavailable: %v", err))
	}
	return hex.EncodeToString(b)
}

// HashSHA256 returns the hex SHA-256 digest of s. Opaque tokens (sessions,
// refresh tokens) are stored only in this form.
func HashSHA256(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// S256Challenge computes the PKCE S256 transform of a code verifier:
// base64url (no padding) of the SHA-256 digest.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Equal reports whether a and b are equal without leaking timing about where
// they differ. Length is not secret, so mismatched lengths may fail fast.
func Equal(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Sign returns the hex HMAC-SHA256 of payload under key.
func Sign(key []byte, payload []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a hex HMAC-SHA256 signature produced by Sign.
func Verify(key []byte, payload []byte, sig string) bool {
	return Equal(Sign(key, payload), sig)
}
