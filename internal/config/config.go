// Package config loads server configuration from LARDER_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	Port    string
	DBPath  string
	BaseURL string

	// SigningSecret signs access tokens and WebAuthn challenge cookies.
	// The process refuses to start without it.
	SigningSecret []byte

	// WebAuthn relying party identity.
	RPID     string
	RPOrigin string

	// OwnerEmail seeds the allowlist with an owner entry at startup.
	OwnerEmail string

	// RegistrationSecret, when set, gates dynamic OAuth client registration.
	RegistrationSecret string

	PostmarkToken string
	FromEmail     string

	LogLevel string

	SessionTTL      time.Duration
	MagicLinkTTL    time.Duration
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:               getenv("LARDER_PORT", "8080"),
		DBPath:             getenv("LARDER_DB_PATH", "larder.db"),
		BaseURL:            getenv("LARDER_BASE_URL", "http://localhost:8080"),
		RPID:               getenv("LARDER_RP_ID", "localhost"),
		RPOrigin:           getenv("LARDER_RP_ORIGIN", "http://localhost:8080"),
		OwnerEmail:         os.Getenv("LARDER_OWNER_EMAIL"),
		RegistrationSecret: os.Getenv("LARDER_REGISTRATION_SECRET"),
		PostmarkToken:      os.Getenv("LARDER_POSTMARK_TOKEN"),
		FromEmail:          getenv("LARDER_FROM_EMAIL", "hello@larder.app"),
		LogLevel:           getenv("LARDER_LOG_LEVEL", "info"),
		SessionTTL:         getduration("LARDER_SESSION_TTL", 30*24*time.Hour),
		MagicLinkTTL:       getduration("LARDER_MAGIC_LINK_TTL", 15*time.Minute),
		AccessTokenTTL:     getduration("LARDER_ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:    getduration("LARDER_REFRESH_TOKEN_TTL", 30*24*time.Hour),
	}

	secret := os.Getenv("LARDER_SIGNING_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("LARDER_SIGNING_SECRET is required")
	}
	if len(secret) < 32 {
		return nil, fmt.Errorf("LARDER_SIGNING_SECRET must be at least 32 bytes, got %d", len(secret))
	}
	cfg.SigningSecret = []byte(secret)

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
