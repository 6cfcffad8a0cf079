// Package config loads service configuration from the environment and
// rejects configurations that must never reach production, such as the
// shipped development secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Environment variable names.
const (
	EnvMode         = "CASEGUARD_ENV"
	EnvListenAddr   = "CASEGUARD_LISTEN_ADDR"
	EnvPrimaryDSN   = "CASEGUARD_PG_DSN"
	EnvAuditDSN     = "CASEGUARD_AUDIT_PG_DSN"
	EnvRedisAddr    = "CASEGUARD_REDIS_ADDR"
	EnvFieldKey     = "CASEGUARD_FIELD_KEY"
	EnvLookupSecret = "CASEGUARD_LOOKUP_SECRET"
	EnvSessionKey   = "CASEGUARD_SESSION_KEY"
)

// Development defaults. Convenient locally, rejected outright when the
// service is configured for production.
const (
	DevFieldKey     = "Y2FzZWd1YXJkLWRldi1maWVsZC1rZXktMzJieXRlcyE="
	DevLookupSecret = "caseguard-dev-lookup-secret"
	DevSessionKey   = "caseguard-dev-session-key-0123456789"
)

var (
	// ErrDevSecretInProduction indicates a known development secret was
	// supplied while CASEGUARD_ENV=production.
	ErrDevSecretInProduction = errors.New("config: development secret used in production")

	// ErrMissingSecret indicates a required secret is absent.
	ErrMissingSecret = errors.New("config: required secret is not set")
)

// Config is the full runtime configuration of caseguard-api.
type Config struct {
	Env        string // "development" or "production"
	ListenAddr string

	PrimaryDSN string
	AuditDSN   string
	RedisAddr  string // empty selects the in-process lockout store

	FieldKey     string // base64, 32 bytes once decoded
	LookupSecret string
	SessionKey   string
}

// Load reads configuration from the environment, applying development
// defaults for secrets only outside production, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Env:          trim(os.Getenv(EnvMode)),
		ListenAddr:   trim(os.Getenv(EnvListenAddr)),
		PrimaryDSN:   trim(os.Getenv(EnvPrimaryDSN)),
		AuditDSN:     trim(os.Getenv(EnvAuditDSN)),
		RedisAddr:    trim(os.Getenv(EnvRedisAddr)),
		FieldKey:     trim(os.Getenv(EnvFieldKey)),
		LookupSecret: trim(os.Getenv(EnvLookupSecret)),
		SessionKey:   trim(os.Getenv(EnvSessionKey)),
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Env != "production" {
		if cfg.FieldKey == "" {
			cfg.FieldKey = DevFieldKey
		}
		if cfg.LookupSecret == "" {
			cfg.LookupSecret = DevLookupSecret
		}
		if cfg.SessionKey == "" {
			cfg.SessionKey = DevSessionKey
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the startup contract: every secret present, and no
// development secret in a production configuration.
func (c Config) Validate() error {
	secrets := map[string]string{
		EnvFieldKey:     c.FieldKey,
		EnvLookupSecret: c.LookupSecret,
		EnvSessionKey:   c.SessionKey,
	}
	for name, value := range secrets {
		if value == "" {
			return fmt.Errorf("%w: %s", ErrMissingSecret, name)
		}
	}
	if c.Env == "production" {
		devValues := map[string]string{
			EnvFieldKey:     DevFieldKey,
			EnvLookupSecret: DevLookupSecret,
			EnvSessionKey:   DevSessionKey,
		}
		for name, dev := range devValues {
			if secrets[name] == dev {
				return fmt.Errorf("%w: %s", ErrDevSecretInProduction, name)
			}
		}
	}
	return nil
}

func trim(s string) string { return strings.TrimSpace(s) }
