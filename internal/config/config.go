// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"time"
)

// AuthMode selects how inbound bearer tokens are interpreted. Exactly one
// mode is active per deployment.
type AuthMode string

const (
	// AuthModeStatic compares the bearer token against the shared API_TOKEN
	// secret; all credentials form one implicit pool.
	AuthModeStatic AuthMode = "static"
	// AuthModePool treats the bearer token as the name of the credential
	// pool to lease from.
	AuthModePool AuthMode = "pool"
)

// Config holds the application configuration loaded from environment
// variables.
type Config struct {
	APIToken string
	BindPath string
	AuthMode AuthMode
	DBPath   string
	Cooldown time.Duration
}

// Load reads configuration from environment variables and returns a
// validated Config. BIND_PATH (the unix socket path to listen on) is always
// required. API_TOKEN is required in static mode and unused in pool mode.
// Optional variables with defaults: KEYRELAY_AUTH_MODE (static),
// KEYRELAY_DB_PATH (keyrelay.db), KEYRELAY_COOLDOWN (6s).
func Load() (*Config, error) {
	bindPath := os.Getenv("BIND_PATH")
	if bindPath == "" {
		return nil, fmt.Errorf("BIND_PATH is required")
	}

	mode := AuthModeStatic
	if v, ok := os.LookupEnv("KEYRELAY_AUTH_MODE"); ok {
		switch AuthMode(v) {
		case AuthModeStatic, AuthModePool:
			mode = AuthMode(v)
		default:
			return nil, fmt.Errorf("KEYRELAY_AUTH_MODE has invalid value %q: want %q or %q", v, AuthModeStatic, AuthModePool)
		}
	}

	token := os.Getenv("API_TOKEN")
	if mode == AuthModeStatic && token == "" {
		return nil, fmt.Errorf("API_TOKEN is required in static auth mode")
	}

	dbPath := "keyrelay.db"
	if v, ok := os.LookupEnv("KEYRELAY_DB_PATH"); ok {
		dbPath = v
	}

	cooldown := 6 * time.Second
	if v, ok := os.LookupEnv("KEYRELAY_COOLDOWN"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("KEYRELAY_COOLDOWN has invalid duration %q: %w", v, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("KEYRELAY_COOLDOWN must be positive, got %q", v)
		}
		cooldown = parsed
	}

	return &Config{
		APIToken: token,
		BindPath: bindPath,
		AuthMode: mode,
		DBPath:   dbPath,
		Cooldown: cooldown,
	}, nil
}
