// Package config loads client configuration from the environment, with an
// optional .env file in the working directory.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIBaseURL    = "https://hollydemon.vercel.app"
	DefaultSessionDBPath = "data/session.db"
	DefaultDevAPIPort    = 5000
)

type Config struct {
	APIBaseURL    string
	SessionDBPath string
	LogLevel      slog.Level
	// HTTPTimeout bounds a whole round trip. Zero means no timeout; the
	// client itself never enforces one.
	HTTPTimeout time.Duration

	OAuthClientID     string
	OAuthClientSecret string
	OAuthRedirectURL  string
	OAuthUserInfoURL  string

	DevAPIPort      int
	DevAPIJWTSecret string
}

// Load reads .env (if present) and then the process environment.
func Load() (Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	c := Config{
		APIBaseURL:        NormalizeBaseURL(getenv("API_BASE_URL", DefaultAPIBaseURL)),
		SessionDBPath:     getenv("SESSION_DB_PATH", DefaultSessionDBPath),
		OAuthClientID:     strings.TrimSpace(os.Getenv("OAUTH_CLIENT_ID")),
		OAuthClientSecret: strings.TrimSpace(os.Getenv("OAUTH_CLIENT_SECRET")),
		OAuthRedirectURL:  getenv("OAUTH_REDIRECT_URL", "http://localhost:5173/auth/callback"),
		OAuthUserInfoURL:  getenv("OAUTH_USERINFO_URL", "https://openidconnect.googleapis.com/v1/userinfo"),
		DevAPIJWTSecret:   getenv("DEVAPI_JWT_SECRET", "dev-secret-change-me-please"),
	}

	level, err := parseLevel(getenv("LOG_LEVEL", "info"))
	if err != nil {
		return c, err
	}
	c.LogLevel = level

	if raw := strings.TrimSpace(os.Getenv("HTTP_TIMEOUT")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return c, fmt.Errorf("config: HTTP_TIMEOUT: %w", err)
		}
		c.HTTPTimeout = d
	}

	c.DevAPIPort = DefaultDevAPIPort
	if raw := strings.TrimSpace(os.Getenv("DEVAPI_PORT")); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return c, fmt.Errorf("config: invalid DEVAPI_PORT %q", raw)
		}
		c.DevAPIPort = port
	}

	return c, nil
}

// NormalizeBaseURL prefixes https:// when no scheme is given and drops any
// trailing slash, so endpoints can be appended directly.
func NormalizeBaseURL(raw string) string {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	return raw
}

// ProviderConfigured reports whether provider login can be offered.
func (c Config) ProviderConfigured() bool {
	return c.OAuthClientID != "" && c.OAuthClientSecret != ""
}

func getenv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: invalid LOG_LEVEL %q", raw)
	}
	return level, nil
}
