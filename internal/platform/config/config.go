package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv string `env:"APP_ENV" default:"development"`
	Port   string `env:"PORT" default:"8080"`

	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`

	TwitchClientID     string `env:"TWITCH_CLIENT_ID"`
	TwitchClientSecret string `env:"TWITCH_CLIENT_SECRET"`
	TwitchRedirectURI  string `env:"TWITCH_REDIRECT_URI"`
	TwitchScopes       string `env:"TWITCH_SCOPES" default:"user:read:email"`

	KickClientID     string `env:"KICK_CLIENT_ID"`
	KickClientSecret string `env:"KICK_CLIENT_SECRET"`
	KickRedirectURI  string `env:"KICK_REDIRECT_URI"`
	KickScopes       string `env:"KICK_SCOPES" default:"user:read channel:read"`

	SessionSecret      string `env:"SESSION_SECRET"`
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`

	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" default:"30s"`
	SessionMaxAge  time.Duration `env:"SESSION_MAX_AGE" default:"1h"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"REDIS_URL":      cfg.RedisURL,
		"SESSION_SECRET": cfg.SessionSecret,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	// Platform credentials come in all-or-nothing triples. DATABASE_URL is an
	// alternative source, so a fully unset triple is fine.
	if err := validateCredentialTriple("TWITCH", cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.TwitchRedirectURI); err != nil {
		return err
	}
	if err := validateCredentialTriple("KICK", cfg.KickClientID, cfg.KickClientSecret, cfg.KickRedirectURI); err != nil {
		return err
	}

	if cfg.TokenEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(cfg.TokenEncryptionKey)
		if err != nil {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes), got %d bytes", len(keyBytes))
		}
	}

	return nil
}

func validateCredentialTriple(prefix, clientID, clientSecret, redirectURI string) error {
	values := map[string]string{
		prefix + "_CLIENT_ID":     clientID,
		prefix + "_CLIENT_SECRET": clientSecret,
		prefix + "_REDIRECT_URI":  redirectURI,
	}

	var missing []string
	set := 0
	for name, value := range values {
		if value == "" {
			missing = append(missing, name)
		} else {
			set++
		}
	}

	if set == 0 || set == len(values) {
		return nil
	}
	return fmt.Errorf("incomplete %s OAuth configuration: missing %s", prefix, strings.Join(missing, ", "))
}

// SplitScopes parses a space-separated scope list from configuration.
func SplitScopes(raw string) []string {
	return strings.Fields(raw)
}
