// Package config loads server settings from an optional YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/scrumscope/go/internal/models"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	// DevMode signs every request without a token in as the dev user.
	DevMode bool `yaml:"dev_mode"`
}

type SessionConfig struct {
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type Config struct {
	Port        int    `yaml:"port"`
	AppBaseURL  string `yaml:"app_base_url"`
	StoreDriver string `yaml:"store_driver"`
	NATSURL     string `yaml:"nats_url"`
	LogLevel    string `yaml:"log_level"`
	// RunRelay starts the outbox relay inside the server process.
	RunRelay bool `yaml:"run_relay"`

	Auth    AuthConfig    `yaml:"auth"`
	Session SessionConfig `yaml:"session"`

	// Decks are added to the builtin decks, replacing any with the same id.
	Decks []models.Deck `yaml:"decks"`
}

func Defaults() Config {
	return Config{
		Port:        8080,
		AppBaseURL:  "http://localhost:5173",
		StoreDriver: DriverMemory,
		NATSURL:     "nats://127.0.0.1:4222",
		LogLevel:    "info",
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Session: SessionConfig{
			WriteTimeout: 5 * time.Second,
		},
	}
}

// Load reads path when it is not empty, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	overrideInt(&cfg.Port, "PORT")
	overrideString(&cfg.AppBaseURL, "APP_BASE_URL")
	overrideString(&cfg.StoreDriver, "STORE_DRIVER")
	overrideString(&cfg.NATSURL, "NATS_URL")
	overrideString(&cfg.LogLevel, "LOG_LEVEL")
	overrideBool(&cfg.RunRelay, "RUN_RELAY")
	overrideString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	overrideDuration(&cfg.Auth.TokenTTL, "TOKEN_TTL")
	overrideBool(&cfg.Auth.DevMode, "AUTH_DEV_MODE")
	overrideDuration(&cfg.Session.WriteTimeout, "SESSION_WRITE_TIMEOUT")

	cfg.AppBaseURL = strings.TrimRight(cfg.AppBaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.AppBaseURL == "" {
		errs = append(errs, errors.New("app_base_url is required"))
	}
	switch c.StoreDriver {
	case DriverMemory, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown store_driver %q", c.StoreDriver))
	}
	if c.Auth.JWTSecret == "" && !c.Auth.DevMode {
		errs = append(errs, errors.New("auth.jwt_secret is required unless auth.dev_mode is set"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Session.WriteTimeout <= 0 {
		errs = append(errs, errors.New("session.write_timeout must be positive"))
	}
	return errors.Join(errs...)
}

func overrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*field = n
		} else {
			log.Warn().Str("key", envKey).Str("value", val).Msg("invalid integer in environment")
		}
	}
}

func overrideString(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func overrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*field = b
		} else {
			log.Warn().Str("key", envKey).Str("value", val).Msg("invalid boolean in environment")
		}
	}
}

func overrideDuration(field *time.Duration, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*field = d
		} else {
			log.Warn().Str("key", envKey).Str("value", val).Msg("invalid duration in environment")
		}
	}
}
