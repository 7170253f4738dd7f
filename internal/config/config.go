// ABOUTME: Centralized configuration for brain-migrate
// ABOUTME: Loads from environment variables with validation and defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// EnvPrefix is prepended to every variable name
const EnvPrefix = "BRAIN_MIGRATE_"

// ErrMissingDatabase is returned when a transfer has no sink to write to
var ErrMissingDatabase = errors.New(EnvPrefix + "DATABASE_URL (or --pg) is required for a transfer")

// Config holds all configuration for a migration run
type Config struct {
	// Connections
	RedisURL    string `validate:"required"`
	DatabaseURL string
	Driver      string `validate:"required,oneof=postgres sqlite"`

	// Bundle
	BundleDir string `validate:"required"`
	BrainKey  string `validate:"required"`
	BotName   string `validate:"required"`
	Submitter string `validate:"required"`

	// Batching
	ScanBatch   int `validate:"min=1"`
	InsertBatch int `validate:"min=1,max=10000"`

	// Connection retries
	ConnectRetries int           `validate:"min=0,max=10"`
	RetryDelay     time.Duration `validate:"min=0"`

	LogLevel string `validate:"oneof=debug info warn error"`
}

var validate = validator.New()

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := FromEnv()
	return cfg, cfg.Validate()
}

// FromEnv reads configuration from environment variables without validating,
// so callers can apply overrides first.
func FromEnv() *Config {
	return &Config{
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		Driver:         getEnv("DRIVER", "postgres"),
		BundleDir:      getEnv("BUNDLE_DIR", "bundle"),
		BrainKey:       getEnv("BRAIN_KEY", "hubot:storage"),
		BotName:        getEnv("BOT_NAME", "hubot"),
		Submitter:      getEnv("SUBMITTER", "brain-migrate"),
		ScanBatch:      getEnvInt("SCAN_BATCH", 5000),
		InsertBatch:    getEnvInt("INSERT_BATCH", 1000),
		ConnectRetries: getEnvInt("CONNECT_RETRIES", 3),
		RetryDelay:     getEnvDuration("RETRY_DELAY", 500*time.Millisecond),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// ValidateForTransfer additionally requires a sink connection string
func (c *Config) ValidateForTransfer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.DatabaseURL == "" {
		return ErrMissingDatabase
	}
	return nil
}

func formatValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, e := range fieldErrs {
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", e.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s, got %v", e.Field(), e.Param(), e.Value()))
		case "min", "max":
			msgs = append(msgs, fmt.Sprintf("%s must be %s %s, got %v", e.Field(), e.Tag(), e.Param(), e.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", e.Field()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
