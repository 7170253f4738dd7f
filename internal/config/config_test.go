// ABOUTME: Tests for centralized configuration system
// ABOUTME: Verifies environment variable parsing and validation
package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var allVars = []string{
	"REDIS_URL", "DATABASE_URL", "DRIVER", "BUNDLE_DIR", "BRAIN_KEY", "BOT_NAME",
	"SUBMITTER", "SCAN_BATCH", "INSERT_BATCH", "CONNECT_RETRIES", "RETRY_DELAY", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range allVars {
		t.Setenv(EnvPrefix+v, "")
	}
}

func validConfig() *Config {
	return &Config{
		RedisURL:    "redis://localhost:6379/",
		Driver:      "postgres",
		BundleDir:   "bundle",
		BrainKey:    "hubot:storage",
		BotName:     "hubot",
		Submitter:   "brain-migrate",
		ScanBatch:   5000,
		InsertBatch: 1000,
		LogLevel:    "info",
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.RedisURL != "redis://localhost:6379/" {
		t.Errorf("RedisURL = %s, want redis://localhost:6379/", cfg.RedisURL)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %s, want empty", cfg.DatabaseURL)
	}
	if cfg.Driver != "postgres" {
		t.Errorf("Driver = %s, want postgres", cfg.Driver)
	}
	if cfg.BundleDir != "bundle" {
		t.Errorf("BundleDir = %s, want bundle", cfg.BundleDir)
	}
	if cfg.BrainKey != "hubot:storage" {
		t.Errorf("BrainKey = %s, want hubot:storage", cfg.BrainKey)
	}
	if cfg.BotName != "hubot" {
		t.Errorf("BotName = %s, want hubot", cfg.BotName)
	}
	if cfg.ScanBatch != 5000 {
		t.Errorf("ScanBatch = %d, want 5000", cfg.ScanBatch)
	}
	if cfg.InsertBatch != 1000 {
		t.Errorf("InsertBatch = %d, want 1000", cfg.InsertBatch)
	}
	if cfg.ConnectRetries != 3 {
		t.Errorf("ConnectRetries = %d, want 3", cfg.ConnectRetries)
	}
	if cfg.RetryDelay != 500*time.Millisecond {
		t.Errorf("RetryDelay = %v, want 500ms", cfg.RetryDelay)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"REDIS_URL", "redis://cache:6380/2")
	t.Setenv(EnvPrefix+"DATABASE_URL", "postgres://bot@db/brain")
	t.Setenv(EnvPrefix+"DRIVER", "sqlite")
	t.Setenv(EnvPrefix+"BUNDLE_DIR", "/srv/bundle")
	t.Setenv(EnvPrefix+"BOT_NAME", "robo")
	t.Setenv(EnvPrefix+"SCAN_BATCH", "200")
	t.Setenv(EnvPrefix+"INSERT_BATCH", "50")
	t.Setenv(EnvPrefix+"RETRY_DELAY", "2s")
	t.Setenv(EnvPrefix+"LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.RedisURL != "redis://cache:6380/2" {
		t.Errorf("RedisURL = %s", cfg.RedisURL)
	}
	if cfg.DatabaseURL != "postgres://bot@db/brain" {
		t.Errorf("DatabaseURL = %s", cfg.DatabaseURL)
	}
	if cfg.Driver != "sqlite" {
		t.Errorf("Driver = %s, want sqlite", cfg.Driver)
	}
	if cfg.BundleDir != "/srv/bundle" {
		t.Errorf("BundleDir = %s", cfg.BundleDir)
	}
	if cfg.BotName != "robo" {
		t.Errorf("BotName = %s, want robo", cfg.BotName)
	}
	if cfg.ScanBatch != 200 || cfg.InsertBatch != 50 {
		t.Errorf("batches = %d/%d, want 200/50", cfg.ScanBatch, cfg.InsertBatch)
	}
	if cfg.RetryDelay != 2*time.Second {
		t.Errorf("RetryDelay = %v, want 2s", cfg.RetryDelay)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
}

func TestFromEnv_DefersValidation(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"DRIVER", "oracle")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject an unknown driver")
	}

	cfg := FromEnv()
	if cfg.Driver != "oracle" {
		t.Fatalf("Driver = %s, want oracle", cfg.Driver)
	}
	cfg.Driver = "sqlite"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() after override failed: %v", err)
	}
}

func TestLoad_UnparseableNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"SCAN_BATCH", "lots")
	t.Setenv(EnvPrefix+"RETRY_DELAY", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.ScanBatch != 5000 {
		t.Errorf("ScanBatch = %d, want default 5000", cfg.ScanBatch)
	}
	if cfg.RetryDelay != 500*time.Millisecond {
		t.Errorf("RetryDelay = %v, want default", cfg.RetryDelay)
	}
}

func TestLoad_InvalidDriver(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"DRIVER", "mysql")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail for unknown driver")
	}
	if !strings.Contains(err.Error(), "Driver must be one of") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero scan batch", func(c *Config) { c.ScanBatch = 0 }, "ScanBatch"},
		{"huge insert batch", func(c *Config) { c.InsertBatch = 20000 }, "InsertBatch"},
		{"too many retries", func(c *Config) { c.ConnectRetries = 11 }, "ConnectRetries"},
		{"negative retries", func(c *Config) { c.ConnectRetries = -1 }, "ConnectRetries"},
		{"empty bundle", func(c *Config) { c.BundleDir = "" }, "BundleDir"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "LogLevel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() should fail")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not name %s", err, tt.field)
			}
		})
	}

	if err := validConfig().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestValidateForTransfer(t *testing.T) {
	cfg := validConfig()
	if err := cfg.ValidateForTransfer(); !errors.Is(err, ErrMissingDatabase) {
		t.Errorf("ValidateForTransfer() = %v, want ErrMissingDatabase", err)
	}

	cfg.DatabaseURL = "postgres://localhost/brain"
	if err := cfg.ValidateForTransfer(); err != nil {
		t.Errorf("ValidateForTransfer() = %v, want nil", err)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv(EnvPrefix+"TEST_INT", "42")
	if got := getEnvInt("TEST_INT", 7); got != 42 {
		t.Errorf("getEnvInt() = %d, want 42", got)
	}
	if got := getEnvInt("TEST_INT_MISSING", 7); got != 7 {
		t.Errorf("getEnvInt() = %d, want 7", got)
	}
}
