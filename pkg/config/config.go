// Package config provides file- and environment-based configuration for
// the panel. A YAML file supplies the base values; environment variables
// always win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the panel.
type Config struct {
	// Database configuration
	DatabaseDSN string

	// Authentication
	JWTSecret string
	JWTExpiry time.Duration

	// Age key pair sealing node daemon credentials. The private key is
	// required by the API server; a key-less deployment cannot talk to
	// daemons.
	AgePublicKey  string
	AgePrivateKey string

	// Server configuration
	APIHost string
	APIPort int

	// RelayTimeout bounds every daemon request end to end.
	RelayTimeout time.Duration

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration

	// Logging. Level is debug, info, warn or error; format is json or
	// text. Unknown values fall back to the defaults at logger build
	// time rather than failing validation.
	LogLevel  string
	LogFormat string
}

// fileConfig is the YAML shape. Durations are strings so operators can
// write "45s" or "24h"; pointers distinguish unset from zero.
type fileConfig struct {
	DatabaseDSN     string `yaml:"database_dsn"`
	JWTSecret       string `yaml:"jwt_secret"`
	JWTExpiry       string `yaml:"jwt_expiry"`
	AgePublicKey    string `yaml:"age_public_key"`
	AgePrivateKey   string `yaml:"age_private_key"`
	APIHost         string `yaml:"api_host"`
	APIPort         *int   `yaml:"api_port"`
	RelayTimeout    string `yaml:"relay_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
	LogLevel        string `yaml:"log_level"`
	LogFormat       string `yaml:"log_format"`
}

// Load builds the configuration: defaults, then the YAML file named by
// PANEL_CONFIG when set, then environment variables.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("PANEL_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithDefaults loads configuration with defaults for development.
// It does not validate required fields, useful for testing.
func LoadWithDefaults() *Config {
	cfg := defaults()
	cfg.JWTSecret = "development-secret-key-min-32-chars"
	cfg.applyEnv()
	return cfg
}

func defaults() *Config {
	return &Config{
		DatabaseDSN:     "postgres://localhost:5432/stellarstack?sslmode=disable",
		JWTExpiry:       24 * time.Hour,
		APIHost:         "0.0.0.0",
		APIPort:         8080,
		RelayTimeout:    30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// applyFile overlays values from a YAML file. A named but unreadable
// file is an error; operators should never silently run on defaults.
func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if fc.DatabaseDSN != "" {
		c.DatabaseDSN = fc.DatabaseDSN
	}
	if fc.JWTSecret != "" {
		c.JWTSecret = fc.JWTSecret
	}
	if fc.JWTExpiry != "" {
		d, err := time.ParseDuration(fc.JWTExpiry)
		if err != nil {
			return fmt.Errorf("parsing jwt_expiry: %w", err)
		}
		c.JWTExpiry = d
	}
	if fc.AgePublicKey != "" {
		c.AgePublicKey = fc.AgePublicKey
	}
	if fc.AgePrivateKey != "" {
		c.AgePrivateKey = fc.AgePrivateKey
	}
	if fc.APIHost != "" {
		c.APIHost = fc.APIHost
	}
	if fc.APIPort != nil {
		c.APIPort = *fc.APIPort
	}
	if fc.RelayTimeout != "" {
		d, err := time.ParseDuration(fc.RelayTimeout)
		if err != nil {
			return fmt.Errorf("parsing relay_timeout: %w", err)
		}
		c.RelayTimeout = d
	}
	if fc.ShutdownTimeout != "" {
		d, err := time.ParseDuration(fc.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("parsing shutdown_timeout: %w", err)
		}
		c.ShutdownTimeout = d
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.LogFormat != "" {
		c.LogFormat = fc.LogFormat
	}
	return nil
}

func (c *Config) applyEnv() {
	c.DatabaseDSN = getEnv("DATABASE_URL", c.DatabaseDSN)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.JWTExpiry = getDurationEnv("JWT_EXPIRY", c.JWTExpiry)
	c.AgePublicKey = getEnv("AGE_PUBLIC_KEY", c.AgePublicKey)
	c.AgePrivateKey = getEnv("AGE_PRIVATE_KEY", c.AgePrivateKey)
	c.APIHost = getEnv("API_HOST", c.APIHost)
	c.APIPort = getIntEnv("API_PORT", c.APIPort)
	c.RelayTimeout = getDurationEnv("RELAY_TIMEOUT", c.RelayTimeout)
	c.ShutdownTimeout = getDurationEnv("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.AgePrivateKey == "" {
		return fmt.Errorf("AGE_PRIVATE_KEY is required")
	}
	if c.APIPort < 1 || c.APIPort > 65535 {
		return fmt.Errorf("API_PORT must be between 1 and 65535")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
