// Package config provides configuration management for the item tracker.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default configuration values.
const (
	DefaultServerPort      = 8080
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMetricsEnabled  = true
	DefaultAuthMode        = "none"
	DefaultStorageBackend  = "memory"
	DefaultStorageKey      = "items"
	DefaultEnvFile         = ".env"
	DefaultCORSOrigins     = "*"
)

// Environment variable names.
const (
	EnvServerPort      = "APP_SERVER_PORT"
	EnvLogLevel        = "APP_LOG_LEVEL"
	EnvShutdownTimeout = "APP_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled  = "APP_METRICS_ENABLED"
	EnvAuthMode        = "APP_AUTH_MODE"
	EnvBasicAuthUsers  = "APP_BASIC_AUTH_USERS"
	EnvAPIKeys         = "APP_API_KEYS" //nolint:gosec // env var name, not a credential
	EnvStorageBackend  = "APP_STORAGE_BACKEND"
	EnvStoragePath     = "APP_STORAGE_PATH"
	EnvRedisURL        = "APP_REDIS_URL"
	EnvStorageKey      = "APP_STORAGE_KEY"
	EnvEnvFile         = "APP_ENV_FILE"
	EnvCORSOrigins     = "APP_CORS_ORIGINS"
)

// Config holds the application configuration.
type Config struct {
	// Server settings.
	ServerPort      int
	LogLevel        string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool

	// Origins allowed to call the API from a browser; "*" allows any.
	CORSOrigins []string

	// Authentication mode: none, basic, apikey, multi.
	AuthMode string

	// Basic auth users (format: "user1:bcrypt_hash,user2:bcrypt_hash:ro").
	BasicAuthUsers string

	// API keys (format: "key1:name1,key2:name2:ro").
	APIKeys string

	// Storage settings. Backend is one of memory, file, badger, redis.
	StorageBackend string
	StoragePath    string
	RedisURL       string
	StorageKey     string
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidAuthMode        = errors.New("auth mode must be one of: none, basic, apikey, multi")
	ErrInvalidBasicAuthConfig = errors.New("basic auth users must be set when auth mode is basic")
	ErrInvalidAPIKeyConfig    = errors.New("API keys must be set when auth mode is apikey")
	ErrInvalidMultiAuthConfig = errors.New(
		"basic auth users or API keys must be set when auth mode is multi",
	)
	ErrInvalidStorageBackend = errors.New("storage backend must be one of: memory, file, badger, redis")
	ErrStoragePathRequired   = errors.New("storage path must be set when storage backend is file")
	ErrRedisURLRequired      = errors.New("redis URL must be set when storage backend is redis")
	ErrEmptyStorageKey       = errors.New("storage key must not be empty")
	ErrNoCORSOrigins         = errors.New("at least one CORS origin must be set")
)

// Load reads configuration from environment variables with defaults.
// Variables from a dotenv file (APP_ENV_FILE, default .env) fill in
// anything not already set in the environment.
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerPort:      DefaultServerPort,
		LogLevel:        DefaultLogLevel,
		ShutdownTimeout: DefaultShutdownTimeout,
		MetricsEnabled:  DefaultMetricsEnabled,
		CORSOrigins:     splitList(DefaultCORSOrigins),
		AuthMode:        DefaultAuthMode,
		StorageBackend:  DefaultStorageBackend,
		StorageKey:      DefaultStorageKey,
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadEnvFile loads the dotenv file. A missing default file is not an
// error; a missing file named explicitly is.
func loadEnvFile() error {
	path := os.Getenv(EnvEnvFile)
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}

	return nil
}

// loadFromEnv loads configuration values from environment variables.
func (c *Config) loadFromEnv() error {
	if err := c.loadServerEnv(); err != nil {
		return err
	}

	c.loadAuthEnv()
	c.loadStorageEnv()

	return nil
}

// loadServerEnv loads server-related environment variables.
func (c *Config) loadServerEnv() error {
	if val := os.Getenv(EnvServerPort); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvServerPort, err)
		}
		c.ServerPort = port
	}

	if val := os.Getenv(EnvLogLevel); val != "" {
		c.LogLevel = val
	}

	if val := os.Getenv(EnvShutdownTimeout); val != "" {
		timeout, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvShutdownTimeout, err)
		}
		c.ShutdownTimeout = timeout
	}

	if val := os.Getenv(EnvMetricsEnabled); val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvMetricsEnabled, err)
		}
		c.MetricsEnabled = enabled
	}

	if val := os.Getenv(EnvCORSOrigins); val != "" {
		c.CORSOrigins = splitList(val)
	}

	return nil
}

// loadAuthEnv loads authentication environment variables.
func (c *Config) loadAuthEnv() {
	if val := os.Getenv(EnvAuthMode); val != "" {
		c.AuthMode = val
	}

	if val := os.Getenv(EnvBasicAuthUsers); val != "" {
		c.BasicAuthUsers = val
	}

	if val := os.Getenv(EnvAPIKeys); val != "" {
		c.APIKeys = val
	}
}

// loadStorageEnv loads storage backend environment variables.
func (c *Config) loadStorageEnv() {
	if val := os.Getenv(EnvStorageBackend); val != "" {
		c.StorageBackend = val
	}

	if val := os.Getenv(EnvStoragePath); val != "" {
		c.StoragePath = val
	}

	if val := os.Getenv(EnvRedisURL); val != "" {
		c.RedisURL = val
	}

	if val := os.Getenv(EnvStorageKey); val != "" {
		c.StorageKey = val
	}
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateAuth(); err != nil {
		return err
	}

	return c.validateStorage()
}

// validateServer validates server-related configuration.
func (c *Config) validateServer() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	if len(c.CORSOrigins) == 0 {
		return ErrNoCORSOrigins
	}

	return nil
}

// validateAuth validates the auth mode and its required settings.
func (c *Config) validateAuth() error {
	switch c.authModeOrDefault() {
	case "none":
	case "basic":
		if c.BasicAuthUsers == "" {
			return ErrInvalidBasicAuthConfig
		}
	case "apikey":
		if c.APIKeys == "" {
			return ErrInvalidAPIKeyConfig
		}
	case "multi":
		if c.BasicAuthUsers == "" && c.APIKeys == "" {
			return ErrInvalidMultiAuthConfig
		}
	default:
		return ErrInvalidAuthMode
	}

	return nil
}

// validateStorage validates the storage backend and its required settings.
// The badger backend runs in memory when no path is set.
func (c *Config) validateStorage() error {
	switch c.StorageBackend {
	case "memory", "badger":
	case "file":
		if c.StoragePath == "" {
			return ErrStoragePathRequired
		}
	case "redis":
		if c.RedisURL == "" {
			return ErrRedisURLRequired
		}
	default:
		return ErrInvalidStorageBackend
	}

	if c.StorageKey == "" {
		return ErrEmptyStorageKey
	}

	return nil
}

// authModeOrDefault returns the auth mode, defaulting to "none" if empty.
func (c *Config) authModeOrDefault() string {
	if c.AuthMode == "" {
		return DefaultAuthMode
	}
	return c.AuthMode
}

// splitList splits a comma separated value, dropping blank entries.
func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}
