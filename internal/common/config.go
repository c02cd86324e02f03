// Package common provides shared utilities for Curio
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Curio
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Logging     LoggingConfig `toml:"logging"`
	Auth        AuthConfig    `toml:"auth"`
	Jobs        JobsConfig    `toml:"jobs"`
	Gemini      GeminiConfig  `toml:"gemini"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds SurrealDB connection configuration.
type StorageConfig struct {
	Address   string `toml:"address"` // ws://host:port/rpc
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `toml:"level"`
}

// AuthConfig holds authentication configuration.
// JWTSecret signs/verifies bearer tokens issued by the platform gateway.
// AdminTokenHash is the bcrypt hash of the operator token guarding /api/admin.
type AuthConfig struct {
	JWTSecret      string `toml:"jwt_secret"`
	AdminTokenHash string `toml:"admin_token_hash"`
}

// JobsConfig holds job engine tuning. Durations are strings ("5m", "1h")
// parsed by the Get* accessors, which fall back to defaults on bad input.
type JobsConfig struct {
	RateMax            int    `toml:"rate_max"`
	WindowSize         string `toml:"window_size"`
	LeaseTimeout       string `toml:"lease_timeout"`
	DefaultMaxAttempts int    `toml:"default_max_attempts"`
	BackoffBase        string `toml:"backoff_base"`
	BackoffMax         string `toml:"backoff_max"`
	CompletedRetention string `toml:"completed_retention"`
	FailedRetention    string `toml:"failed_retention"`
	WindowRetention    string `toml:"window_retention"`
	MaxListLimit       int    `toml:"max_list_limit"`
	DefaultListLimit   int    `toml:"default_list_limit"`
	GCBatchSize        int    `toml:"gc_batch_size"`
	ReapInterval       string `toml:"reap_interval"`
	CleanupInterval    string `toml:"cleanup_interval"`
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetWindowSize parses and returns the rate-limit window size.
func (c *JobsConfig) GetWindowSize() time.Duration {
	return parseDurationOr(c.WindowSize, time.Hour)
}

// GetLeaseTimeout parses and returns the processing lease timeout.
func (c *JobsConfig) GetLeaseTimeout() time.Duration {
	return parseDurationOr(c.LeaseTimeout, 5*time.Minute)
}

// GetBackoffBase parses and returns the retry backoff base delay.
func (c *JobsConfig) GetBackoffBase() time.Duration {
	return parseDurationOr(c.BackoffBase, time.Second)
}

// GetBackoffMax parses and returns the retry backoff ceiling.
func (c *JobsConfig) GetBackoffMax() time.Duration {
	return parseDurationOr(c.BackoffMax, 5*time.Minute)
}

// GetCompletedRetention parses and returns how long completed jobs are kept.
func (c *JobsConfig) GetCompletedRetention() time.Duration {
	return parseDurationOr(c.CompletedRetention, 24*time.Hour)
}

// GetFailedRetention parses and returns how long failed jobs are kept.
func (c *JobsConfig) GetFailedRetention() time.Duration {
	return parseDurationOr(c.FailedRetention, 72*time.Hour)
}

// GetWindowRetention parses and returns how long expired rate windows are kept.
func (c *JobsConfig) GetWindowRetention() time.Duration {
	return parseDurationOr(c.WindowRetention, 2*time.Hour)
}

// GetReapInterval parses and returns the scheduler's reap tick.
func (c *JobsConfig) GetReapInterval() time.Duration {
	return parseDurationOr(c.ReapInterval, time.Minute)
}

// GetCleanupInterval parses and returns the scheduler's GC tick.
func (c *JobsConfig) GetCleanupInterval() time.Duration {
	return parseDurationOr(c.CleanupInterval, time.Hour)
}

// GeminiConfig holds Gemini API configuration
type GeminiConfig struct {
	APIKey            string `toml:"api_key"`
	Model             string `toml:"model"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8700,
		},
		Storage: StorageConfig{
			Address:   "ws://localhost:8000/rpc",
			Namespace: "curio",
			Database:  "curio",
			Username:  "root",
			Password:  "root",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Auth: AuthConfig{
			JWTSecret: "dev-jwt-secret-change-in-production",
		},
		Jobs: JobsConfig{
			RateMax:            20,
			WindowSize:         "1h",
			LeaseTimeout:       "5m",
			DefaultMaxAttempts: 3,
			BackoffBase:        "1s",
			BackoffMax:         "5m",
			CompletedRetention: "24h",
			FailedRetention:    "72h",
			WindowRetention:    "2h",
			MaxListLimit:       100,
			DefaultListLimit:   20,
			GCBatchSize:        1000,
			ReapInterval:       "1m",
			CleanupInterval:    "1h",
		},
		Gemini: GeminiConfig{
			Model:             "gemini-2.5-flash",
			RequestsPerMinute: 30,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// Apply environment overrides
	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CURIO_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("CURIO_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("CURIO_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("CURIO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	// Storage overrides
	if v := os.Getenv("CURIO_SURREALDB_URL"); v != "" {
		config.Storage.Address = v
	}
	if v := os.Getenv("CURIO_SURREALDB_NAMESPACE"); v != "" {
		config.Storage.Namespace = v
	}
	if v := os.Getenv("CURIO_SURREALDB_DATABASE"); v != "" {
		config.Storage.Database = v
	}
	if v := os.Getenv("CURIO_SURREALDB_USER"); v != "" {
		config.Storage.Username = v
	}
	if v := os.Getenv("CURIO_SURREALDB_PASS"); v != "" {
		config.Storage.Password = v
	}

	// Auth overrides
	if v := os.Getenv("CURIO_AUTH_JWT_SECRET"); v != "" {
		config.Auth.JWTSecret = v
	}
	if v := os.Getenv("CURIO_AUTH_ADMIN_TOKEN_HASH"); v != "" {
		config.Auth.AdminTokenHash = v
	}

	// Job engine overrides
	if v := os.Getenv("CURIO_JOBS_RATE_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Jobs.RateMax = n
		}
	}
	if v := os.Getenv("CURIO_JOBS_LEASE_TIMEOUT"); v != "" {
		if _, err := time.ParseDuration(v); err == nil {
			config.Jobs.LeaseTimeout = v
		}
	}
	if v := os.Getenv("CURIO_JOBS_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Jobs.DefaultMaxAttempts = n
		}
	}

	if v := os.Getenv("CURIO_GEMINI_MODEL"); v != "" {
		config.Gemini.Model = v
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ResolveAPIKey resolves an API key from environment or config fallback
func ResolveAPIKey(name string, fallback string) (string, error) {
	// Environment variable mapping
	keyToEnvMapping := map[string][]string{
		"gemini_api_key": {"GEMINI_API_KEY", "CURIO_GEMINI_API_KEY", "GOOGLE_API_KEY"},
	}

	// Check environment variables first (highest priority)
	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	// Fallback (lowest priority)
	if fallback != "" {
		return fallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment or config", name)
}
