// Package config holds the application configuration: remote endpoint,
// pacing, retry, circuit breaker, batching, and monitoring settings,
// loadable from YAML files and METAWRITE_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/metawrite/metawrite/internal/ratelimit"
	"github.com/metawrite/metawrite/pkg/retry"
)

// Configuration represents the complete application configuration
type Configuration struct {
	Remote         RemoteConfig         `yaml:"remote"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Retry          retry.Config         `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Batch          BatchConfig          `yaml:"batch"`
	Logging        LoggingConfig        `yaml:"logging"`
	Monitoring     MonitoringConfig     `yaml:"monitoring"`
}

// RemoteConfig identifies the remote catalog service. AccessToken is
// deliberately excluded from YAML: it is read from the environment only
// and never written back to disk.
type RemoteConfig struct {
	ShopDomain  string        `yaml:"shop_domain"`
	APIVersion  string        `yaml:"api_version"`
	OwnerType   string        `yaml:"owner_type"`
	Timeout     time.Duration `yaml:"timeout"`
	AccessToken string        `yaml:"-"`
}

// RateLimitConfig configures the outbound request pacing.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

// CircuitBreakerConfig configures the optional breaker on the mutation path.
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// BatchConfig bounds batched writes.
type BatchConfig struct {
	// MaxItems is the largest number of metafields submitted in one
	// mutation; the remote API rejects oversized inputs.
	MaxItems int `yaml:"max_items"`
}

// LoggingConfig represents logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MonitoringConfig represents metrics endpoint settings
type MonitoringConfig struct {
	MetricsEnabled bool `yaml:"metrics_enabled"`
	MetricsPort    int  `yaml:"metrics_port"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Remote: RemoteConfig{
			APIVersion: "2024-10",
			OwnerType:  "PRODUCT",
			Timeout:    30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: ratelimit.DefaultRequestsPerSecond,
			BurstSize:         ratelimit.DefaultBurstSize,
		},
		Retry: retry.DefaultConfig(),
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:          false,
			FailureThreshold: 5,
			Timeout:          60 * time.Second,
		},
		Batch: BatchConfig{
			MaxItems: 25,
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "json",
		},
		Monitoring: MonitoringConfig{
			MetricsEnabled: false,
			MetricsPort:    9109,
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("METAWRITE_SHOP_DOMAIN"); val != "" {
		c.Remote.ShopDomain = val
	}
	if val := os.Getenv("METAWRITE_ACCESS_TOKEN"); val != "" {
		c.Remote.AccessToken = val
	}
	if val := os.Getenv("METAWRITE_API_VERSION"); val != "" {
		c.Remote.APIVersion = val
	}
	if val := os.Getenv("METAWRITE_OWNER_TYPE"); val != "" {
		c.Remote.OwnerType = val
	}
	if val := os.Getenv("METAWRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Remote.Timeout = d
		}
	}

	if val := os.Getenv("METAWRITE_REQUESTS_PER_SECOND"); val != "" {
		if rate, err := strconv.ParseFloat(val, 64); err == nil {
			c.RateLimit.RequestsPerSecond = rate
		}
	}
	if val := os.Getenv("METAWRITE_BURST_SIZE"); val != "" {
		if burst, err := strconv.Atoi(val); err == nil {
			c.RateLimit.BurstSize = burst
		}
	}

	if val := os.Getenv("METAWRITE_MAX_ATTEMPTS"); val != "" {
		if attempts, err := strconv.Atoi(val); err == nil {
			c.Retry.MaxAttempts = attempts
		}
	}
	if val := os.Getenv("METAWRITE_CIRCUIT_BREAKER"); val != "" {
		c.CircuitBreaker.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("METAWRITE_BATCH_MAX_ITEMS"); val != "" {
		if items, err := strconv.Atoi(val); err == nil {
			c.Batch.MaxItems = items
		}
	}

	if val := os.Getenv("METAWRITE_LOG_LEVEL"); val != "" {
		c.Logging.Level = strings.ToUpper(val)
	}
	if val := os.Getenv("METAWRITE_LOG_FORMAT"); val != "" {
		c.Logging.Format = val
	}
	if val := os.Getenv("METAWRITE_METRICS_ENABLED"); val != "" {
		c.Monitoring.MetricsEnabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("METAWRITE_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Monitoring.MetricsPort = port
		}
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file. The access token is
// never serialized.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if c.Remote.ShopDomain == "" {
		return fmt.Errorf("remote.shop_domain is required")
	}
	if c.Remote.AccessToken == "" {
		return fmt.Errorf("access token is required (set METAWRITE_ACCESS_TOKEN)")
	}
	if c.Remote.APIVersion == "" {
		return fmt.Errorf("remote.api_version is required")
	}

	if c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate_limit.requests_per_second must be greater than 0")
	}
	if c.RateLimit.BurstSize <= 0 {
		return fmt.Errorf("rate_limit.burst_size must be greater than 0")
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}

	if c.Batch.MaxItems <= 0 {
		return fmt.Errorf("batch.max_items must be greater than 0")
	}

	if c.CircuitBreaker.Enabled && c.CircuitBreaker.FailureThreshold <= 0 {
		return fmt.Errorf("circuit_breaker.failure_threshold must be greater than 0")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if c.Logging.Level == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid logging.level: %s (must be one of: %s)",
			c.Logging.Level, strings.Join(validLogLevels, ", "))
	}

	if c.Monitoring.MetricsEnabled && c.Monitoring.MetricsPort <= 0 {
		return fmt.Errorf("monitoring.metrics_port must be greater than 0")
	}

	return nil
}

// SlogLevel maps the configured level name onto a slog.Level.
func (c *Configuration) SlogLevel() slog.Level {
	switch c.Logging.Level {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
