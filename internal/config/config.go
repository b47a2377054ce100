package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	LogLevel string          `yaml:"log_level"`
	Language string          `yaml:"language"`
	Schedule ScheduleConfig  `yaml:"schedule"`
	Storage  StorageConfig   `yaml:"storage"`
	Server   ServerConfig    `yaml:"server"`
	Backends []BackendConfig `yaml:"backends"`
}

// ScheduleConfig defines the automatic sync schedule
type ScheduleConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// StorageConfig defines local persistence settings
type StorageConfig struct {
	Driver string `yaml:"driver"` // "file" or "sqlite"
	Path   string `yaml:"path"`
}

// ServerConfig defines the control API settings
type ServerConfig struct {
	Port      int     `yaml:"port"`
	RateLimit float64 `yaml:"rate_limit"` // requests per second per client
	Burst     int     `yaml:"burst"`
}

// BackendConfig seeds a sync configuration item. Items are matched by key,
// connection parameters are refreshed on every start and history is kept.
type BackendConfig struct {
	Key      string `yaml:"key"`
	Label    string `yaml:"label"`
	Kind     string `yaml:"kind"`
	Target   string `yaml:"target"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Load loads configuration from file and environment variables
func Load(path string) (*Config, error) {
	cfg := &Config{
		LogLevel: "info",
		Language: "en",
		Schedule: ScheduleConfig{
			Enabled:  true,
			Interval: 30 * time.Minute,
			Timeout:  30 * time.Minute,
		},
		Storage: StorageConfig{
			Driver: "file",
			Path:   "/data",
		},
		Server: ServerConfig{
			Port:      8080,
			RateLimit: 5,
			Burst:     20,
		},
	}

	// Load from file if it exists
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Override with environment variables
	cfg.LogLevel = getEnv("TABSTASH_LOG_LEVEL", cfg.LogLevel)
	cfg.Language = getEnv("TABSTASH_LANGUAGE", cfg.Language)
	cfg.Storage.Driver = getEnv("TABSTASH_STORAGE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.Path = getEnv("TABSTASH_STORAGE_PATH", cfg.Storage.Path)
	if port := os.Getenv("TABSTASH_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid TABSTASH_PORT %q: %w", port, err)
		}
		cfg.Server.Port = p
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail later at startup
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "file", "sqlite":
	default:
		return fmt.Errorf("unsupported storage driver: %s", c.Storage.Driver)
	}
	if c.Schedule.Enabled && c.Schedule.Interval <= 0 {
		return fmt.Errorf("schedule interval must be positive, got %v", c.Schedule.Interval)
	}
	seen := make(map[string]bool)
	for _, b := range c.Backends {
		if b.Key == "" {
			return fmt.Errorf("backend %q has no key", b.Label)
		}
		if seen[b.Key] {
			return fmt.Errorf("duplicate backend key: %s", b.Key)
		}
		seen[b.Key] = true
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
