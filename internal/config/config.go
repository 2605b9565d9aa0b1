package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Queue    QueueConfig    `yaml:"queue"`
	Engine   EngineConfig   `yaml:"engine"`
	Insights InsightsConfig `yaml:"insights"`
	Storage  StorageConfig  `yaml:"storage"`
	Cleanup  CleanupConfig  `yaml:"cleanup"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	BodyLimitMB int    `yaml:"body_limit_mb"`
}

// AuthConfig contains the bearer credential required on all work surfaces.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
}

// QueueConfig controls the asynchronous execution mode.
type QueueConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Database          string `yaml:"database"`
	WorkerConcurrency int    `yaml:"worker_concurrency"`
	CompletedMaxAge   int    `yaml:"completed_max_age_seconds"`
	CompletedMaxCount int    `yaml:"completed_max_count"`
	FailedMaxAge      int    `yaml:"failed_max_age_seconds"`
}

// EngineConfig points at the external speech-to-text engine.
type EngineConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  int    `yaml:"timeout_seconds"`
}

// InsightsConfig points at the external insight engine.
type InsightsConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// StorageConfig contains filesystem locations.
type StorageConfig struct {
	TempDir string `yaml:"temp_dir"`
}

// CleanupConfig controls the stale temp file janitor.
type CleanupConfig struct {
	IntervalMinutes int `yaml:"interval_minutes"`
	MaxAgeHours     int `yaml:"max_age_hours"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        3000,
			BodyLimitMB: 50,
		},
		Queue: QueueConfig{
			Database:          "data/queue.db",
			WorkerConcurrency: 2,
			CompletedMaxAge:   3600,
			CompletedMaxCount: 1000,
			FailedMaxAge:      86400,
		},
		Engine: EngineConfig{
			Endpoint: "http://localhost:9090/transcribe",
			Timeout:  300,
		},
		Insights: InsightsConfig{
			Model: "gemini-1.5-flash",
		},
		Storage: StorageConfig{
			TempDir: "temp",
		},
		Cleanup: CleanupConfig{
			IntervalMinutes: 30,
			MaxAgeHours:     6,
		},
	}
}

// Load reads the configuration file if it exists, then applies
// environment overrides and validates. A missing file is not an error.
func Load(path string) (*Config, error) {
	config := Default()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// applyEnv layers the deployment environment's variables over the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("API_BEARER_TOKEN"); v != "" {
		c.Auth.BearerToken = v
	}
	if v := os.Getenv("USE_QUEUE"); v != "" {
		c.Queue.Enabled = v == "true"
	}
	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Queue.WorkerConcurrency = n
		}
	}
	if v := os.Getenv("QUEUE_DATABASE"); v != "" {
		c.Queue.Database = v
	}
	if v := os.Getenv("STT_ENDPOINT"); v != "" {
		c.Engine.Endpoint = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Insights.APIKey = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		c.Insights.Model = v
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.BodyLimitMB < 1 {
		return fmt.Errorf("body_limit_mb must be at least 1, got %d", c.Server.BodyLimitMB)
	}
	if c.Queue.Enabled {
		if c.Queue.Database == "" {
			return fmt.Errorf("queue database path cannot be empty when the queue is enabled")
		}
		if c.Queue.WorkerConcurrency < 1 {
			return fmt.Errorf("worker_concurrency must be at least 1, got %d", c.Queue.WorkerConcurrency)
		}
	}
	if c.Storage.TempDir == "" {
		return fmt.Errorf("temp_dir cannot be empty")
	}
	if c.Cleanup.IntervalMinutes < 1 {
		return fmt.Errorf("cleanup interval_minutes must be at least 1, got %d", c.Cleanup.IntervalMinutes)
	}
	return nil
}

// EngineTimeout returns the engine timeout as a duration.
func (c *EngineConfig) EngineTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}
