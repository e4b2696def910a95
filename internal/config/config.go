// Package config loads process configuration from an optional .env file,
// an optional YAML file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete process configuration.
type Config struct {
	Ashby  AshbyConfig  `yaml:"ashby"`
	Server ServerConfig `yaml:"server"`
	Redis  RedisConfig  `yaml:"redis"`
	Log    LogConfig    `yaml:"log"`
	Fanout FanoutConfig `yaml:"fanout"`
}

// AshbyConfig configures the upstream client.
type AshbyConfig struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	MaxRetries int           `yaml:"max_retries"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        string `yaml:"port"`
	Passkey     string `yaml:"passkey"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

// RedisConfig configures the shared rate limit cooldown. An empty URL keeps
// the cooldown in process.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// FanoutConfig configures concurrent per-record lookups.
type FanoutConfig struct {
	Workers int `yaml:"workers"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Ashby: AshbyConfig{
			BaseURL:    "https://api.ashbyhq.com",
			MaxRetries: 3,
			Timeout:    30 * time.Second,
		},
		Server: ServerConfig{
			Port:        "5000",
			MaxUploadMB: 100,
		},
		Log: LogConfig{
			Level: "info",
		},
		Fanout: FanoutConfig{
			Workers: 10,
		},
	}
}

// Load builds the configuration. A .env file in the working directory is
// loaded into the environment when present; path names an optional YAML
// file whose ${VAR} and ${VAR:-default} references are expanded before
// parsing. Environment variables override both.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
		}

		if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.Ashby.APIKey = getEnv("ASHBY_API_KEY", cfg.Ashby.APIKey)
	cfg.Ashby.BaseURL = getEnv("ASHBY_BASE_URL", cfg.Ashby.BaseURL)
	cfg.Server.Passkey = getEnv("APP_PASSKEY", cfg.Server.Passkey)
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Redis.URL = getEnv("REDIS_URL", cfg.Redis.URL)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	var err error
	if cfg.Log.Pretty, err = getEnvBool("LOG_PRETTY", cfg.Log.Pretty); err != nil {
		return err
	}
	if cfg.Server.MaxUploadMB, err = getEnvInt("MAX_UPLOAD_MB", cfg.Server.MaxUploadMB); err != nil {
		return err
	}
	if cfg.Fanout.Workers, err = getEnvInt("FANOUT_WORKERS", cfg.Fanout.Workers); err != nil {
		return err
	}
	if cfg.Ashby.MaxRetries, err = getEnvInt("MAX_RETRIES", cfg.Ashby.MaxRetries); err != nil {
		return err
	}
	return nil
}

// Validate checks the settings the server needs.
func (c *Config) Validate() error {
	if c.Ashby.APIKey == "" {
		return fmt.Errorf("ASHBY_API_KEY is required")
	}
	if c.Ashby.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be >= 1 (got %d)", c.Ashby.MaxRetries)
	}
	if c.Ashby.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive (got %s)", c.Ashby.Timeout)
	}
	if c.Server.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("max_upload_mb must be >= 1 (got %d)", c.Server.MaxUploadMB)
	}
	if c.Fanout.Workers < 1 {
		return fmt.Errorf("fanout workers must be >= 1 (got %d)", c.Fanout.Workers)
	}
	return nil
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, value)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %q is not a boolean", key, value)
	}
	return b, nil
}
