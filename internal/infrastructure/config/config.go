// Package config loads datachat configuration from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. DATACHAT_LLM_API_KEY.
const EnvPrefix = "DATACHAT"

// Config is the complete application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Registry  RegistryConfig  `mapstructure:"registry" yaml:"registry"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Ingest    IngestConfig    `mapstructure:"ingest" yaml:"ingest"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	MetaStore MetaStoreConfig `mapstructure:"metastore" yaml:"metastore"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	MaxUploadMB  int           `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
}

type RegistryConfig struct {
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Capacity int           `mapstructure:"capacity" yaml:"capacity"`
}

type CacheConfig struct {
	TTL  time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Size int           `mapstructure:"size" yaml:"size"`
}

type IngestConfig struct {
	DownloadTimeout time.Duration `mapstructure:"download_timeout" yaml:"download_timeout"`
	MaxRows         int           `mapstructure:"max_rows" yaml:"max_rows"`
	// WatchDir enables the drop folder when set.
	WatchDir string `mapstructure:"watch_dir" yaml:"watch_dir"`
}

// LLMConfig selects the chat provider. Empty BaseURL and Model pick the
// provider's defaults.
type LLMConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Provider string        `mapstructure:"provider" yaml:"provider"`
	BaseURL  string        `mapstructure:"base_url" yaml:"base_url"`
	Model    string        `mapstructure:"model" yaml:"model"`
	APIKey   string        `mapstructure:"api_key" yaml:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type MetaStoreConfig struct {
	Driver        string        `mapstructure:"driver" yaml:"driver"`
	Path          string        `mapstructure:"path" yaml:"path"`
	RedisAddr     string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" yaml:"redis_db"`
	KeyPrefix     string        `mapstructure:"key_prefix" yaml:"key_prefix"`
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	// Format is "json" or "console".
	Format string `mapstructure:"format" yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Default returns a configuration with every field set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 120 * time.Second,
			MaxUploadMB:  20,
		},
		Registry: RegistryConfig{TTL: 24 * time.Hour, Capacity: 100},
		Cache:    CacheConfig{TTL: 10 * time.Minute, Size: 512},
		Ingest: IngestConfig{
			DownloadTimeout: 30 * time.Second,
			MaxRows:         200000,
		},
		LLM: LLMConfig{
			Enabled:  true,
			Provider: "ollama",
			Timeout:  60 * time.Second,
		},
		MetaStore: MetaStoreConfig{
			Driver:    "file",
			Path:      "./data",
			RedisAddr: "localhost:6379",
			KeyPrefix: "datachat:meta:",
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads the YAML file at path, creating it with defaults when missing,
// applies DATACHAT_* environment overrides and validates the result.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := Write(path, Default()); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Example: DATACHAT_METASTORE_DRIVER=sqlite
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Secrets are often left out of the file entirely; bind them explicitly.
	for _, key := range []string{"llm.api_key", "metastore.redis_password"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Seed with defaults so keys absent from an older file keep their values.
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Write marshals cfg to path with yaml.v3, creating parent directories.
func Write(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for values the application cannot run with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}
	if c.Registry.Capacity <= 0 {
		return fmt.Errorf("registry.capacity must be positive")
	}
	if c.Registry.TTL <= 0 {
		return fmt.Errorf("registry.ttl must be positive")
	}
	if c.Cache.Size <= 0 {
		return fmt.Errorf("cache.size must be positive")
	}
	if c.Ingest.MaxRows <= 0 {
		return fmt.Errorf("ingest.max_rows must be positive")
	}

	switch c.LLM.Provider {
	case "ollama":
	case "gemini":
		if c.LLM.Enabled && c.LLM.APIKey == "" {
			return fmt.Errorf("llm.api_key is required for the gemini provider")
		}
	default:
		return fmt.Errorf("invalid llm.provider '%s', must be one of: ollama, gemini", c.LLM.Provider)
	}

	switch c.MetaStore.Driver {
	case "none", "file", "sqlite", "redis":
	default:
		return fmt.Errorf("invalid metastore.driver '%s', must be one of: none, file, sqlite, redis", c.MetaStore.Driver)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("invalid logging.format '%s', must be 'json' or 'console'", c.Logging.Format)
	}
	return nil
}

// MaxUploadBytes is the upload cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}
