// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	API     APIConfig     `mapstructure:"api"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	DB      DBConfig      `mapstructure:"db"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// APIConfig points at the remote procurement endpoints and governs the
// retry/backoff/rate-limit constants around them.
type APIConfig struct {
	ServiceKey           string `mapstructure:"service_key"`
	ListURL              string `mapstructure:"list_url"`
	DetailURL            string `mapstructure:"detail_url"`
	ListTimeoutSeconds   int    `mapstructure:"list_timeout_seconds"`
	DetailTimeoutSeconds int    `mapstructure:"detail_timeout_seconds"`
	MaxRetries           int    `mapstructure:"max_retries"`
	BackoffBaseMs        int    `mapstructure:"backoff_base_ms"`
	DelayMs              int    `mapstructure:"delay_ms"`
	PageSize             int    `mapstructure:"page_size"`
	MaxPages             int    `mapstructure:"max_pages"`
}

// CrawlConfig governs the crawl pipeline defaults.
type CrawlConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	BatchSize   int    `mapstructure:"batch_size"`
	OutputDir   string `mapstructure:"output_dir"`
}

// DBConfig controls the optional run-log database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NARACRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Every key gets a default so AutomaticEnv can bind env-only values
// during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("api.service_key", "")
	v.SetDefault("api.list_url", "")
	v.SetDefault("api.detail_url", "")
	v.SetDefault("api.list_timeout_seconds", 30)
	v.SetDefault("api.detail_timeout_seconds", 15)
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.backoff_base_ms", 750)
	v.SetDefault("api.delay_ms", 100)
	v.SetDefault("api.page_size", 100)
	v.SetDefault("api.max_pages", 999)
	v.SetDefault("crawl.concurrency", 4)
	v.SetDefault("crawl.batch_size", 200)
	v.SetDefault("crawl.output_dir", "data")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "crawl_runs")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.API.ListTimeoutSeconds <= 0 {
		return fmt.Errorf("api.list_timeout_seconds must be > 0")
	}
	if c.API.DetailTimeoutSeconds <= 0 {
		return fmt.Errorf("api.detail_timeout_seconds must be > 0")
	}
	if c.API.MaxRetries <= 0 {
		return fmt.Errorf("api.max_retries must be > 0")
	}
	if c.API.PageSize <= 0 {
		return fmt.Errorf("api.page_size must be > 0")
	}
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// ListTimeout returns the listing endpoint timeout as a duration.
func (c Config) ListTimeout() time.Duration {
	return time.Duration(c.API.ListTimeoutSeconds) * time.Second
}

// DetailTimeout returns the detail endpoint timeout as a duration.
func (c Config) DetailTimeout() time.Duration {
	return time.Duration(c.API.DetailTimeoutSeconds) * time.Second
}

// Delay returns the inter-request delay as a duration.
func (c Config) Delay() time.Duration {
	return time.Duration(c.API.DelayMs) * time.Millisecond
}

// BackoffBase returns the retry backoff base delay as a duration.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.API.BackoffBaseMs) * time.Millisecond
}
