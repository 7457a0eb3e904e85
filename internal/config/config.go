// Package config provides unified configuration loading for the Catalog Assistant.
// Supports YAML files, .env files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the Catalog Assistant.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Store         StoreConfig         `yaml:"store"`
	Cache         CacheConfig         `yaml:"cache"`
	Engine        EngineConfig        `yaml:"engine"`
	Analytics     AnalyticsConfig     `yaml:"analytics"`
	Observability ObservabilityConfig `yaml:"observability"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

// StoreConfig selects and configures the content store.
type StoreConfig struct {
	Driver     string           `yaml:"driver"` // sqlite, postgres or opensearch
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	OpenSearch OpenSearchConfig `yaml:"opensearch"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// OpenSearchConfig holds OpenSearch-specific settings.
type OpenSearchConfig struct {
	Addresses          []string `yaml:"addresses"`
	Username           string   `yaml:"username"`
	Password           string   `yaml:"password"`
	Index              string   `yaml:"index"`
	InsecureSkipVerify bool     `yaml:"insecure_skip_verify"`
	RateLimit          float64  `yaml:"rate_limit"` // requests per second, 0 disables
	RateBurst          int      `yaml:"rate_burst"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// EngineConfig holds answer pipeline settings.
type EngineConfig struct {
	VocabularyPath      string        `yaml:"vocabulary_path"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	ResultCap           int           `yaml:"result_cap"`
	OverFetchFactor     int           `yaml:"over_fetch_factor"`
	RetrieverTimeout    time.Duration `yaml:"retriever_timeout"`
	RecencyHalfLife     time.Duration `yaml:"recency_half_life"`
	EventHorizon        time.Duration `yaml:"event_horizon"`
	MaxClarifications   int           `yaml:"max_clarifications"`
}

// AnalyticsConfig holds query-event recorder settings.
type AnalyticsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Sink       string `yaml:"sink"` // log or redis
	BufferSize int    `yaml:"buffer_size"`
	Stream     string `yaml:"stream"`
	MaxLen     int64  `yaml:"max_len"`
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	ServiceName    string `yaml:"service_name"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// RateLimitConfig holds per-client token bucket settings for the HTTP API.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Load reads configuration from a YAML file and applies .env and environment overrides.
func Load(path string) (*Config, error) {
	// Missing .env files are fine.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}

		if cfg.Engine.VocabularyPath != "" {
			cfg.Engine.VocabularyPath = ResolveRelativePath(path, cfg.Engine.VocabularyPath)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8085,
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     15 * time.Second,
			IdleTimeout:      120 * time.Second,
			RequestTimeout:   10 * time.Second,
			GracefulShutdown: 10 * time.Second,
			AllowedOrigins:   []string{"*"},
		},
		Store: StoreConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/catalog-assistant.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
			OpenSearch: OpenSearchConfig{
				Addresses: []string{"http://localhost:9200"},
				Index:     "catalog-content",
				RateLimit: 50,
				RateBurst: 10,
			},
		},
		Cache: CacheConfig{
			Enabled:    true,
			Driver:     "memory",
			TTL:        5 * time.Minute,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
			},
		},
		Engine: EngineConfig{
			ConfidenceThreshold: 0.6,
			ResultCap:           12,
			OverFetchFactor:     5,
			RetrieverTimeout:    2 * time.Second,
			RecencyHalfLife:     365 * 24 * time.Hour,
			EventHorizon:        90 * 24 * time.Hour,
			MaxClarifications:   2,
		},
		Analytics: AnalyticsConfig{
			Enabled:    true,
			Sink:       "log",
			BufferSize: 256,
			Stream:     "catalog:query-events",
			MaxLen:     100000,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			ServiceName:    "catalog-assistant",
			MetricsEnabled: true,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 5,
			Burst:             10,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres", "opensearch":
	default:
		return fmt.Errorf("invalid store driver: %s", c.Store.Driver)
	}

	if c.Store.Driver == "opensearch" && len(c.Store.OpenSearch.Addresses) == 0 {
		return fmt.Errorf("opensearch store requires at least one address")
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Engine.ConfidenceThreshold <= 0 || c.Engine.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be in (0, 1]")
	}

	if c.Engine.ResultCap < 1 || c.Engine.ResultCap > 50 {
		return fmt.Errorf("result_cap must be between 1 and 50")
	}

	if c.Engine.OverFetchFactor < 1 {
		return fmt.Errorf("over_fetch_factor must be at least 1")
	}

	if c.Engine.RetrieverTimeout <= 0 {
		return fmt.Errorf("retriever_timeout must be positive")
	}

	if c.Engine.MaxClarifications < 0 {
		return fmt.Errorf("max_clarifications must not be negative")
	}

	if c.Analytics.Sink != "log" && c.Analytics.Sink != "redis" {
		return fmt.Errorf("invalid analytics sink: %s", c.Analytics.Sink)
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate_limit.requests_per_second must be positive when enabled")
	}

	return nil
}

// IsDevelopment returns true if running against the local SQLite store.
func (c *Config) IsDevelopment() bool {
	return c.Store.Driver == "sqlite"
}

// DatabaseDSN returns the appropriate SQL connection string.
func (c *Config) DatabaseDSN() string {
	if c.Store.Driver == "postgres" {
		return c.Store.Postgres.DSN
	}
	return c.Store.SQLite.Path
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Store.Driver = "sqlite"
			cfg.Store.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Store.Driver = "postgres"
			cfg.Store.Postgres.DSN = v
		}
	}

	if v := os.Getenv("OPENSEARCH_URL"); v != "" {
		cfg.Store.Driver = "opensearch"
		cfg.Store.OpenSearch.Addresses = strings.Split(v, ",")
	}

	if v := os.Getenv("OPENSEARCH_USERNAME"); v != "" {
		cfg.Store.OpenSearch.Username = v
	}

	if v := os.Getenv("OPENSEARCH_PASSWORD"); v != "" {
		cfg.Store.OpenSearch.Password = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		// Parse redis://host:port format
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}

	if v := os.Getenv("VOCABULARY_PATH"); v != "" {
		cfg.Engine.VocabularyPath = v
	}

	if v := os.Getenv("CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.ConfidenceThreshold = f
		}
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
