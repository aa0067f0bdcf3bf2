package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Catalog  CatalogConfig
	Cache    CacheConfig
	Scoring  ScoringConfig
	Audit    AuditConfig
	Matching MatchingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string   `mapstructure:"port"`
	Environment     string   `mapstructure:"environment"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	RateLimitPerMin int      `mapstructure:"rate_limit_per_min"` // 0 disables
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// DatabaseConfig holds the Postgres connection configuration
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// CatalogConfig selects the catalog store backend
type CatalogConfig struct {
	Backend string      `mapstructure:"backend"` // "postgres" or "neo4j"
	Neo4j   Neo4jConfig `mapstructure:"neo4j"`
}

// Neo4jConfig holds Neo4j connection configuration for the graph-backed
// catalog store
type Neo4jConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// CacheConfig holds fast-tier configuration. The durable tier always lives
// in Postgres alongside the other stores.
type CacheConfig struct {
	FastTier      string `mapstructure:"fast_tier"` // "memory", "redis", or "none"
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// ScoringConfig holds the optional remote scoring delegate configuration
type ScoringConfig struct {
	RemoteEnabled     bool          `mapstructure:"remote_enabled"`
	RemoteURL         string        `mapstructure:"remote_url"`
	RemoteAPIKey      string        `mapstructure:"remote_api_key"`
	RemoteTimeout     time.Duration `mapstructure:"remote_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// AuditConfig holds the optional ClickHouse audit sink configuration
type AuditConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// MatchingConfig holds matching entry-point defaults
type MatchingConfig struct {
	DefaultK        int `mapstructure:"default_k"`
	DefaultPreviewK int `mapstructure:"default_preview_k"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/mealmatch/")

	v.SetEnvPrefix("MEALMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional; env vars and defaults cover everything
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.rate_limit_per_min", 300)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("catalog.backend", "postgres")
	v.SetDefault("catalog.neo4j.database", "neo4j")

	v.SetDefault("cache.fast_tier", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)

	v.SetDefault("scoring.remote_enabled", false)
	v.SetDefault("scoring.remote_timeout", "5s")
	v.SetDefault("scoring.requests_per_second", 10.0)

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.host", "localhost")
	v.SetDefault("audit.port", 9000)
	v.SetDefault("audit.database", "mealmatch")
	v.SetDefault("audit.username", "default")

	v.SetDefault("matching.default_k", 20)
	v.SetDefault("matching.default_preview_k", 24)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Database.DSN == "" {
		return fmt.Errorf("Postgres DSN is required (set MEALMATCH_DATABASE_DSN)")
	}

	switch config.Catalog.Backend {
	case "postgres":
	case "neo4j":
		if config.Catalog.Neo4j.URI == "" {
			return fmt.Errorf("Neo4j URI is required when catalog backend is 'neo4j'")
		}
	default:
		return fmt.Errorf("catalog backend must be 'postgres' or 'neo4j', got: %s", config.Catalog.Backend)
	}

	switch config.Cache.FastTier {
	case "memory", "none":
	case "redis":
		if config.Cache.RedisAddr == "" {
			return fmt.Errorf("Redis address is required when fast tier is 'redis'")
		}
	default:
		return fmt.Errorf("fast tier must be 'memory', 'redis', or 'none', got: %s", config.Cache.FastTier)
	}

	if config.Scoring.RemoteEnabled && config.Scoring.RemoteURL == "" {
		return fmt.Errorf("remote scorer URL is required when remote scoring is enabled")
	}

	return nil
}
