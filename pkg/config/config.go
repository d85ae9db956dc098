package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the moderation service.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	Auth       AuthConfig       `yaml:"auth"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Moderation ModerationConfig `yaml:"moderation"`

	// MigrationsPath is the directory holding golang-migrate SQL files.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"crossnext"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"crossnext"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MinConnections int32  `yaml:"min_connections" env:"PGMIN_CONNECTIONS" env-default:"0"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	// MaxConnLifetime and MaxConnIdleTime recycle pooled connections.
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"PGMAX_CONN_LIFETIME" env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"PGMAX_CONN_IDLE_TIME" env-default:"30m"`
	// StatementTimeout bounds each statement, including those inside the
	// approval transaction. Zero keeps the server default.
	StatementTimeout time.Duration `yaml:"statement_timeout" env:"PGSTATEMENT_TIMEOUT" env-default:"30s"`
	ApplicationName  string        `yaml:"application_name" env:"PGAPPNAME" env-default:"crossnext-moderation"`
}

// RedisConfig holds Redis configuration for view invalidation signals.
// An empty host disables Redis; invalidations are then only logged.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	Channel  string `yaml:"channel" env:"REDIS_INVALIDATION_CHANNEL" env-default:"moderation:invalidate"`
}

// ModerationConfig holds settings for listing, permission lookup and retention.
type ModerationConfig struct {
	// PageSize bounds the number of envelopes returned by a list call.
	PageSize int `yaml:"page_size" env:"MODERATION_PAGE_SIZE" env-default:"100"`
	// ViewPaths are the locale paths whose cached moderation views are invalidated.
	ViewPaths []string `yaml:"view_paths" env:"MODERATION_VIEW_PATHS" env-separator:"," env-default:"/ru/admin/pending,/uk/admin/pending,/en/admin/pending"`
	// Permission is the permission code that grants global moderation.
	Permission     string        `yaml:"permission" env:"MODERATION_PERMISSION" env-default:"pending:review"`
	RetentionDays  int           `yaml:"retention_days" env:"MODERATION_RETENTION_DAYS" env-default:"30"`
	SweepInterval  time.Duration `yaml:"sweep_interval" env:"MODERATION_SWEEP_INTERVAL" env-default:"6h"`
	SweepBatchSize int           `yaml:"sweep_batch_size" env:"MODERATION_SWEEP_BATCH_SIZE" env-default:"200"`
}

// RetentionPeriod returns the configured retention as a duration.
func (m *ModerationConfig) RetentionPeriod() time.Duration {
	return time.Duration(m.RetentionDays) * 24 * time.Hour
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile reads configuration from the given YAML file with environment
// variable overrides.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.Auth.JWKSEndpoints = parseJWKSEndpoints(cfg.Auth.JWKSEndpointsStr)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Moderation.PageSize <= 0 {
		return fmt.Errorf("moderation.page_size must be positive, got %d", c.Moderation.PageSize)
	}
	if c.Moderation.RetentionDays <= 0 {
		return fmt.Errorf("moderation.retention_days must be positive, got %d", c.Moderation.RetentionDays)
	}
	if c.Moderation.SweepInterval <= 0 {
		return fmt.Errorf("moderation.sweep_interval must be positive")
	}
	if c.Moderation.SweepBatchSize <= 0 {
		return fmt.Errorf("moderation.sweep_batch_size must be positive, got %d", c.Moderation.SweepBatchSize)
	}
	if c.Database.MinConnections < 0 || c.Database.MinConnections > c.Database.MaxConnections {
		return fmt.Errorf("database.min_connections must be between 0 and max_connections (%d), got %d",
			c.Database.MaxConnections, c.Database.MinConnections)
	}
	if c.Database.StatementTimeout < 0 {
		return fmt.Errorf("database.statement_timeout must not be negative")
	}
	if c.Auth.EnableVerification && len(c.Auth.JWKSEndpoints) == 0 {
		return fmt.Errorf("auth.jwks_endpoints is required when verification is enabled")
	}
	return nil
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	for _, pair := range strings.Split(value, ",") {
		issuer, url, ok := strings.Cut(pair, "=")
		if ok {
			endpoints[strings.TrimSpace(issuer)] = strings.TrimSpace(url)
		}
	}
	return endpoints
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Addr returns the Redis address in host:port form.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
