package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Andrii-Skr/crossnext-sub000/pkg/config"
)

const (
	defaultMaxConnections  = 25
	defaultMaxConnLifetime = time.Hour
	defaultMaxConnIdleTime = 30 * time.Minute
	defaultApplicationName = "crossnext-moderation"
)

// DB wraps the pgxpool serving pending envelopes and the live dictionary.
type DB struct {
	*pgxpool.Pool
}

// Config holds pool settings. Zero values fall back to the service defaults.
type Config struct {
	URL             string
	MaxConnections  int32
	MinConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	// StatementTimeout is sent as the statement_timeout runtime parameter.
	// Zero keeps the server default.
	StatementTimeout time.Duration
	ApplicationName  string
}

// ConfigFromSettings maps the loaded database settings onto a pool Config.
func ConfigFromSettings(cfg *config.DatabaseConfig) *Config {
	return &Config{
		URL:              cfg.ConnectionString(),
		MaxConnections:   cfg.MaxConnections,
		MinConnections:   cfg.MinConnections,
		MaxConnLifetime:  cfg.MaxConnLifetime,
		MaxConnIdleTime:  cfg.MaxConnIdleTime,
		StatementTimeout: cfg.StatementTimeout,
		ApplicationName:  cfg.ApplicationName,
	}
}

// NewConnection opens the pool and verifies the server answers.
func NewConnection(ctx context.Context, cfg *Config) (*DB, error) {
	poolConfig, err := newPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

func newPoolConfig(cfg *Config) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConnections
	if poolConfig.MaxConns <= 0 {
		poolConfig.MaxConns = defaultMaxConnections
	}
	if cfg.MinConnections > 0 && cfg.MinConnections <= poolConfig.MaxConns {
		poolConfig.MinConns = cfg.MinConnections
	}

	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	if poolConfig.MaxConnLifetime <= 0 {
		poolConfig.MaxConnLifetime = defaultMaxConnLifetime
	}
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	if poolConfig.MaxConnIdleTime <= 0 {
		poolConfig.MaxConnIdleTime = defaultMaxConnIdleTime
	}

	params := poolConfig.ConnConfig.RuntimeParams
	if _, set := params["application_name"]; !set {
		name := cfg.ApplicationName
		if name == "" {
			name = defaultApplicationName
		}
		params["application_name"] = name
	}
	if cfg.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}

	return poolConfig, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
