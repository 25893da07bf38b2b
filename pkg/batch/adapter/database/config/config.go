package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Type     string     `yaml:"type"`              // Database type ("mysql", "postgres", "sqlite").
	Host     string     `yaml:"host"`              // Database host address.
	Port     int        `yaml:"port"`              // Database port number.
	Database string     `yaml:"database"`          // Database name, or file path for SQLite.
	User     string     `yaml:"user"`              // Database user.
	Password string     `yaml:"password"`          // Database password.
	Schema   string     `yaml:"schema,omitempty"`  // Schema name for PostgreSQL.
	Sslmode  string     `yaml:"sslmode"`           // SSL mode for PostgreSQL connections.
	Params   string     `yaml:"params,omitempty"`  // Extra DSN parameters appended verbatim.
	Pool     PoolConfig `yaml:"pool"`              // Connection pool settings.
	// ConnectTimeoutSeconds bounds connection establishment. 0 uses the transfer default.
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds"`
}

// ConnectTimeout returns the connection timeout, or def when none is configured.
func (c DatabaseConfig) ConnectTimeout(def time.Duration) time.Duration {
	if c.ConnectTimeoutSeconds > 0 {
		return time.Duration(c.ConnectTimeoutSeconds) * time.Second
	}
	return def
}

// Decode converts a raw named-connection map (as loaded from YAML or env) into a DatabaseConfig.
// String values are converted to the field types, so env overrides like "3306" decode into Port.
func Decode(raw interface{}) (DatabaseConfig, error) {
	var cfg DatabaseConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return cfg, err
	}
	if err := decoder.Decode(raw); err != nil {
		return cfg, fmt.Errorf("failed to decode database config: %w", err)
	}
	return cfg, nil
}
