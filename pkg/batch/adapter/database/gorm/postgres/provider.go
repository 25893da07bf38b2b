// Package postgres provides a GORM DBProvider implementation for PostgreSQL databases.
package postgres

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tigerroll/suicsync/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/suicsync/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/suicsync/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/suicsync/pkg/batch/core/config"
)

// init registers the PostgreSQL dialector factory with the GORM adapter.
func init() {
	gormadapter.RegisterDialector("postgres", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return postgres.Open(ConnectionString(cfg)), nil
	})
}

// PostgresDBProvider implements database.DBProvider for PostgreSQL connections.
type PostgresDBProvider struct {
	*gormadapter.BaseProvider
}

// ConnectionString generates the key/value DSN expected by gorm.io/driver/postgres.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	sslmode := c.Sslmode
	if sslmode == "" {
		sslmode = "disable"
	}
	parts := []string{
		fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Database, sslmode),
	}
	if c.Schema != "" {
		parts = append(parts, "search_path="+c.Schema)
	}
	if c.ConnectTimeoutSeconds > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", c.ConnectTimeoutSeconds))
	}
	if c.Params != "" {
		parts = append(parts, c.Params)
	}
	return strings.Join(parts, " ")
}

// NewProvider creates a new database.DBProvider for PostgreSQL.
func NewProvider(cfg *config.Config) database.DBProvider {
	return &PostgresDBProvider{BaseProvider: gormadapter.NewBaseProvider(cfg, "postgres")}
}
