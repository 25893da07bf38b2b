package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/suicsync/pkg/batch/adapter/database/config"
	coreAdapter "github.com/tigerroll/suicsync/pkg/batch/core/adapter"
	"github.com/tigerroll/suicsync/pkg/batch/core/tx"
)

// DBExecutor defines the write and read operations available on a connection.
type DBExecutor interface {
	tx.TxExecutor // Embeds ExecuteDelete, ExecuteBulkInsert, ExecuteUpdate, ExecuteCreate

	// ExecuteQuery loads the rows of tableName matching query into target (a pointer to a struct or slice).
	ExecuteQuery(ctx context.Context, target interface{}, tableName string, query map[string]interface{}) error

	// QueryRows executes a raw SELECT and returns the open result set. The caller must close it.
	QueryRows(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)

	// Count counts the rows of tableName matching query.
	Count(ctx context.Context, tableName string, query map[string]interface{}) (int64, error)
}

// DBConnection represents an abstraction of a database connection.
// It embeds coreAdapter.ResourceConnection for generic connection management
// and DBExecutor for database-specific operations.
type DBConnection interface {
	coreAdapter.ResourceConnection // Embeds Type(), Name(), Close()
	DBExecutor

	// QuoteIdentifier quotes a table or column name for the connection's dialect.
	// Dotted names are quoted per segment.
	QuoteIdentifier(name string) string
	// IsTableNotExistError checks if the given error indicates that a table does not exist.
	IsTableNotExistError(err error) bool
	// RefreshConnection checks the connection and re-establishes the pool if necessary.
	RefreshConnection(ctx context.Context) error
	// Config returns the database configuration associated with this connection.
	Config() dbconfig.DatabaseConfig
	// GetSQLDB returns the underlying *sql.DB connection (used by migrations).
	GetSQLDB() (*sql.DB, error)
	// TransactionManager returns a manager whose transactions run on this connection.
	TransactionManager() tx.TransactionManager
}

// DBConnectionResolver resolves named database connections.
type DBConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver // Embeds ResolveConnection

	// ResolveDBConnection resolves a database connection instance by name.
	// It re-establishes the connection if a health check fails.
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProvider is an interface responsible for providing database connections based on configuration.
type DBProvider interface {
	// GetConnection retrieves a database connection with the specified name.
	GetConnection(name string) (DBConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the database type handled by this provider (e.g., "mysql").
	Type() string
	// ForceReconnect forces the closure and re-establishment of an existing connection with the specified name.
	ForceReconnect(name string) (DBConnection, error)
}

// DBProviderGroup is an Fx tag used to group all DBProvider implementations.
const DBProviderGroup = "db_providers"
