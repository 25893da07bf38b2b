// Package migration applies the embedded schema migrations of the destination and workflow stores.
package migration

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/suicsync/pkg/batch/adapter/database"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/logger"
)

const moduleName = "migration"

//go:embed resources
var rawResources embed.FS

// Migration history tables, one per store.
const (
	DestinationMigrationsTable = "suic_destination_migrations"
	WorkflowMigrationsTable    = "suic_workflow_migrations"
)

// Schema identifies one group of migrations.
type Schema string

const (
	// SchemaDestination creates the transferred-records table.
	SchemaDestination Schema = "destination"
	// SchemaWorkflow creates the run / flow-state table.
	SchemaWorkflow Schema = "workflow"
)

// Resources returns the embedded migration files rooted at "resources".
func Resources() fs.FS {
	sub, err := fs.Sub(rawResources, "resources")
	if err != nil {
		logger.Fatalf("Failed to open embedded migration resources: %v", err)
	}
	return sub
}

// Path returns the resource directory of schema for the given database type.
func Path(schema Schema, dbType string) (string, error) {
	switch dbType {
	case "mysql", "postgres", "sqlite":
		return string(schema) + "/" + dbType, nil
	default:
		return "", exception.Validation(moduleName, "unsupported database type for migration: %s", dbType)
	}
}

// HistoryTable returns the migration history table of schema.
func HistoryTable(schema Schema) string {
	if schema == SchemaWorkflow {
		return WorkflowMigrationsTable
	}
	return DestinationMigrationsTable
}

// Migrator runs golang-migrate against one database connection.
// The migrate instance closes the connection pool when it finishes; the
// connection resolver re-opens it on the next resolve.
type Migrator struct {
	conn database.DBConnection
}

// NewMigrator creates a Migrator for conn.
func NewMigrator(conn database.DBConnection) *Migrator {
	return &Migrator{conn: conn}
}

func (m *Migrator) databaseDriver(tableName string) (migratedb.Driver, error) {
	sqlDB, err := m.conn.GetSQLDB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	switch m.conn.Type() {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: tableName})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: tableName})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: tableName})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.conn.Type())
	}
}

func (m *Migrator) instance(migrationFS fs.FS, path, tableName string) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationFS, path)
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs source driver for path %s: %w", path, err)
	}
	dbDriver, err := m.databaseDriver(tableName)
	if err != nil {
		_ = sourceDriver.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}
	mInstance, err := migrate.NewWithInstance("iofs", sourceDriver, m.conn.Type(), dbDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return mInstance, nil
}

func (m *Migrator) run(ctx context.Context, migrationFS fs.FS, path, tableName string, up bool) error {
	command := "down"
	if up {
		command = "up"
	}
	logger.Infof("Executing migration '%s' on '%s' (Path: %s, Table: %s)", command, m.conn.Name(), path, tableName)

	mInstance, err := m.instance(migrationFS, path, tableName)
	if err != nil {
		return exception.NewBatchErrorf(moduleName, exception.ErrConnectivity, "cannot prepare migration of '%s'", m.conn.Name(), err)
	}
	defer func() {
		if srcErr, dbErr := mInstance.Close(); srcErr != nil || dbErr != nil {
			logger.Debugf("Migration instance of '%s' closed with errors: %v, %v", m.conn.Name(), srcErr, dbErr)
		}
	}()

	if up {
		err = mInstance.Up()
	} else {
		err = mInstance.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		if version, dirty, vErr := mInstance.Version(); vErr == nil {
			logger.Errorf("Migration of '%s' failed at version %d (dirty=%t).", m.conn.Name(), version, dirty)
		}
		return exception.NewBatchErrorf(moduleName, exception.ErrQuery, "migration '%s' failed on '%s' (path %s)", command, m.conn.Name(), path, err)
	}
	logger.Infof("Migration '%s' on '%s' completed.", command, m.conn.Name())
	return nil
}

// Up applies all pending migrations found under path.
func (m *Migrator) Up(ctx context.Context, migrationFS fs.FS, path, tableName string) error {
	return m.run(ctx, migrationFS, path, tableName, true)
}

// Down rolls back all applied migrations found under path.
func (m *Migrator) Down(ctx context.Context, migrationFS fs.FS, path, tableName string) error {
	return m.run(ctx, migrationFS, path, tableName, false)
}

// UpSchema applies the embedded migrations of schema for the connection's dialect.
func (m *Migrator) UpSchema(ctx context.Context, schema Schema) error {
	path, err := Path(schema, m.conn.Type())
	if err != nil {
		return err
	}
	return m.Up(ctx, Resources(), path, HistoryTable(schema))
}
