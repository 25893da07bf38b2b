package migration_test

import (
	"context"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/suicsync/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/suicsync/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/suicsync/pkg/batch/adapter/database/migration"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
)

func TestResources_EveryDialectHasUpAndDown(t *testing.T) {
	for _, schema := range []migration.Schema{migration.SchemaDestination, migration.SchemaWorkflow} {
		for _, dialect := range []string{"mysql", "postgres", "sqlite"} {
			path, err := migration.Path(schema, dialect)
			require.NoError(t, err)
			ups, err := fs.Glob(migration.Resources(), path+"/*.up.sql")
			require.NoError(t, err)
			downs, err := fs.Glob(migration.Resources(), path+"/*.down.sql")
			require.NoError(t, err)
			assert.NotEmpty(t, ups, path)
			assert.Len(t, downs, len(ups), path)
		}
	}
}

func TestPath_UnsupportedDialect(t *testing.T) {
	_, err := migration.Path(migration.SchemaWorkflow, "oracle")
	assert.ErrorIs(t, err, exception.ErrValidation)
}

func TestMigrator_UpSchemaOnSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "workflow.db")
	open := func() *gorm.DB {
		db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{Logger: gormadapter.NewGormLogger("SILENT")})
		require.NoError(t, err)
		return db
	}
	conn, err := gormadapter.NewGormDBAdapter(open(), dbconfig.DatabaseConfig{Type: "sqlite", Database: dbPath}, "workflow")
	require.NoError(t, err)

	require.NoError(t, migration.NewMigrator(conn).UpSchema(context.Background(), migration.SchemaWorkflow))

	check := open()
	assert.True(t, check.Migrator().HasTable("suic_runs"))
	assert.True(t, check.Migrator().HasTable(migration.WorkflowMigrationsTable))
	assert.False(t, check.Migrator().HasTable("suic_records"))
	sqlDB, err := check.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}
