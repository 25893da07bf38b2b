package test

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/suicsync/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/suicsync/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/suicsync/pkg/batch/core/domain/model"
)

// NewSQLMockConnection returns a MySQL-dialect connection backed by sqlmock.
// Expectations are matched with the default regexp matcher.
func NewSQLMockConnection(t *testing.T, name string) (*gormadapter.GormDBAdapter, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: gormadapter.NewGormLogger("SILENT")})
	require.NoError(t, err)

	conn, err := gormadapter.NewGormDBAdapter(gormDB, dbconfig.DatabaseConfig{Type: "mysql"}, name)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn, mock
}

// SampleRows builds n source rows for one partition with distinct customers.
func SampleRows(n int, society string) []*model.Row {
	rows := make([]*model.Row, n)
	for i := range rows {
		rows[i] = model.NewRow().
			Set("society", model.String(society)).
			Set("cost_center", model.String("CC-10")).
			Set("customer", model.Number(float64(1000+i))).
			Set("quantity", model.Number(float64(i+1))).
			Set("amount", model.Number(float64(i+1)*10)).
			Set("margin", model.Null())
	}
	return rows
}
