// Package mysql provides a GORM DBProvider implementation for MySQL databases.
package mysql

import (
	"fmt"
	"net/url"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/suicsync/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/suicsync/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/suicsync/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/suicsync/pkg/batch/core/config"
)

// init registers the MySQL dialector factory with the gorm adapter.
func init() {
	gormadapter.RegisterDialector("mysql", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return mysql.Open(ConnectionString(cfg)), nil
	})
}

// MySQLDBProvider implements database.DBProvider for MySQL connections.
type MySQLDBProvider struct {
	*gormadapter.BaseProvider
}

// ConnectionString generates the DSN expected by gorm.io/driver/mysql.
// The connect timeout is passed as the driver's dial timeout.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	dsn := gomysql.NewConfig()
	dsn.User = c.User
	dsn.Passwd = c.Password
	dsn.Net = "tcp"
	dsn.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	dsn.DBName = c.Database
	dsn.ParseTime = true
	dsn.Params = map[string]string{"charset": "utf8mb4"}
	if c.ConnectTimeoutSeconds > 0 {
		dsn.Timeout = c.ConnectTimeout(0)
	}
	if c.Params != "" {
		if values, err := url.ParseQuery(c.Params); err == nil {
			for k := range values {
				dsn.Params[k] = values.Get(k)
			}
		}
	}
	return dsn.FormatDSN()
}

// NewProvider creates a new MySQL DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return &MySQLDBProvider{BaseProvider: gormadapter.NewBaseProvider(cfg, "mysql")}
}
