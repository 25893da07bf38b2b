package gorm

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	"github.com/tigerroll/suicsync/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/suicsync/pkg/batch/adapter/database/config"
	"github.com/tigerroll/suicsync/pkg/batch/core/tx"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/logger"
)

// GormDBAdapter implements database.DBConnection on top of a *gorm.DB.
type GormDBAdapter struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	cfg    dbconfig.DatabaseConfig
	dbType string
	name   string
}

// NewGormDBAdapter creates a new GormDBAdapter.
func NewGormDBAdapter(db *gorm.DB, cfg dbconfig.DatabaseConfig, name string) (*GormDBAdapter, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}
	return &GormDBAdapter{
		db:     db,
		sqlDB:  sqlDB,
		cfg:    cfg,
		dbType: cfg.Type,
		name:   name,
	}, nil
}

// GetGormDB returns the underlying *gorm.DB instance.
// NOTE: This method is intended for use within the gorm adapter and repository layers only.
func (a *GormDBAdapter) GetGormDB() *gorm.DB {
	return a.db
}

// Close implements coreAdapter.ResourceConnection.
func (a *GormDBAdapter) Close() error {
	if a.sqlDB != nil {
		logger.Infof("Closing database connection '%s'...", a.name)
		return a.sqlDB.Close()
	}
	return nil
}

// Type implements coreAdapter.ResourceConnection.
func (a *GormDBAdapter) Type() string {
	return a.dbType
}

// Name implements coreAdapter.ResourceConnection.
func (a *GormDBAdapter) Name() string {
	return a.name
}

// RefreshConnection implements database.DBConnection.
func (a *GormDBAdapter) RefreshConnection(ctx context.Context) error {
	if a.sqlDB == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	return a.sqlDB.PingContext(ctx)
}

// Config implements database.DBConnection.
func (a *GormDBAdapter) Config() dbconfig.DatabaseConfig {
	return a.cfg
}

// GetSQLDB implements database.DBConnection.
func (a *GormDBAdapter) GetSQLDB() (*sql.DB, error) {
	if a.sqlDB == nil {
		return nil, fmt.Errorf("underlying sql.DB is nil")
	}
	return a.sqlDB, nil
}

// QuoteIdentifier implements database.DBConnection.
func (a *GormDBAdapter) QuoteIdentifier(name string) string {
	return quoteIdentifier(a.db, name)
}

// IsTableNotExistError implements database.DBConnection.
func (a *GormDBAdapter) IsTableNotExistError(err error) bool {
	return isTableNotExistError(err)
}

// TransactionManager implements database.DBConnection.
func (a *GormDBAdapter) TransactionManager() tx.TransactionManager {
	return &GormTransactionManager{db: a.db}
}

// session skips GORM's default transaction for single statements.
func (a *GormDBAdapter) session() *gorm.DB {
	return a.db.Session(&gorm.Session{SkipDefaultTransaction: true})
}

// ExecuteDelete implements tx.TxExecutor.
func (a *GormDBAdapter) ExecuteDelete(ctx context.Context, tableName string, query map[string]interface{}) (int64, error) {
	return execDelete(ctx, a.session(), tableName, query)
}

// ExecuteBulkInsert implements tx.TxExecutor.
func (a *GormDBAdapter) ExecuteBulkInsert(ctx context.Context, tableName string, columns []string, rows [][]interface{}) (int64, error) {
	return execBulkInsert(ctx, a.session(), tableName, columns, rows)
}

// ExecuteUpdate implements tx.TxExecutor.
func (a *GormDBAdapter) ExecuteUpdate(ctx context.Context, tableName string, values map[string]interface{}, query map[string]interface{}) (int64, error) {
	return execUpdate(ctx, a.session(), tableName, values, query)
}

// ExecuteCreate implements tx.TxExecutor.
func (a *GormDBAdapter) ExecuteCreate(ctx context.Context, tableName string, values map[string]interface{}) error {
	return execCreate(ctx, a.session(), tableName, values)
}

// ExecuteQuery implements database.DBExecutor using GORM's Find.
// Find does not return ErrRecordNotFound for slices; callers check the result length.
func (a *GormDBAdapter) ExecuteQuery(ctx context.Context, target interface{}, tableName string, query map[string]interface{}) error {
	db := a.db.WithContext(ctx).Table(tableName)
	if len(query) > 0 {
		db = db.Where(query)
	}
	return db.Find(target).Error
}

// QueryRows implements database.DBExecutor.
func (a *GormDBAdapter) QueryRows(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return a.db.WithContext(ctx).Raw(query, args...).Rows()
}

// Count implements database.DBExecutor.
func (a *GormDBAdapter) Count(ctx context.Context, tableName string, query map[string]interface{}) (int64, error) {
	db := a.db.WithContext(ctx).Table(tableName)
	if len(query) > 0 {
		db = db.Where(query)
	}
	var count int64
	if err := db.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

var _ database.DBConnection = (*GormDBAdapter)(nil)
