package gorm

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	tx "github.com/tigerroll/suicsync/pkg/batch/core/tx"
)

// GormTxAdapter implements tx.Tx and is used by GormTransactionManager.
type GormTxAdapter struct {
	db *gorm.DB
}

// ExecuteDelete implements tx.TxExecutor on the transaction's *gorm.DB.
func (t *GormTxAdapter) ExecuteDelete(ctx context.Context, tableName string, query map[string]interface{}) (int64, error) {
	return execDelete(ctx, t.db, tableName, query)
}

// ExecuteBulkInsert implements tx.TxExecutor on the transaction's *gorm.DB.
func (t *GormTxAdapter) ExecuteBulkInsert(ctx context.Context, tableName string, columns []string, rows [][]interface{}) (int64, error) {
	return execBulkInsert(ctx, t.db, tableName, columns, rows)
}

// ExecuteUpdate implements tx.TxExecutor on the transaction's *gorm.DB.
func (t *GormTxAdapter) ExecuteUpdate(ctx context.Context, tableName string, values map[string]interface{}, query map[string]interface{}) (int64, error) {
	return execUpdate(ctx, t.db, tableName, values, query)
}

// ExecuteCreate implements tx.TxExecutor on the transaction's *gorm.DB.
func (t *GormTxAdapter) ExecuteCreate(ctx context.Context, tableName string, values map[string]interface{}) error {
	return execCreate(ctx, t.db, tableName, values)
}

// GormTransactionManager implements tx.TransactionManager for one connection.
type GormTransactionManager struct {
	db *gorm.DB
}

// NewGormTransactionManager creates a GormTransactionManager over db.
func NewGormTransactionManager(db *gorm.DB) *GormTransactionManager {
	return &GormTransactionManager{db: db}
}

// Begin implements tx.TransactionManager.
func (m *GormTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	var txOpts *sql.TxOptions
	if len(opts) > 0 && opts[0] != nil {
		txOpts = opts[0]
	}

	gormTx := m.db.WithContext(ctx).Begin(txOpts)
	if gormTx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", gormTx.Error)
	}
	return &GormTxAdapter{db: gormTx}, nil
}

// Commit implements tx.TransactionManager.
func (m *GormTransactionManager) Commit(t tx.Tx) error {
	gormTxAdapter, ok := t.(*GormTxAdapter)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTxAdapter, got %T", t)
	}
	return gormTxAdapter.db.Commit().Error
}

// Rollback implements tx.TransactionManager.
func (m *GormTransactionManager) Rollback(t tx.Tx) error {
	gormTxAdapter, ok := t.(*GormTxAdapter)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTxAdapter, got %T", t)
	}
	return gormTxAdapter.db.Rollback().Error
}
