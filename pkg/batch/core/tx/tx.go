// Package tx provides an abstraction for transaction management in the sync service.
// Deletes and multi-row inserts of one migration run inside a single Tx so that
// a failed batch can be undone together with the preceding delete.
package tx

import (
	"context"
	"database/sql"
)

// TxExecutor defines the write operations executable within a transaction.
// It is embedded in both the database connection and Tx, so data operations
// look the same with or without an active transaction.
type TxExecutor interface {
	// ExecuteDelete deletes the rows of tableName matching query.
	//
	// ctx: The context for the operation.
	// tableName: The name of the target database table.
	// query: Column/value conditions combined with AND. An empty query is rejected.
	// Returns: The number of affected rows and any error that occurred during the operation.
	ExecuteDelete(ctx context.Context, tableName string, query map[string]interface{}) (rowsAffected int64, err error)

	// ExecuteBulkInsert inserts rows with a single multi-row INSERT statement.
	//
	// ctx: The context for the operation.
	// tableName: The name of the target database table.
	// columns: The fixed column list. Every row must have exactly len(columns) values.
	// rows: The row values in column order; nil values are written as NULL.
	// Returns: The number of affected rows and any error that occurred during the operation.
	ExecuteBulkInsert(ctx context.Context, tableName string, columns []string, rows [][]interface{}) (rowsAffected int64, err error)

	// ExecuteUpdate updates the rows of tableName matching query with values.
	// Callers implement optimistic locking by including the expected version in query.
	//
	// Returns: The number of affected rows and any error that occurred during the operation.
	ExecuteUpdate(ctx context.Context, tableName string, values map[string]interface{}, query map[string]interface{}) (rowsAffected int64, err error)

	// ExecuteCreate inserts one row given as a column/value map.
	ExecuteCreate(ctx context.Context, tableName string, values map[string]interface{}) error
}

// Tx represents an ongoing database transaction.
type Tx interface {
	TxExecutor // Embeds write operations executable within a transaction
}

// TransactionManager manages the lifecycle of database transactions (begin, commit, rollback).
type TransactionManager interface {
	// Begin starts a new database transaction.
	// ctx: The context for the transaction.
	// opts: Optional arguments specifying transaction options (e.g., isolation level).
	// Returns: An instance of the started Tx interface and any error that occurred during transaction initiation.
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	// Commit commits the specified transaction, persisting all changes made within that transaction.
	Commit(tx Tx) error
	// Rollback rolls back the specified transaction, undoing all changes made within that transaction.
	Rollback(tx Tx) error
}
