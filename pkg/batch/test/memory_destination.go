package test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	tx "github.com/tigerroll/suicsync/pkg/batch/core/tx"
)

// MemoryDestination is an in-memory destination store with transactional semantics.
// Direct calls autocommit; calls on a Tx are applied on Commit and discarded on Rollback.
type MemoryDestination struct {
	mu      sync.Mutex
	tables  map[string][]map[string]interface{}
	inserts int
	// failures maps the 1-based global insert call number to the error it returns.
	failures    map[int]error
	rollbackErr error
	// BeforeInsert, when set, runs before every insert without holding the store lock.
	BeforeInsert func(call int)
	// Ops records "delete <partition>" and "insert <partition>" in call order.
	Ops []string
	// Deletes records every delete condition in call order.
	Deletes []map[string]interface{}
	// Commits and Rollbacks count finished transactions.
	Commits   int
	Rollbacks int
}

// NewMemoryDestination creates an empty store.
func NewMemoryDestination() *MemoryDestination {
	return &MemoryDestination{
		tables:   make(map[string][]map[string]interface{}),
		failures: make(map[int]error),
	}
}

// FailInsert makes the n-th ExecuteBulkInsert call (1-based, counted across transactions) fail with err.
func (m *MemoryDestination) FailInsert(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[n] = err
}

// FailRollback makes every Rollback discard the transaction and then return err.
func (m *MemoryDestination) FailRollback(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbackErr = err
}

// Operations returns a copy of Ops.
func (m *MemoryDestination) Operations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Ops...)
}

func (m *MemoryDestination) beforeInsert() {
	m.mu.Lock()
	call, hook := m.inserts+1, m.BeforeInsert
	m.mu.Unlock()
	if hook != nil {
		hook(call)
	}
}

// Seed adds committed rows directly.
func (m *MemoryDestination) Seed(table string, rows ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = append(m.tables[table], rows...)
}

// Rows returns a copy of the committed rows of table.
func (m *MemoryDestination) Rows(table string) []map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]interface{}(nil), m.tables[table]...)
}

// CountWhere counts committed rows matching every condition.
func (m *MemoryDestination) CountWhere(table string, query map[string]interface{}) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, row := range m.tables[table] {
		if matches(row, query) {
			n++
		}
	}
	return n
}

func matches(row, query map[string]interface{}) bool {
	for k, v := range query {
		if row[k] != v {
			return false
		}
	}
	return true
}

func cloneTables(src map[string][]map[string]interface{}) map[string][]map[string]interface{} {
	dst := make(map[string][]map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = append([]map[string]interface{}(nil), v...)
	}
	return dst
}

func (m *MemoryDestination) deleteLocked(tables map[string][]map[string]interface{}, table string, query map[string]interface{}) (int64, error) {
	if len(query) == 0 {
		return 0, fmt.Errorf("delete requires at least one condition")
	}
	m.Deletes = append(m.Deletes, query)
	m.Ops = append(m.Ops, fmt.Sprintf("delete %v", query["partition_key"]))
	kept := tables[table][:0:0]
	var n int64
	for _, row := range tables[table] {
		if matches(row, query) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	tables[table] = kept
	return n, nil
}

func (m *MemoryDestination) insertLocked(tables map[string][]map[string]interface{}, table string, columns []string, rows [][]interface{}) (int64, error) {
	m.inserts++
	partition := interface{}(nil)
	for i, c := range columns {
		if c == "partition_key" && len(rows) > 0 && i < len(rows[0]) {
			partition = rows[0][i]
		}
	}
	m.Ops = append(m.Ops, fmt.Sprintf("insert %v", partition))
	if err, ok := m.failures[m.inserts]; ok {
		return 0, err
	}
	for i, values := range rows {
		if len(values) != len(columns) {
			return 0, fmt.Errorf("row %d has %d values, expected %d", i, len(values), len(columns))
		}
	}
	for _, values := range rows {
		row := make(map[string]interface{}, len(columns))
		for i, c := range columns {
			row[c] = values[i]
		}
		tables[table] = append(tables[table], row)
	}
	return int64(len(rows)), nil
}

func (m *MemoryDestination) updateLocked(tables map[string][]map[string]interface{}, table string, values, query map[string]interface{}) int64 {
	var n int64
	for i, row := range tables[table] {
		if !matches(row, query) {
			continue
		}
		updated := make(map[string]interface{}, len(row)+len(values))
		for k, v := range row {
			updated[k] = v
		}
		for k, v := range values {
			updated[k] = v
		}
		tables[table][i] = updated
		n++
	}
	return n
}

// ExecuteDelete implements tx.TxExecutor (autocommit).
func (m *MemoryDestination) ExecuteDelete(ctx context.Context, tableName string, query map[string]interface{}) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(m.tables, tableName, query)
}

// ExecuteBulkInsert implements tx.TxExecutor (autocommit).
func (m *MemoryDestination) ExecuteBulkInsert(ctx context.Context, tableName string, columns []string, rows [][]interface{}) (int64, error) {
	m.beforeInsert()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(m.tables, tableName, columns, rows)
}

// ExecuteUpdate implements tx.TxExecutor (autocommit).
func (m *MemoryDestination) ExecuteUpdate(ctx context.Context, tableName string, values map[string]interface{}, query map[string]interface{}) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(m.tables, tableName, values, query), nil
}

// ExecuteCreate implements tx.TxExecutor (autocommit).
func (m *MemoryDestination) ExecuteCreate(ctx context.Context, tableName string, values map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := make(map[string]interface{}, len(values))
	for k, v := range values {
		row[k] = v
	}
	m.tables[tableName] = append(m.tables[tableName], row)
	return nil
}

// TransactionManager returns a manager whose transactions stage changes on a snapshot.
func (m *MemoryDestination) TransactionManager() tx.TransactionManager {
	return &memoryTxManager{store: m}
}

type memoryTx struct {
	store  *MemoryDestination
	staged map[string][]map[string]interface{}
	done   bool
}

func (t *memoryTx) ExecuteDelete(ctx context.Context, tableName string, query map[string]interface{}) (int64, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.deleteLocked(t.staged, tableName, query)
}

func (t *memoryTx) ExecuteBulkInsert(ctx context.Context, tableName string, columns []string, rows [][]interface{}) (int64, error) {
	t.store.beforeInsert()
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.insertLocked(t.staged, tableName, columns, rows)
}

func (t *memoryTx) ExecuteUpdate(ctx context.Context, tableName string, values map[string]interface{}, query map[string]interface{}) (int64, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.updateLocked(t.staged, tableName, values, query), nil
}

func (t *memoryTx) ExecuteCreate(ctx context.Context, tableName string, values map[string]interface{}) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.staged[tableName] = append(t.staged[tableName], values)
	return nil
}

type memoryTxManager struct {
	store *MemoryDestination
}

func (mgr *memoryTxManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	mgr.store.mu.Lock()
	defer mgr.store.mu.Unlock()
	return &memoryTx{store: mgr.store, staged: cloneTables(mgr.store.tables)}, nil
}

func (mgr *memoryTxManager) Commit(t tx.Tx) error {
	mt, ok := t.(*memoryTx)
	if !ok || mt.done {
		return fmt.Errorf("invalid or finished transaction")
	}
	mgr.store.mu.Lock()
	defer mgr.store.mu.Unlock()
	mgr.store.tables = mt.staged
	mgr.store.Commits++
	mt.done = true
	return nil
}

func (mgr *memoryTxManager) Rollback(t tx.Tx) error {
	mt, ok := t.(*memoryTx)
	if !ok || mt.done {
		return fmt.Errorf("invalid or finished transaction")
	}
	mgr.store.mu.Lock()
	defer mgr.store.mu.Unlock()
	mgr.store.Rollbacks++
	mt.done = true
	return mgr.store.rollbackErr
}
