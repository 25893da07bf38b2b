package gorm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"
)

// errEmptyCondition guards against unconditional deletes.
var errEmptyCondition = errors.New("delete requires at least one condition")

// quoteIdentifier quotes name with the dialect of db. Dotted names are quoted per segment by the dialector.
func quoteIdentifier(db *gorm.DB, name string) string {
	return db.Statement.Quote(name)
}

// sortedKeys returns the keys of m in ascending order so generated SQL is deterministic.
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// buildDelete renders DELETE FROM t WHERE a = ? AND b = ? with conditions in column order.
func buildDelete(db *gorm.DB, tableName string, query map[string]interface{}) (string, []interface{}, error) {
	if len(query) == 0 {
		return "", nil, errEmptyCondition
	}
	var sb strings.Builder
	args := make([]interface{}, 0, len(query))
	sb.WriteString("DELETE FROM ")
	sb.WriteString(quoteIdentifier(db, tableName))
	sb.WriteString(" WHERE ")
	for i, col := range sortedKeys(query) {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		sb.WriteString(quoteIdentifier(db, col))
		sb.WriteString(" = ?")
		args = append(args, query[col])
	}
	return sb.String(), args, nil
}

// buildBulkInsert renders one INSERT INTO t (c1,c2) VALUES (?,?),(?,?) statement for all rows.
func buildBulkInsert(db *gorm.DB, tableName string, columns []string, rows [][]interface{}) (string, []interface{}, error) {
	if len(columns) == 0 {
		return "", nil, errors.New("bulk insert requires at least one column")
	}
	if len(rows) == 0 {
		return "", nil, errors.New("bulk insert requires at least one row")
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdentifier(db, c)
	}
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"

	var sb strings.Builder
	args := make([]interface{}, 0, len(columns)*len(rows))
	sb.WriteString("INSERT INTO ")
	sb.WriteString(quoteIdentifier(db, tableName))
	sb.WriteString(" (")
	sb.WriteString(strings.Join(quoted, ","))
	sb.WriteString(") VALUES ")
	for i, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(columns))
		}
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(placeholder)
		args = append(args, row...)
	}
	return sb.String(), args, nil
}

// execDelete, execBulkInsert, execUpdate and execCreate are shared by the
// connection adapter and the transaction adapter.

func execDelete(ctx context.Context, db *gorm.DB, tableName string, query map[string]interface{}) (int64, error) {
	stmt, args, err := buildDelete(db, tableName, query)
	if err != nil {
		return 0, err
	}
	result := db.WithContext(ctx).Exec(stmt, args...)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func execBulkInsert(ctx context.Context, db *gorm.DB, tableName string, columns []string, rows [][]interface{}) (int64, error) {
	stmt, args, err := buildBulkInsert(db, tableName, columns, rows)
	if err != nil {
		return 0, err
	}
	result := db.WithContext(ctx).Exec(stmt, args...)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func execUpdate(ctx context.Context, db *gorm.DB, tableName string, values map[string]interface{}, query map[string]interface{}) (int64, error) {
	if len(query) == 0 {
		return 0, errors.New("update requires at least one condition")
	}
	result := db.WithContext(ctx).Table(tableName).Where(query).Updates(values)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func execCreate(ctx context.Context, db *gorm.DB, tableName string, values map[string]interface{}) error {
	return db.WithContext(ctx).Table(tableName).Create(values).Error
}

// isTableNotExistError covers the "table not found" errors of PostgreSQL, MySQL and SQLite.
func isTableNotExistError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return (strings.Contains(errMsg, "relation \"") && strings.Contains(errMsg, "\" does not exist")) || // PostgreSQL
		(strings.Contains(errMsg, "Error 1146") && strings.Contains(errMsg, "doesn't exist")) || // MySQL
		strings.Contains(errMsg, "no such table:") // SQLite
}
