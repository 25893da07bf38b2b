package reader

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	"github.com/tigerroll/suicsync/pkg/batch/adapter/database"
	"github.com/tigerroll/suicsync/pkg/batch/core/domain/model"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/logger"
)

const moduleName = "reader"

// TableReader reads one fixed, fully-qualified source table with a single SELECT *.
// Rows are consumed through a cursor (Open, Read, Close) or collected at once with ReadAll.
type TableReader struct {
	resolver       database.DBConnectionResolver
	connName       string
	table          string
	connectTimeout time.Duration

	rows      *sql.Rows
	columns   []string
	readCount int
}

// NewTableReader creates a reader of table on the named connection.
func NewTableReader(resolver database.DBConnectionResolver, connName, table string, connectTimeout time.Duration) *TableReader {
	return &TableReader{
		resolver:       resolver,
		connName:       connName,
		table:          table,
		connectTimeout: connectTimeout,
	}
}

// Open connects to the source and executes the query.
// It fails with a ConnectivityError when the connection is not established within
// the connect timeout, and with a QueryError when the SELECT fails.
func (r *TableReader) Open(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, r.connectTimeout)
	defer cancel()

	conn, err := r.resolver.ResolveDBConnection(connectCtx, r.connName)
	if err != nil {
		if exception.KindOf(err) == nil {
			err = exception.NewBatchErrorf(moduleName, exception.ErrConnectivity, "cannot connect to source '%s'", r.connName, err)
		}
		return err
	}

	query := "SELECT * FROM " + conn.QuoteIdentifier(r.table)
	logger.Debugf("TableReader '%s': %s", r.connName, query)
	rows, err := conn.QueryRows(ctx, query)
	if err != nil {
		return exception.NewBatchErrorf(moduleName, exception.ErrQuery, "failed to read %s", r.table, err)
	}
	columns, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return exception.NewBatchErrorf(moduleName, exception.ErrQuery, "failed to read columns of %s", r.table, err)
	}
	r.rows = rows
	r.columns = columns
	r.readCount = 0
	return nil
}

// Read returns the next row, or io.EOF when the result set is exhausted.
func (r *TableReader) Read(ctx context.Context) (*model.Row, error) {
	if r.rows == nil {
		return nil, exception.NewBatchError(moduleName, exception.ErrQuery, "reader not opened or already closed", errors.New("reader not initialized"))
	}
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return nil, exception.NewBatchErrorf(moduleName, exception.ErrQuery, "error during row iteration of %s", r.table, err)
		}
		return nil, io.EOF
	}

	values := make([]interface{}, len(r.columns))
	ptrs := make([]interface{}, len(r.columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, exception.NewBatchErrorf(moduleName, exception.ErrQuery, "failed to scan row %d of %s", r.readCount+1, r.table, err)
	}

	row := model.NewRow()
	for i, c := range r.columns {
		row.Set(c, model.FromDriver(values[i]))
	}
	r.readCount++
	return row, nil
}

// Close releases the cursor. It is safe to call more than once.
func (r *TableReader) Close(ctx context.Context) error {
	if r.rows == nil {
		return nil
	}
	err := r.rows.Close()
	r.rows = nil
	if err != nil {
		return exception.NewBatchErrorf(moduleName, exception.ErrQuery, "failed to close rows of %s", r.table, err)
	}
	logger.Debugf("TableReader '%s': %d rows read from %s.", r.connName, r.readCount, r.table)
	return nil
}

// ReadAll opens the reader, collects every row and closes it on every path.
// An empty table yields an empty, non-nil slice.
func (r *TableReader) ReadAll(ctx context.Context) ([]*model.Row, error) {
	if err := r.Open(ctx); err != nil {
		return nil, err
	}
	defer r.Close(ctx)

	rows := make([]*model.Row, 0)
	for {
		row, err := r.Read(ctx)
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}
