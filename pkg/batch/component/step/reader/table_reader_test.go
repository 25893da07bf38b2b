package reader_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/suicsync/pkg/batch/component/step/reader"
	"github.com/tigerroll/suicsync/pkg/batch/core/domain/model"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
	"github.com/tigerroll/suicsync/pkg/batch/test"
)

const selectSource = "SELECT \\* FROM `suic`.`suic_source`"

func newReader(t *testing.T) (*reader.TableReader, sqlmock.Sqlmock) {
	t.Helper()
	conn, sqlMock := test.NewSQLMockConnection(t, "source")
	resolver := &test.MockDBConnectionResolver{}
	resolver.On("ResolveDBConnection", mock.Anything, "source").Return(conn, nil)
	return reader.NewTableReader(resolver, "source", "suic.suic_source", time.Second), sqlMock
}

func TestTableReader_ReadAll(t *testing.T) {
	r, sqlMock := newReader(t)
	sqlMock.ExpectQuery(selectSource).WillReturnRows(
		sqlmock.NewRows([]string{"SOCIETY", "customer", "margin"}).
			AddRow([]byte("S1"), int64(1001), nil).
			AddRow([]byte("S2"), int64(1002), 4.5),
	)

	rows, err := r.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	society, ok := rows[0].Get("society")
	require.True(t, ok)
	assert.Equal(t, model.String("S1"), society)
	margin, _ := rows[0].Get("margin")
	assert.True(t, margin.IsNull())
	customer, _ := rows[1].Get("customer")
	assert.Equal(t, model.Number(1002), customer)
	assert.Equal(t, []string{"society", "customer", "margin"}, rows[1].Columns())
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestTableReader_EmptyTable(t *testing.T) {
	r, sqlMock := newReader(t)
	sqlMock.ExpectQuery(selectSource).WillReturnRows(sqlmock.NewRows([]string{"society"}))

	rows, err := r.ReadAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestTableReader_QueryError(t *testing.T) {
	r, sqlMock := newReader(t)
	sqlMock.ExpectQuery(selectSource).WillReturnError(errors.New("table locked"))

	_, err := r.ReadAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrQuery)
	assert.Contains(t, err.Error(), "table locked")
}

func TestTableReader_ConnectivityError(t *testing.T) {
	resolver := &test.MockDBConnectionResolver{}
	resolver.On("ResolveDBConnection", mock.Anything, "source").Return(nil, errors.New("dial tcp: connection refused"))
	r := reader.NewTableReader(resolver, "source", "suic.suic_source", time.Second)

	_, err := r.ReadAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrConnectivity)
}

func TestTableReader_ClassifiedResolveErrorIsKept(t *testing.T) {
	resolver := &test.MockDBConnectionResolver{}
	resolver.On("ResolveDBConnection", mock.Anything, "missing").
		Return(nil, exception.Validation("database", "no configuration for connection '%s'", "missing"))
	r := reader.NewTableReader(resolver, "missing", "suic.suic_source", time.Second)

	_, err := r.ReadAll(context.Background())
	assert.ErrorIs(t, err, exception.ErrValidation)
	assert.NotErrorIs(t, err, exception.ErrConnectivity)
}

func TestTableReader_Cursor(t *testing.T) {
	r, sqlMock := newReader(t)
	sqlMock.ExpectQuery(selectSource).WillReturnRows(
		sqlmock.NewRows([]string{"society"}).AddRow("S1"),
	)
	ctx := context.Background()

	_, err := r.Read(ctx)
	assert.ErrorIs(t, err, exception.ErrQuery, "read before open")

	require.NoError(t, r.Open(ctx))
	row, err := r.Read(ctx)
	require.NoError(t, err)
	v, _ := row.Get("society")
	assert.Equal(t, "S1", v.Text())

	_, err = r.Read(ctx)
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, r.Close(ctx))
	require.NoError(t, r.Close(ctx))
}
