package writer_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/suicsync/pkg/batch/component/step/writer"
	"github.com/tigerroll/suicsync/pkg/batch/core/domain/model"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
	"github.com/tigerroll/suicsync/pkg/batch/test"
)

const table = "suic_records"

func newWriter(batchSize int) *writer.BatchWriter {
	return writer.NewBatchWriter(table, model.DefaultColumnSet, "society", batchSize, 0)
}

func TestSavePartition_AllBatchesSucceed(t *testing.T) {
	dest := test.NewMemoryDestination()
	var progress [][2]int

	summary, err := newWriter(3).SavePartition(context.Background(), dest, "run-1", "PE", test.SampleRows(7, "PE"), func(b, total int) {
		progress = append(progress, [2]int{b, total})
	})

	require.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Equal(t, 7, summary.ProcessedRecords)
	assert.Equal(t, 3, summary.TotalBatches)
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, progress)
	assert.Equal(t, 7, dest.CountWhere(table, map[string]interface{}{"run_id": "run-1", "partition_key": "PE"}))
	assert.Len(t, dest.Deletes, 1, "delete runs before the first batch only")
	assert.Equal(t, 3, dest.Commits)
}

func TestSavePartition_MiddleBatchFailsAndOthersContinue(t *testing.T) {
	dest := test.NewMemoryDestination()
	dest.FailInsert(2, errors.New("Error 1406: Data too long"))
	rows := test.SampleRows(7, "PE")

	summary, err := newWriter(3).SavePartition(context.Background(), dest, "run-1", "PE", rows, nil)

	require.NoError(t, err, "partial success is not a failure of the save")
	assert.True(t, summary.Success)
	assert.Equal(t, 3+1, summary.ProcessedRecords)
	assert.Equal(t, 1, summary.FailedBatches())
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "batch 2/3 failed")
	assert.Contains(t, summary.Message, "1 of 3 batches failed")
	require.Len(t, summary.Results, 3)
	assert.True(t, summary.Results[0].Success)
	assert.False(t, summary.Results[1].Success)
	assert.NotEmpty(t, summary.Results[1].Errors)
	assert.True(t, summary.Results[2].Success)

	stored := dest.Rows(table)
	require.Len(t, stored, 4)
	customers := make([]interface{}, 0, len(stored))
	for _, r := range stored {
		customers = append(customers, r["customer"])
	}
	assert.Equal(t, []interface{}{1000.0, 1001.0, 1002.0, 1006.0}, customers)
}

func TestSavePartition_DeleteMovesToNextBatchWhenFirstFails(t *testing.T) {
	dest := test.NewMemoryDestination()
	dest.Seed(table,
		map[string]interface{}{"run_id": "run-1", "partition_key": "PE", "customer": 1.0},
		map[string]interface{}{"run_id": "run-1", "partition_key": "CL", "customer": 2.0},
	)
	dest.FailInsert(1, errors.New("deadlock"))

	summary, err := newWriter(2).SavePartition(context.Background(), dest, "run-1", "PE", test.SampleRows(4, "PE"), nil)

	require.NoError(t, err)
	assert.Equal(t, 2, summary.ProcessedRecords)
	assert.Len(t, dest.Deletes, 2)
	assert.Equal(t, 2, dest.CountWhere(table, map[string]interface{}{"partition_key": "PE"}))
	assert.Equal(t, 1, dest.CountWhere(table, map[string]interface{}{"partition_key": "CL"}), "other partitions are untouched")
}

func TestSavePartition_AllBatchesFail(t *testing.T) {
	dest := test.NewMemoryDestination()
	for i := 1; i <= 3; i++ {
		dest.FailInsert(i, errors.New("Error 1146: Table doesn't exist"))
	}

	summary, err := newWriter(3).SavePartition(context.Background(), dest, "run-1", "PE", test.SampleRows(7, "PE"), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrBatchWrite)
	assert.False(t, summary.Success)
	assert.Zero(t, summary.ProcessedRecords)
	assert.Equal(t, 3, summary.FailedBatches())
	assert.Len(t, summary.Errors, 3)
	assert.Zero(t, dest.Commits)
}

func TestSavePartition_RollbackFailureIsOneErrorPerBatch(t *testing.T) {
	dest := test.NewMemoryDestination()
	dest.FailInsert(2, errors.New("bad connection"))
	dest.FailRollback(errors.New("driver: bad connection"))

	summary, err := newWriter(3).SavePartition(context.Background(), dest, "run-1", "PE", test.SampleRows(7, "PE"), nil)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.FailedBatches())
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "batch 2/3 failed")
	require.Len(t, summary.Results[1].Errors, 1)
}

func TestSavePartition_IsIdempotent(t *testing.T) {
	dest := test.NewMemoryDestination()
	w := newWriter(2)
	rows := test.SampleRows(5, "PE")

	_, err := w.SavePartition(context.Background(), dest, "run-1", "PE", rows, nil)
	require.NoError(t, err)
	first := dest.CountWhere(table, map[string]interface{}{"run_id": "run-1"})

	_, err = w.SavePartition(context.Background(), dest, "run-1", "PE", rows, nil)
	require.NoError(t, err)
	assert.Equal(t, first, dest.CountWhere(table, map[string]interface{}{"run_id": "run-1"}))
	assert.Equal(t, 5, first)
}

func TestSavePartition_NullCoalescesMissingColumns(t *testing.T) {
	dest := test.NewMemoryDestination()

	_, err := newWriter(10).SavePartition(context.Background(), dest, "run-1", "PE", test.SampleRows(1, "PE"), nil)

	require.NoError(t, err)
	stored := dest.Rows(table)
	require.Len(t, stored, 1)
	assert.Nil(t, stored[0]["material"])
	assert.Nil(t, stored[0]["margin"])
	assert.Equal(t, "PE", stored[0]["society"])
}

func TestSavePartition_ValidationBeforeIO(t *testing.T) {
	tests := []struct {
		name         string
		runID        string
		partitionKey string
	}{
		{"missing run id", "", "PE"},
		{"blank partition key", "run-1", "  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := test.NewMemoryDestination()

			summary, err := newWriter(3).SavePartition(context.Background(), dest, tt.runID, tt.partitionKey, test.SampleRows(2, "PE"), nil)

			assert.ErrorIs(t, err, exception.ErrValidation)
			require.NotNil(t, summary)
			assert.False(t, summary.Success)
			assert.NotEmpty(t, summary.Errors)
			assert.Empty(t, dest.Deletes)
			assert.Zero(t, dest.Commits+dest.Rollbacks)
		})
	}
}

func TestSavePartition_EmptyRowsClearsPartition(t *testing.T) {
	dest := test.NewMemoryDestination()
	dest.Seed(table, map[string]interface{}{"run_id": "run-1", "partition_key": "PE"})

	summary, err := newWriter(3).SavePartition(context.Background(), dest, "run-1", "PE", nil, nil)

	require.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Zero(t, summary.TotalBatches)
	assert.Empty(t, dest.Rows(table))
}

func TestMigrate_AllBatchesInOneTransaction(t *testing.T) {
	dest := test.NewMemoryDestination()
	rows := append(test.SampleRows(3, "PE"), test.SampleRows(2, "CL")...)

	summary, err := newWriter(2).Migrate(context.Background(), dest, "run-1", rows, nil)

	require.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Equal(t, 5, summary.RecordsTransferred)
	assert.Equal(t, 3, summary.TotalBatches)
	assert.Equal(t, 1, dest.Commits)
	assert.Equal(t, 3, dest.CountWhere(table, map[string]interface{}{"partition_key": "PE"}))
	assert.Equal(t, 2, dest.CountWhere(table, map[string]interface{}{"partition_key": "CL"}))
}

func TestMigrate_MiddleBatchFailureRollsBackEverything(t *testing.T) {
	dest := test.NewMemoryDestination()
	dest.FailInsert(2, errors.New("Error 1406: Data too long"))
	var progress []int

	summary, err := newWriter(3).Migrate(context.Background(), dest, "run-1", test.SampleRows(7, "PE"), func(b, _ int) {
		progress = append(progress, b)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrBatchWrite)
	assert.False(t, summary.Success)
	assert.Zero(t, summary.RecordsTransferred)
	assert.Equal(t, 7, summary.RecordsRead)
	assert.NotEmpty(t, summary.Errors)
	assert.Equal(t, []int{1, 2}, progress)
	assert.Zero(t, dest.CountWhere(table, map[string]interface{}{"run_id": "run-1"}))
	assert.Equal(t, 1, dest.Rollbacks)
	assert.Zero(t, dest.Commits)
}

func TestMigrate_FailureKeepsPreviousRowsOfRun(t *testing.T) {
	dest := test.NewMemoryDestination()
	dest.Seed(table, map[string]interface{}{"run_id": "run-1", "partition_key": "PE"})
	dest.FailInsert(1, errors.New("bad connection"))

	_, err := newWriter(3).Migrate(context.Background(), dest, "run-1", test.SampleRows(2, "PE"), nil)

	require.Error(t, err)
	assert.Equal(t, 1, dest.CountWhere(table, map[string]interface{}{"run_id": "run-1"}))
}

func TestMigrate_GormTransaction(t *testing.T) {
	conn, mock := test.NewSQLMockConnection(t, "destination")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `suic_records` WHERE `run_id` = ?")).
		WithArgs("run-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `suic_records` (`run_id`,`partition_key`,`society`")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	summary, err := newWriter(10).Migrate(context.Background(), conn, "run-1", test.SampleRows(2, "PE"), nil)

	require.NoError(t, err)
	assert.Equal(t, 2, summary.RecordsTransferred)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_BeginFailureIsTransactionError(t *testing.T) {
	conn, mock := test.NewSQLMockConnection(t, "destination")
	mock.ExpectBegin().WillReturnError(errors.New("connection reset"))

	summary, err := newWriter(10).Migrate(context.Background(), conn, "run-1", test.SampleRows(2, "PE"), nil)

	assert.ErrorIs(t, err, exception.ErrTransaction)
	assert.Zero(t, summary.RecordsTransferred)
}
