// Package writer persists transferred rows into the destination store.
package writer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/suicsync/pkg/batch/core/domain/model"
	"github.com/tigerroll/suicsync/pkg/batch/core/tx"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/logger"
)

const moduleName = "writer"

// Destination columns added in front of the business column set.
const (
	RunIDColumn        = "run_id"
	PartitionKeyColumn = "partition_key"
)

// Destination is a store that executes writes directly or inside a transaction.
type Destination interface {
	tx.TxExecutor
	TransactionManager() tx.TransactionManager
}

// BatchWriter writes rows into one destination table in fixed-size, multi-row INSERT batches.
type BatchWriter struct {
	table           string
	columnSet       model.ColumnSet
	partitionColumn string
	batchSize       int
	pause           time.Duration
}

// NewBatchWriter creates a writer for table.
// partitionColumn names the row column that carries the partition key during a migration.
func NewBatchWriter(table string, columnSet model.ColumnSet, partitionColumn string, batchSize int, pause time.Duration) *BatchWriter {
	return &BatchWriter{
		table:           table,
		columnSet:       columnSet,
		partitionColumn: partitionColumn,
		batchSize:       batchSize,
		pause:           pause,
	}
}

// BatchSize returns the configured number of rows per batch.
func (w *BatchWriter) BatchSize() int {
	return w.batchSize
}

func (w *BatchWriter) insertColumns() []string {
	cols := make([]string, 0, len(w.columnSet.Columns)+2)
	cols = append(cols, RunIDColumn, PartitionKeyColumn)
	return append(cols, w.columnSet.Columns...)
}

func (w *BatchWriter) values(runID, partitionKey string, batch []*model.Row) [][]interface{} {
	out := make([][]interface{}, len(batch))
	for i, row := range batch {
		key := partitionKey
		if key == "" {
			if v, ok := row.Get(w.partitionColumn); ok {
				key = v.Text()
			}
		}
		values := make([]interface{}, 0, len(w.columnSet.Columns)+2)
		values = append(values, runID, key)
		out[i] = append(values, row.Project(w.columnSet.Columns)...)
	}
	return out
}

func (w *BatchWriter) validate(runID string, partitionKey *string) error {
	if strings.TrimSpace(runID) == "" {
		return exception.Validation(moduleName, "run id is required")
	}
	if partitionKey != nil && strings.TrimSpace(*partitionKey) == "" {
		return exception.Validation(moduleName, "partition key is required")
	}
	if w.batchSize <= 0 {
		return exception.Validation(moduleName, "batch size must be positive, got %d", w.batchSize)
	}
	if len(w.columnSet.Columns) == 0 {
		return exception.Validation(moduleName, "column set %q is empty", w.columnSet.Version)
	}
	return nil
}

func (w *BatchWriter) pauseBetween(index, total int) {
	if w.pause > 0 && index < total-1 {
		time.Sleep(w.pause)
	}
}

// SavePartition replaces the rows of (runID, partitionKey).
// Each batch commits in its own transaction. The delete of prior rows runs in the
// transaction of the first batch and moves on to the next one if that batch fails,
// so it always precedes the first committed insert. A failed batch is recorded and
// the remaining batches are still written. Partial success is a successful outcome
// with the failures listed in the summary; an error is returned only when every batch fails.
func (w *BatchWriter) SavePartition(ctx context.Context, dest Destination, runID, partitionKey string, rows []*model.Row, progress model.ProgressFunc) (*model.TransferSummary, error) {
	start := time.Now()
	summary := &model.TransferSummary{RunID: runID, PartitionKey: partitionKey, Results: []model.BatchResult{}}
	if err := w.validate(runID, &partitionKey); err != nil {
		return w.failPartition(summary, start, err), err
	}

	batches := model.Partition(rows, w.batchSize)
	summary.TotalBatches = len(batches)
	deleteQuery := map[string]interface{}{RunIDColumn: runID, PartitionKeyColumn: partitionKey}
	columns := w.insertColumns()

	if len(batches) == 0 {
		if err := w.inTx(ctx, dest, func(t tx.Tx) error {
			_, err := t.ExecuteDelete(ctx, w.table, deleteQuery)
			return err
		}); err != nil {
			return w.failPartition(summary, start, err), err
		}
		summary.Success = true
		summary.Message = fmt.Sprintf("partition %s of run %s cleared; no rows to save", partitionKey, runID)
		summary.Duration = time.Since(start)
		return summary, nil
	}

	var errs *multierror.Error
	deletePending := true
	for i, batch := range batches {
		result := model.BatchResult{
			RunID:        runID,
			PartitionKey: partitionKey,
			BatchIndex:   i,
			TotalBatches: len(batches),
		}
		err := w.inTx(ctx, dest, func(t tx.Tx) error {
			if deletePending {
				deleted, err := t.ExecuteDelete(ctx, w.table, deleteQuery)
				if err != nil {
					return exception.NewBatchErrorf(moduleName, exception.ErrBatchWrite, "failed to delete prior rows of partition %s", partitionKey, err)
				}
				logger.Debugf("BatchWriter: deleted %d prior rows of run %s partition %s.", deleted, runID, partitionKey)
			}
			if _, err := t.ExecuteBulkInsert(ctx, w.table, columns, w.values(runID, partitionKey, batch)); err != nil {
				return exception.NewBatchErrorf(moduleName, exception.ErrBatchWrite, "batch %d/%d failed", i+1, len(batches), err)
			}
			return nil
		})
		if err != nil {
			result.Errors = []string{exception.ExtractErrorMessage(err)}
			summary.Errors = append(summary.Errors, result.Errors...)
			errs = multierror.Append(errs, err)
			logger.Warnf("BatchWriter: run %s partition %s batch %d/%d failed: %v", runID, partitionKey, i+1, len(batches), err)
		} else {
			deletePending = false
			result.Success = true
			result.Processed = len(batch)
			summary.ProcessedRecords += len(batch)
		}
		summary.Results = append(summary.Results, result)
		if progress != nil {
			progress(i+1, len(batches))
		}
		w.pauseBetween(i, len(batches))
	}

	summary.Duration = time.Since(start)
	failed := summary.FailedBatches()
	switch {
	case failed == 0:
		summary.Success = true
		summary.Message = fmt.Sprintf("saved %d rows of partition %s in %d batches", summary.ProcessedRecords, partitionKey, len(batches))
		logger.Infof("BatchWriter: %s (run %s).", summary.Message, runID)
		return summary, nil
	case failed < len(batches):
		summary.Success = true
		summary.Message = fmt.Sprintf("saved %d rows of partition %s; %d of %d batches failed", summary.ProcessedRecords, partitionKey, failed, len(batches))
		logger.Warnf("BatchWriter: %s (run %s).", summary.Message, runID)
		return summary, nil
	default:
		summary.Message = fmt.Sprintf("no rows of partition %s saved; all %d batches failed", partitionKey, len(batches))
		logger.Errorf("BatchWriter: %s (run %s).", summary.Message, runID)
		return summary, errs.ErrorOrNil()
	}
}

// Migrate replaces every row of runID inside one destination transaction.
// Any failure rolls the whole run back and reports zero transferred records.
func (w *BatchWriter) Migrate(ctx context.Context, dest Destination, runID string, rows []*model.Row, progress model.ProgressFunc) (*model.MigrationSummary, error) {
	start := time.Now()
	summary := &model.MigrationSummary{RunID: runID, RecordsRead: len(rows), Results: []model.BatchResult{}}
	if err := w.validate(runID, nil); err != nil {
		return w.failMigration(summary, start, err), err
	}

	batches := model.Partition(rows, w.batchSize)
	summary.TotalBatches = len(batches)
	columns := w.insertColumns()

	err := w.inTx(ctx, dest, func(t tx.Tx) error {
		deleted, err := t.ExecuteDelete(ctx, w.table, map[string]interface{}{RunIDColumn: runID})
		if err != nil {
			return exception.NewBatchErrorf(moduleName, exception.ErrBatchWrite, "failed to delete prior rows of run %s", runID, err)
		}
		logger.Debugf("BatchWriter: deleted %d prior rows of run %s.", deleted, runID)

		for i, batch := range batches {
			result := model.BatchResult{RunID: runID, BatchIndex: i, TotalBatches: len(batches)}
			if _, err := t.ExecuteBulkInsert(ctx, w.table, columns, w.values(runID, "", batch)); err != nil {
				batchErr := exception.NewBatchErrorf(moduleName, exception.ErrBatchWrite, "batch %d/%d failed", i+1, len(batches), err)
				result.Errors = []string{exception.ExtractErrorMessage(batchErr)}
				summary.Results = append(summary.Results, result)
				if progress != nil {
					progress(i+1, len(batches))
				}
				return batchErr
			}
			result.Success = true
			result.Processed = len(batch)
			summary.Results = append(summary.Results, result)
			if progress != nil {
				progress(i+1, len(batches))
			}
			w.pauseBetween(i, len(batches))
		}
		return nil
	})
	if err != nil {
		return w.failMigration(summary, start, err), err
	}

	summary.Success = true
	summary.RecordsTransferred = len(rows)
	summary.Message = fmt.Sprintf("migrated %d rows of run %s in %d batches", len(rows), runID, len(batches))
	summary.Duration = time.Since(start)
	logger.Infof("BatchWriter: %s.", summary.Message)
	return summary, nil
}

// inTx runs fn in a new transaction, committing on success and rolling back on any error.
func (w *BatchWriter) inTx(ctx context.Context, dest Destination, fn func(t tx.Tx) error) error {
	txManager := dest.TransactionManager()
	t, err := txManager.Begin(ctx)
	if err != nil {
		if exception.KindOf(err) == nil {
			err = exception.NewBatchError(moduleName, exception.ErrTransaction, "failed to begin transaction", err)
		}
		return err
	}
	if err := fn(t); err != nil {
		if rbErr := txManager.Rollback(t); rbErr != nil {
			logger.Errorf("BatchWriter: rollback failed: %v", rbErr)
			return multierror.Append(err, exception.NewBatchError(moduleName, exception.ErrTransaction, "rollback failed", rbErr))
		}
		return err
	}
	if err := txManager.Commit(t); err != nil {
		return exception.NewBatchError(moduleName, exception.ErrTransaction, "failed to commit transaction", err)
	}
	return nil
}

func (w *BatchWriter) failPartition(s *model.TransferSummary, start time.Time, err error) *model.TransferSummary {
	s.Success = false
	s.Message = exception.ExtractErrorMessage(err)
	s.Errors = append(s.Errors, s.Message)
	s.Duration = time.Since(start)
	return s
}

func (w *BatchWriter) failMigration(s *model.MigrationSummary, start time.Time, err error) *model.MigrationSummary {
	s.Success = false
	s.RecordsTransferred = 0
	s.Message = fmt.Sprintf("migration of run %s failed: %s", s.RunID, exception.ExtractErrorMessage(err))
	s.Errors = append(s.Errors, exception.ExtractErrorMessage(err))
	s.Duration = time.Since(start)
	logger.Errorf("BatchWriter: %s", s.Message)
	return s
}
