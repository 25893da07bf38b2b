// Package transfer moves SUIC rows from the source store into the destination store.
package transfer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tigerroll/suicsync/pkg/batch/adapter/database"
	"github.com/tigerroll/suicsync/pkg/batch/component/step/reader"
	"github.com/tigerroll/suicsync/pkg/batch/component/step/writer"
	config "github.com/tigerroll/suicsync/pkg/batch/core/config"
	"github.com/tigerroll/suicsync/pkg/batch/core/domain/model"
	"github.com/tigerroll/suicsync/pkg/batch/core/metrics"
	"github.com/tigerroll/suicsync/pkg/batch/engine/flow"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/keylock"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/logger"
)

const moduleName = "transfer"

// Source produces every row of one read.
type Source interface {
	ReadAll(ctx context.Context) ([]*model.Row, error)
}

// Orchestrator reads the source, writes the destination in batches and reports one summary.
// Transfers of the same run id are serialized.
type Orchestrator struct {
	cfg       config.TransferConfig
	writer    *writer.BatchWriter
	flowStore *flow.Store
	locks     *keylock.KeyLock
	recorder  metrics.MetricRecorder
	tracer    metrics.Tracer

	newSource   func() Source
	destination func(ctx context.Context) (writer.Destination, error)
}

// NewOrchestrator creates an orchestrator on the connections named in cfg.
// flowStore may be nil, in which case step2 is not tracked.
func NewOrchestrator(
	dbResolver database.DBConnectionResolver,
	cfg config.TransferConfig,
	flowStore *flow.Store,
	recorder metrics.MetricRecorder,
	tracer metrics.Tracer,
) *Orchestrator {
	columnSet := model.ColumnSet{Version: cfg.ColumnSetVersion, Columns: cfg.Columns}
	if len(columnSet.Columns) == 0 {
		columnSet = model.DefaultColumnSet
	}
	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = 500
	}
	o := &Orchestrator{
		cfg:       cfg,
		writer:    writer.NewBatchWriter(cfg.DestinationTable, columnSet, cfg.PartitionColumn, batchSize, cfg.BatchPauseDuration()),
		flowStore: flowStore,
		locks:     keylock.New(),
		recorder:  recorder,
		tracer:    tracer,
	}
	o.newSource = func() Source {
		return reader.NewTableReader(dbResolver, cfg.SourceDBRef, cfg.SourceTable, cfg.ConnectTimeoutDuration())
	}
	o.destination = func(ctx context.Context) (writer.Destination, error) {
		connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeoutDuration())
		defer cancel()
		conn, err := dbResolver.ResolveDBConnection(connectCtx, cfg.DestinationDBRef)
		if err != nil {
			if exception.KindOf(err) == nil {
				err = exception.NewBatchErrorf(moduleName, exception.ErrConnectivity, "cannot connect to destination '%s'", cfg.DestinationDBRef, err)
			}
			return nil, err
		}
		return conn, nil
	}
	return o
}

// requireStep2 rejects a transfer while step1 of the run is not completed.
func (o *Orchestrator) requireStep2(ctx context.Context, runID string) error {
	if o.flowStore == nil {
		return nil
	}
	return o.flowStore.RequireAccess(ctx, runID, 1)
}

func (o *Orchestrator) markStep2(ctx context.Context, runID string, status model.StepStatus, message string) {
	if o.flowStore == nil {
		return
	}
	if _, err := o.flowStore.MarkStep(ctx, runID, model.Step2, status, message); err != nil {
		logger.Warnf("Transfer: failed to mark step2 of run %s as %s: %v", runID, status, err)
	}
}

func (o *Orchestrator) recordBatches(ctx context.Context, flavor string, results []model.BatchResult, batchSize int, totalRows int) {
	for _, r := range results {
		rows := totalRows - r.BatchIndex*batchSize
		if rows > batchSize {
			rows = batchSize
		}
		o.recorder.RecordBatch(ctx, flavor, rows, r.Success)
	}
}

// SavePartition replaces the destination rows of (runID, partitionKey) with rows.
// Failed batches are reported in the summary; the remaining batches are still written.
// When a flow store is attached, step1 of the run must be completed.
func (o *Orchestrator) SavePartition(ctx context.Context, runID, partitionKey string, rows []*model.Row, progress model.ProgressFunc) (*model.TransferSummary, error) {
	if err := validateKeys(runID, &partitionKey); err != nil {
		return failedPartition(runID, partitionKey, err), err
	}
	unlock := o.locks.Lock(runID)
	defer unlock()
	if err := o.requireStep2(ctx, runID); err != nil {
		return failedPartition(runID, partitionKey, err), err
	}
	return o.savePartition(ctx, runID, partitionKey, rows, progress)
}

// SaveFromSource reads the source table and saves the rows whose partition column equals partitionKey.
func (o *Orchestrator) SaveFromSource(ctx context.Context, runID, partitionKey string, progress model.ProgressFunc) (*model.TransferSummary, error) {
	if err := validateKeys(runID, &partitionKey); err != nil {
		return failedPartition(runID, partitionKey, err), err
	}
	unlock := o.locks.Lock(runID)
	defer unlock()
	if err := o.requireStep2(ctx, runID); err != nil {
		return failedPartition(runID, partitionKey, err), err
	}

	all, err := o.newSource().ReadAll(ctx)
	if err != nil {
		o.markStep2(ctx, runID, model.StepError, exception.ExtractErrorMessage(err))
		return failedPartition(runID, partitionKey, err), err
	}
	rows := make([]*model.Row, 0, len(all))
	for _, row := range all {
		if v, ok := row.Get(o.cfg.PartitionColumn); ok && v.Text() == partitionKey {
			rows = append(rows, row)
		}
	}
	logger.Infof("Transfer: %d of %d source rows belong to partition %s.", len(rows), len(all), partitionKey)
	return o.savePartition(ctx, runID, partitionKey, rows, progress)
}

func (o *Orchestrator) savePartition(ctx context.Context, runID, partitionKey string, rows []*model.Row, progress model.ProgressFunc) (*model.TransferSummary, error) {
	start := time.Now()
	ctx, end := o.tracer.StartSpan(ctx, "transfer.save_partition", map[string]interface{}{
		"run_id": runID, "partition_key": partitionKey, "rows": len(rows),
	})
	defer end()
	o.recorder.RecordTransferStart(ctx, metrics.FlavorPartition)
	o.markStep2(ctx, runID, model.StepProcessing, "")

	dest, err := o.destination(ctx)
	if err != nil {
		o.tracer.RecordError(ctx, moduleName, err)
		o.recorder.RecordTransferEnd(ctx, metrics.FlavorPartition, 0, false, time.Since(start))
		o.markStep2(ctx, runID, model.StepError, exception.ExtractErrorMessage(err))
		return failedPartition(runID, partitionKey, err), err
	}

	summary, err := o.writer.SavePartition(ctx, dest, runID, partitionKey, rows, o.progress(ctx, progress))
	o.recordBatches(ctx, metrics.FlavorPartition, summary.Results, o.writer.BatchSize(), len(rows))
	o.recorder.RecordTransferEnd(ctx, metrics.FlavorPartition, summary.ProcessedRecords, summary.Success, time.Since(start))
	if err != nil {
		o.tracer.RecordError(ctx, moduleName, err)
		o.markStep2(ctx, runID, model.StepError, summary.Message)
		return summary, err
	}
	o.markStep2(ctx, runID, model.StepCompleted, summary.Message)
	return summary, nil
}

// Migrate reads the whole source table and replaces every destination row of runID
// in one transaction. A failure leaves the destination unchanged and reports zero
// transferred records. An empty source is a successful no-op.
func (o *Orchestrator) Migrate(ctx context.Context, runID string, progress model.ProgressFunc) (*model.MigrationSummary, error) {
	if err := validateKeys(runID, nil); err != nil {
		return failedMigration(runID, 0, err), err
	}
	unlock := o.locks.Lock(runID)
	defer unlock()
	if err := o.requireStep2(ctx, runID); err != nil {
		return failedMigration(runID, 0, err), err
	}

	start := time.Now()
	ctx, end := o.tracer.StartSpan(ctx, "transfer.migrate", map[string]interface{}{"run_id": runID})
	defer end()
	o.recorder.RecordTransferStart(ctx, metrics.FlavorMigration)
	o.markStep2(ctx, runID, model.StepProcessing, "")

	fail := func(read int, err error) (*model.MigrationSummary, error) {
		o.tracer.RecordError(ctx, moduleName, err)
		o.recorder.RecordTransferEnd(ctx, metrics.FlavorMigration, 0, false, time.Since(start))
		summary := failedMigration(runID, read, err)
		summary.Duration = time.Since(start)
		o.markStep2(ctx, runID, model.StepError, summary.Message)
		return summary, err
	}

	rows, err := o.newSource().ReadAll(ctx)
	if err != nil {
		return fail(0, err)
	}
	o.tracer.RecordEvent(ctx, "source_read", map[string]interface{}{"rows": len(rows)})
	if len(rows) == 0 {
		summary := &model.MigrationSummary{
			RunID:   runID,
			Success: true,
			Message: fmt.Sprintf("source %s is empty; nothing to migrate for run %s", o.cfg.SourceTable, runID),
			Results: []model.BatchResult{},
		}
		summary.Duration = time.Since(start)
		logger.Infof("Transfer: %s.", summary.Message)
		o.recorder.RecordTransferEnd(ctx, metrics.FlavorMigration, 0, true, summary.Duration)
		o.markStep2(ctx, runID, model.StepCompleted, summary.Message)
		return summary, nil
	}

	dest, err := o.destination(ctx)
	if err != nil {
		return fail(len(rows), err)
	}

	summary, err := o.writer.Migrate(ctx, dest, runID, rows, o.progress(ctx, progress))
	o.recordBatches(ctx, metrics.FlavorMigration, summary.Results, o.writer.BatchSize(), len(rows))
	summary.Duration = time.Since(start)
	o.recorder.RecordTransferEnd(ctx, metrics.FlavorMigration, summary.RecordsTransferred, summary.Success, summary.Duration)
	if err != nil {
		o.tracer.RecordError(ctx, moduleName, err)
		o.markStep2(ctx, runID, model.StepError, summary.Message)
		return summary, err
	}
	o.markStep2(ctx, runID, model.StepCompleted, summary.Message)
	return summary, nil
}

func (o *Orchestrator) progress(ctx context.Context, progress model.ProgressFunc) model.ProgressFunc {
	return func(batch, total int) {
		o.tracer.RecordEvent(ctx, "batch", map[string]interface{}{"batch": batch, "total": total})
		logger.Debugf("Transfer: batch %d/%d done.", batch, total)
		if progress != nil {
			progress(batch, total)
		}
	}
}

func validateKeys(runID string, partitionKey *string) error {
	if strings.TrimSpace(runID) == "" {
		return exception.Validation(moduleName, "run id is required")
	}
	if partitionKey != nil && strings.TrimSpace(*partitionKey) == "" {
		return exception.Validation(moduleName, "partition key is required")
	}
	return nil
}

func failedPartition(runID, partitionKey string, err error) *model.TransferSummary {
	msg := exception.ExtractErrorMessage(err)
	return &model.TransferSummary{
		RunID:        runID,
		PartitionKey: partitionKey,
		Message:      msg,
		Results:      []model.BatchResult{},
		Errors:       []string{msg},
	}
}

func failedMigration(runID string, read int, err error) *model.MigrationSummary {
	msg := exception.ExtractErrorMessage(err)
	return &model.MigrationSummary{
		RunID:       runID,
		Message:     fmt.Sprintf("migration of run %s failed: %s", runID, msg),
		RecordsRead: read,
		Results:     []model.BatchResult{},
		Errors:      []string{msg},
	}
}
