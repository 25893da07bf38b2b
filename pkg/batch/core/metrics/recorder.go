package metrics

import (
	"context"
	"time"
)

// Transfer flavors used as metric labels.
const (
	FlavorPartition = "partition"
	FlavorMigration = "migration"
)

// MetricRecorder is an abstract interface for recording metrics of transfers,
// launches and status polling.
//
// This facilitates integration with different metrics backends (e.g., Prometheus, OpenTelemetry Metrics).
type MetricRecorder interface {
	// RecordTransferStart records the start of a transfer.
	//
	// flavor: FlavorPartition or FlavorMigration.
	RecordTransferStart(ctx context.Context, flavor string)

	// RecordBatch records the outcome of one batch insert.
	//
	// rows: The number of rows in the batch.
	// success: Whether the batch insert succeeded.
	RecordBatch(ctx context.Context, flavor string, rows int, success bool)

	// RecordTransferEnd records the end of a transfer.
	//
	// transferred: The number of rows persisted.
	// duration: The wall time of the whole transfer.
	RecordTransferEnd(ctx context.Context, flavor string, transferred int, success bool, duration time.Duration)

	// RecordLaunch records one launch of an external process.
	//
	// executionType: The launched execution type.
	// status: The record status after dispatch ("running" or "error").
	RecordLaunch(ctx context.Context, executionType string, status string)

	// RecordPollTick records one status check of the poller.
	//
	// outcome: The observed status, or "read_error".
	RecordPollTick(ctx context.Context, outcome string)

	// RecordPollEnd records the final outcome of a poll ("completed", "error", "timed_out", "stopped").
	RecordPollEnd(ctx context.Context, outcome string, duration time.Duration)

	// RecordDuration records the execution time of a specific operation.
	//
	// name: The name of the duration to record (e.g., "report_query", "report_export").
	// tags: Additional tags associated with the duration.
	//       Example: `{"status": "success"}`
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}
