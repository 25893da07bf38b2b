package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	metrics "github.com/tigerroll/suicsync/pkg/batch/core/metrics"
)

// instrumentationName identifies the meter and tracer of this module.
const instrumentationName = "github.com/tigerroll/suicsync"

// OpenTelemetryRecorder is an implementation of metrics.MetricRecorder using OpenTelemetry metrics.
type OpenTelemetryRecorder struct {
	transferStarts    otelmetric.Int64Counter
	transferDuration  otelmetric.Float64Histogram
	transferRows      otelmetric.Int64Counter
	batches           otelmetric.Int64Counter
	batchRows         otelmetric.Int64Counter
	launches          otelmetric.Int64Counter
	pollTicks         otelmetric.Int64Counter
	pollDuration      otelmetric.Float64Histogram
	operationDuration otelmetric.Float64Histogram
}

// NewOpenTelemetryRecorder creates the instruments on provider.
func NewOpenTelemetryRecorder(provider otelmetric.MeterProvider) (*OpenTelemetryRecorder, error) {
	meter := provider.Meter(instrumentationName)
	r := &OpenTelemetryRecorder{}
	var err error

	counters := []struct {
		target *otelmetric.Int64Counter
		name   string
		desc   string
	}{
		{&r.transferStarts, "suicsync.transfer.started", "Transfers started by flavor."},
		{&r.transferRows, "suicsync.transfer.rows", "Rows persisted by transfers."},
		{&r.batches, "suicsync.batches", "Batch inserts by flavor and outcome."},
		{&r.batchRows, "suicsync.batch.rows", "Rows sent in batch inserts."},
		{&r.launches, "suicsync.execution.launches", "External process launches."},
		{&r.pollTicks, "suicsync.poll.ticks", "Status checks by outcome."},
	}
	for _, c := range counters {
		counter, cErr := meter.Int64Counter(c.name, otelmetric.WithDescription(c.desc))
		if cErr != nil {
			return nil, cErr
		}
		*c.target = counter
	}
	if r.transferDuration, err = meter.Float64Histogram("suicsync.transfer.duration", otelmetric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.pollDuration, err = meter.Float64Histogram("suicsync.poll.duration", otelmetric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.operationDuration, err = meter.Float64Histogram("suicsync.operation.duration", otelmetric.WithUnit("s")); err != nil {
		return nil, err
	}
	return r, nil
}

// RecordTransferStart records the start of a transfer.
func (r *OpenTelemetryRecorder) RecordTransferStart(ctx context.Context, flavor string) {
	r.transferStarts.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("flavor", flavor)))
}

// RecordBatch records one batch insert.
func (r *OpenTelemetryRecorder) RecordBatch(ctx context.Context, flavor string, rows int, success bool) {
	attrs := otelmetric.WithAttributes(attribute.String("flavor", flavor), attribute.Bool("success", success))
	r.batches.Add(ctx, 1, attrs)
	r.batchRows.Add(ctx, int64(rows), attrs)
}

// RecordTransferEnd records the end of a transfer.
func (r *OpenTelemetryRecorder) RecordTransferEnd(ctx context.Context, flavor string, transferred int, success bool, duration time.Duration) {
	r.transferDuration.Record(ctx, duration.Seconds(),
		otelmetric.WithAttributes(attribute.String("flavor", flavor), attribute.Bool("success", success)))
	r.transferRows.Add(ctx, int64(transferred), otelmetric.WithAttributes(attribute.String("flavor", flavor)))
}

// RecordLaunch records one launch.
func (r *OpenTelemetryRecorder) RecordLaunch(ctx context.Context, executionType string, status string) {
	r.launches.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("type", executionType), attribute.String("status", status)))
}

// RecordPollTick records one status check.
func (r *OpenTelemetryRecorder) RecordPollTick(ctx context.Context, outcome string) {
	r.pollTicks.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordPollEnd records the final outcome of a poll.
func (r *OpenTelemetryRecorder) RecordPollEnd(ctx context.Context, outcome string, duration time.Duration) {
	r.pollDuration.Record(ctx, duration.Seconds(), otelmetric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordDuration records the execution time of a named operation with all tags as attributes.
func (r *OpenTelemetryRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(tags)+1)
	attrs = append(attrs, attribute.String("operation", name))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.operationDuration.Record(ctx, duration.Seconds(), otelmetric.WithAttributes(attrs...))
}

var _ metrics.MetricRecorder = (*OpenTelemetryRecorder)(nil)
