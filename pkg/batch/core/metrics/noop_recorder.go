package metrics

import (
	"context"
	"time"
)

// NoOpMetricRecorder is an implementation of MetricRecorder that does nothing.
// It is used when metrics are disabled or during testing.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new instance of NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

// RecordTransferStart does nothing.
func (r *NoOpMetricRecorder) RecordTransferStart(ctx context.Context, flavor string) {}

// RecordBatch does nothing.
func (r *NoOpMetricRecorder) RecordBatch(ctx context.Context, flavor string, rows int, success bool) {}

// RecordTransferEnd does nothing.
func (r *NoOpMetricRecorder) RecordTransferEnd(ctx context.Context, flavor string, transferred int, success bool, duration time.Duration) {
}

// RecordLaunch does nothing.
func (r *NoOpMetricRecorder) RecordLaunch(ctx context.Context, executionType string, status string) {}

// RecordPollTick does nothing.
func (r *NoOpMetricRecorder) RecordPollTick(ctx context.Context, outcome string) {}

// RecordPollEnd does nothing.
func (r *NoOpMetricRecorder) RecordPollEnd(ctx context.Context, outcome string, duration time.Duration) {}

// RecordDuration does nothing.
func (r *NoOpMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// --- NoOpTracer ---

// NoOpTracer is an implementation of Tracer that does nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new instance of NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

// StartSpan returns ctx unchanged.
func (t *NoOpTracer) StartSpan(ctx context.Context, name string, attributes map[string]interface{}) (context.Context, func()) {
	return ctx, func() {}
}

// RecordError does nothing.
func (t *NoOpTracer) RecordError(ctx context.Context, module string, err error) {}

// RecordEvent does nothing.
func (t *NoOpTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {}

var _ Tracer = (*NoOpTracer)(nil)
