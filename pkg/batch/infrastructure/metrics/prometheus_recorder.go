package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	metrics "github.com/tigerroll/suicsync/pkg/batch/core/metrics"
	logger "github.com/tigerroll/suicsync/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	// Transfer Metrics
	transferStartCounter    *prometheus.CounterVec
	transferDurationSeconds *prometheus.HistogramVec
	transferRowsCounter     *prometheus.CounterVec
	batchCounter            *prometheus.CounterVec
	batchRowsCounter        *prometheus.CounterVec

	// Execution Metrics
	launchCounter       *prometheus.CounterVec
	pollTickCounter     *prometheus.CounterVec
	pollDurationSeconds *prometheus.HistogramVec

	// Generic durations (report query / export)
	operationDurationSeconds *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder on a private registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		transferStartCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "suicsync_transfer_started_total",
			Help: "Total number of transfers started by flavor.",
		}, []string{"flavor"}),
		transferDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "suicsync_transfer_duration_seconds",
			Help:    "Duration of transfers.",
			Buckets: prometheus.DefBuckets,
		}, []string{"flavor", "success"}),
		transferRowsCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "suicsync_transfer_rows_total",
			Help: "Total rows persisted by transfers.",
		}, []string{"flavor"}),
		batchCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "suicsync_batches_total",
			Help: "Total batch inserts by flavor and outcome.",
		}, []string{"flavor", "success"}),
		batchRowsCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "suicsync_batch_rows_total",
			Help: "Total rows sent in batch inserts by flavor and outcome.",
		}, []string{"flavor", "success"}),
		launchCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "suicsync_execution_launch_total",
			Help: "Total external process launches by type and resulting status.",
		}, []string{"type", "status"}),
		pollTickCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "suicsync_poll_ticks_total",
			Help: "Total status checks by observed outcome.",
		}, []string{"outcome"}),
		pollDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "suicsync_poll_duration_seconds",
			Help:    "Duration of status polls by final outcome.",
			Buckets: []float64{1, 10, 30, 60, 300, 900, 1800, 3600},
		}, []string{"outcome"}),
		operationDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "suicsync_operation_duration_seconds",
			Help:    "Duration of named operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "status"}),
	}

	// Register all metrics with the registry.
	registry.MustRegister(r.transferStartCounter)
	registry.MustRegister(r.transferDurationSeconds)
	registry.MustRegister(r.transferRowsCounter)
	registry.MustRegister(r.batchCounter)
	registry.MustRegister(r.batchRowsCounter)
	registry.MustRegister(r.launchCounter)
	registry.MustRegister(r.pollTickCounter)
	registry.MustRegister(r.pollDurationSeconds)
	registry.MustRegister(r.operationDurationSeconds)

	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RecordTransferStart records the start of a transfer.
func (r *PrometheusRecorder) RecordTransferStart(ctx context.Context, flavor string) {
	r.transferStartCounter.WithLabelValues(flavor).Inc()
	logger.Debugf("Metrics: %s transfer started.", flavor)
}

// RecordBatch records one batch insert.
func (r *PrometheusRecorder) RecordBatch(ctx context.Context, flavor string, rows int, success bool) {
	label := strconv.FormatBool(success)
	r.batchCounter.WithLabelValues(flavor, label).Inc()
	r.batchRowsCounter.WithLabelValues(flavor, label).Add(float64(rows))
}

// RecordTransferEnd records the end of a transfer.
func (r *PrometheusRecorder) RecordTransferEnd(ctx context.Context, flavor string, transferred int, success bool, duration time.Duration) {
	r.transferDurationSeconds.WithLabelValues(flavor, strconv.FormatBool(success)).Observe(duration.Seconds())
	r.transferRowsCounter.WithLabelValues(flavor).Add(float64(transferred))
	logger.Debugf("Metrics: %s transfer ended. Rows: %d, Duration: %.3fs", flavor, transferred, duration.Seconds())
}

// RecordLaunch records one launch.
func (r *PrometheusRecorder) RecordLaunch(ctx context.Context, executionType string, status string) {
	r.launchCounter.WithLabelValues(executionType, status).Inc()
}

// RecordPollTick records one status check.
func (r *PrometheusRecorder) RecordPollTick(ctx context.Context, outcome string) {
	r.pollTickCounter.WithLabelValues(outcome).Inc()
}

// RecordPollEnd records the final outcome of a poll.
func (r *PrometheusRecorder) RecordPollEnd(ctx context.Context, outcome string, duration time.Duration) {
	r.pollDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordDuration records the execution time of a named operation. Only the "status" tag is used as a label.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.operationDurationSeconds.WithLabelValues(name, tags["status"]).Observe(duration.Seconds())
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
