package metrics

import (
	"context"
	"net/http"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"

	config "github.com/tigerroll/suicsync/pkg/batch/core/config"
	metrics "github.com/tigerroll/suicsync/pkg/batch/core/metrics"
	logger "github.com/tigerroll/suicsync/pkg/batch/support/util/logger"
)

// Observability bundles the recorder, tracer and metrics endpoint selected by configuration.
type Observability struct {
	Recorder metrics.MetricRecorder
	Tracer   metrics.Tracer
	// Handler serves the metrics endpoint. It is nil unless the Prometheus backend is selected.
	Handler  http.Handler
	shutdown []func(context.Context) error
}

// NewObservability builds the backends named in cfg.
// Metrics: "prometheus" (default), "otel" or "none". Tracing: "otlp" or "none" (default).
func NewObservability(ctx context.Context, cfg config.ObservabilityConfig) (*Observability, error) {
	o := &Observability{
		Recorder: metrics.NewNoOpMetricRecorder(),
		Tracer:   metrics.NewNoOpTracer(),
	}

	switch strings.ToLower(cfg.Metrics) {
	case "", "prometheus":
		rec := NewPrometheusRecorder()
		o.Recorder, o.Handler = rec, rec.Handler()
	case "otel":
		mp, err := NewMeterProvider(ctx, cfg)
		if err != nil {
			return nil, err
		}
		otel.SetMeterProvider(mp)
		o.shutdown = append(o.shutdown, mp.Shutdown)
		rec, err := NewOpenTelemetryRecorder(mp)
		if err != nil {
			_ = o.Shutdown(ctx)
			return nil, err
		}
		o.Recorder = rec
	case "none":
	default:
		logger.Warnf("Unknown metrics backend '%s'; metrics are disabled.", cfg.Metrics)
	}

	if strings.EqualFold(cfg.Tracing, "otlp") {
		tp, err := NewTracerProvider(ctx, cfg)
		if err != nil {
			_ = o.Shutdown(ctx)
			return nil, err
		}
		otel.SetTracerProvider(tp)
		o.shutdown = append(o.shutdown, tp.Shutdown)
		o.Tracer = NewOpenTelemetryTracer(tp)
	}
	logger.Debugf("Observability: metrics=%s tracing=%s.", cfg.Metrics, cfg.Tracing)
	return o, nil
}

// Shutdown flushes and stops the SDK providers.
func (o *Observability) Shutdown(ctx context.Context) error {
	var result error
	for i := len(o.shutdown) - 1; i >= 0; i-- {
		if err := o.shutdown[i](ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	o.shutdown = nil
	return result
}

func provideObservability(lc fx.Lifecycle, cfg *config.Config) (*Observability, error) {
	o, err := NewObservability(context.Background(), cfg.App.Observability)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: o.Shutdown})
	return o, nil
}

// Module is an Fx module that provides the configured MetricRecorder and Tracer.
var Module = fx.Options(
	fx.Provide(provideObservability),
	fx.Provide(
		func(o *Observability) metrics.MetricRecorder { return o.Recorder },
		func(o *Observability) metrics.Tracer { return o.Tracer },
	),
)
