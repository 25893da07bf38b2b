package report

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/suicsync/pkg/batch/core/domain/model"
	"github.com/tigerroll/suicsync/pkg/batch/core/metrics"
	"github.com/tigerroll/suicsync/pkg/batch/engine/flow"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/logger"
)

// Writer persists an aggregated report and returns where it was written.
type Writer interface {
	Write(ctx context.Context, report *model.ReportResult) (string, error)
}

// ReportQuerier is the read side of an export.
type ReportQuerier interface {
	Query(ctx context.Context, runID string, filter model.ReportFilter) (*model.ReportResult, error)
}

// Export is the result of one export.
type Export struct {
	RunID    string
	Location string
	Groups   int
	Rows     int64
}

// Exporter writes the full report of a run and tracks it as step3.
type Exporter struct {
	querier   ReportQuerier
	writer    Writer
	flowStore *flow.Store
	recorder  metrics.MetricRecorder
	tracer    metrics.Tracer
}

// NewExporter creates an Exporter. flowStore may be nil.
func NewExporter(querier ReportQuerier, writer Writer, flowStore *flow.Store, recorder metrics.MetricRecorder, tracer metrics.Tracer) *Exporter {
	return &Exporter{querier: querier, writer: writer, flowStore: flowStore, recorder: recorder, tracer: tracer}
}

// Export aggregates every group of runID and writes them.
// A run without rows is an error; an empty file is never written.
// When a flow store is attached, step1 and step2 of the run must be completed.
func (e *Exporter) Export(ctx context.Context, runID string) (*Export, error) {
	if runID == "" {
		return nil, exception.Validation(moduleName, "run id is required")
	}
	if e.flowStore != nil {
		if err := e.flowStore.RequireAccess(ctx, runID, 2); err != nil {
			return nil, err
		}
	}
	ctx, end := e.tracer.StartSpan(ctx, "report.export", map[string]interface{}{"run_id": runID})
	defer end()
	start := time.Now()

	e.markStep3(ctx, runID, model.StepProcessing, "")
	result, err := e.export(ctx, runID)
	status := "success"
	if err != nil {
		status = "failure"
		e.tracer.RecordError(ctx, moduleName, err)
		e.markStep3(ctx, runID, model.StepError, exception.ExtractErrorMessage(err))
		logger.Errorf("Report: export of run %s failed: %v", runID, err)
	} else {
		e.markStep3(ctx, runID, model.StepCompleted, fmt.Sprintf("%d groups written to %s", result.Groups, result.Location))
	}
	e.recorder.RecordDuration(ctx, "report.export", time.Since(start), map[string]string{"status": status})
	return result, err
}

func (e *Exporter) export(ctx context.Context, runID string) (*Export, error) {
	report, err := e.querier.Query(ctx, runID, model.ReportFilter{})
	if err != nil {
		return nil, err
	}
	if report.TotalRows == 0 {
		return nil, exception.NotFound(moduleName, "run %s has no transferred rows", runID)
	}
	location, err := e.writer.Write(ctx, report)
	if err != nil {
		return nil, err
	}
	logger.Infof("Report: run %s exported (%d groups, %d rows) to %s.", runID, len(report.Groups), report.TotalRows, location)
	return &Export{RunID: runID, Location: location, Groups: len(report.Groups), Rows: report.TotalRows}, nil
}

func (e *Exporter) markStep3(ctx context.Context, runID string, status model.StepStatus, message string) {
	if e.flowStore == nil {
		return
	}
	if _, err := e.flowStore.MarkStep(ctx, runID, model.Step3, status, message); err != nil {
		logger.Warnf("Report: failed to mark step3 of run %s as %s: %v", runID, status, err)
	}
}
