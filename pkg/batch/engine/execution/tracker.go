// Package execution launches external processes for a run and follows their status.
package execution

import (
	"context"
	"time"

	"github.com/google/uuid"

	port "github.com/tigerroll/suicsync/pkg/batch/core/application/port"
	"github.com/tigerroll/suicsync/pkg/batch/core/domain/model"
	"github.com/tigerroll/suicsync/pkg/batch/core/domain/repository"
	"github.com/tigerroll/suicsync/pkg/batch/core/metrics"
	"github.com/tigerroll/suicsync/pkg/batch/engine/flow"
	"github.com/tigerroll/suicsync/pkg/batch/engine/retry"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/keylock"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/logger"
)

const moduleName = "execution"

const maxSaveAttempts = 5

// Notification is an inbound status report of an external process.
type Notification struct {
	ExecutionID string                `json:"executionId"`
	Status      model.ExecutionStatus `json:"status"`
}

// Tracker persists the execution record of a run and applies its transitions.
type Tracker struct {
	repo        repository.RunRepository
	launcher    port.Launcher
	flowStore   *flow.Store
	callbackURL string
	locks       *keylock.KeyLock
	policy      retry.RetryPolicy
	recorder    metrics.MetricRecorder
	tracer      metrics.Tracer
	now         func() time.Time
	newID       func() string
}

// NewTracker creates a Tracker. flowStore may be nil; when set, report generation
// executions drive step3.
func NewTracker(repo repository.RunRepository, launcher port.Launcher, flowStore *flow.Store, callbackURL string, recorder metrics.MetricRecorder, tracer metrics.Tracer) *Tracker {
	return &Tracker{
		repo:        repo,
		launcher:    launcher,
		flowStore:   flowStore,
		callbackURL: callbackURL,
		locks:       keylock.New(),
		policy:      retry.OnOptimisticLock(maxSaveAttempts),
		recorder:    recorder,
		tracer:      tracer,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Launch persists a pending execution of type typ for runID and dispatches it.
// On dispatch success the record becomes running. On failure it becomes error and the
// dispatch error is returned together with the persisted execution id.
// A run whose previous execution is still pending or running cannot launch another one.
// Report generation additionally requires completed step1 and step2 when a flow store is attached.
// Concurrent launches for one run are serialized around the pending write only.
func (t *Tracker) Launch(ctx context.Context, runID string, typ model.ExecutionType) (string, error) {
	if runID == "" {
		return "", exception.Validation(moduleName, "run id is required")
	}
	if !typ.IsValid() {
		return "", exception.Validation(moduleName, "unknown execution type %q", typ)
	}
	if typ == model.ExecutionTypeReportGeneration && t.flowStore != nil {
		if err := t.flowStore.RequireAccess(ctx, runID, 2); err != nil {
			return "", err
		}
	}
	ctx, end := t.tracer.StartSpan(ctx, "execution.launch", map[string]interface{}{"run_id": runID, "type": string(typ)})
	defer end()

	record := model.ExecutionRecord{
		ExecutionID: t.newID(),
		Status:      model.ExecutionPending,
		Type:        typ,
	}
	unlock := t.locks.Lock(runID)
	err := retry.Do(ctx, t.policy, func(int) error {
		run, err := t.repo.FindRun(ctx, runID)
		if err != nil {
			return err
		}
		if run.Execution != nil && !run.Execution.Status.IsTerminal() {
			return exception.Validation(moduleName, "execution '%s' of run %s is still %s",
				run.Execution.ExecutionID, runID, run.Execution.Status)
		}
		record.LastUpdate = t.now().UTC()
		_, err = t.repo.SaveExecution(ctx, runID, record, run.Version)
		return err
	})
	unlock()
	if err != nil {
		t.tracer.RecordError(ctx, moduleName, err)
		return "", err
	}
	logger.Infof("ExecutionTracker: execution '%s' (%s) of run %s is pending.", record.ExecutionID, typ, runID)
	t.markStep3(ctx, runID, typ, model.StepProcessing, "")

	dispatchErr := t.launcher.Dispatch(ctx, port.LaunchRequest{
		ExecutionID: record.ExecutionID,
		RunID:       runID,
		Type:        string(typ),
		CallbackURL: t.callbackURL,
	})
	next := model.ExecutionRunning
	if dispatchErr != nil {
		next = model.ExecutionError
		t.tracer.RecordError(ctx, moduleName, dispatchErr)
		logger.Errorf("ExecutionTracker: dispatch of execution '%s' failed: %v", record.ExecutionID, dispatchErr)
	}
	// Dispatch runs unlocked. A notification may finish the record first; it stays final.
	unlock = t.locks.Lock(runID)
	updated, _, err := t.transition(ctx, runID, record.ExecutionID, next)
	unlock()
	if err != nil {
		logger.Errorf("ExecutionTracker: failed to record %s for execution '%s': %v", next, record.ExecutionID, err)
		if dispatchErr == nil {
			return record.ExecutionID, err
		}
	}
	t.recorder.RecordLaunch(ctx, string(typ), string(next))
	if dispatchErr != nil {
		t.markStep3(ctx, runID, typ, model.StepError, exception.ExtractErrorMessage(dispatchErr))
		return record.ExecutionID, dispatchErr
	}
	if updated != nil {
		logger.Infof("ExecutionTracker: execution '%s' of run %s is %s.", record.ExecutionID, runID, updated.Status)
	}
	return record.ExecutionID, nil
}

// GetStatus returns the execution record of runID, or nil when none was launched.
func (t *Tracker) GetStatus(ctx context.Context, runID string) (*model.ExecutionRecord, error) {
	run, err := t.repo.FindRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return run.Execution, nil
}

// HandleNotification applies a completed or error status to the execution it names.
// A notification for an execution that is already terminal is accepted and changes
// nothing; applied reports whether the record was updated.
func (t *Tracker) HandleNotification(ctx context.Context, n Notification) (record *model.ExecutionRecord, applied bool, err error) {
	if n.ExecutionID == "" {
		return nil, false, exception.Validation(moduleName, "execution id is required")
	}
	if n.Status != model.ExecutionCompleted && n.Status != model.ExecutionError {
		return nil, false, exception.Validation(moduleName, "notification status must be completed or error, got %q", n.Status)
	}
	run, err := t.repo.FindRunByExecutionID(ctx, n.ExecutionID)
	if err != nil {
		return nil, false, err
	}
	unlock := t.locks.Lock(run.ID)
	defer unlock()

	record, applied, err = t.transition(ctx, run.ID, n.ExecutionID, n.Status)
	if err != nil {
		return nil, false, err
	}
	if applied {
		logger.Infof("ExecutionTracker: execution '%s' of run %s is %s.", n.ExecutionID, run.ID, n.Status)
		stepStatus := model.StepCompleted
		if n.Status == model.ExecutionError {
			stepStatus = model.StepError
		}
		t.markStep3(ctx, run.ID, record.Type, stepStatus, "")
	} else {
		logger.Debugf("ExecutionTracker: duplicate notification for execution '%s' ignored (status %s).", n.ExecutionID, record.Status)
	}
	return record, applied, nil
}

// transition moves the current record of runID to next when it is still the
// execution named executionID and the transition is allowed.
func (t *Tracker) transition(ctx context.Context, runID, executionID string, next model.ExecutionStatus) (*model.ExecutionRecord, bool, error) {
	var (
		result  *model.ExecutionRecord
		applied bool
	)
	err := retry.Do(ctx, t.policy, func(int) error {
		applied = false
		run, err := t.repo.FindRun(ctx, runID)
		if err != nil {
			return err
		}
		if run.Execution == nil || run.Execution.ExecutionID != executionID {
			return exception.NotFound(moduleName, "execution '%s' is not the current execution of run %s", executionID, runID)
		}
		current := *run.Execution
		if !current.CanTransitionTo(next) {
			result = &current
			return nil
		}
		current.Status = next
		current.LastUpdate = t.now().UTC()
		if _, err := t.repo.SaveExecution(ctx, runID, current, run.Version); err != nil {
			return err
		}
		result, applied = &current, true
		return nil
	})
	return result, applied, err
}

func (t *Tracker) markStep3(ctx context.Context, runID string, typ model.ExecutionType, status model.StepStatus, message string) {
	if t.flowStore == nil || typ != model.ExecutionTypeReportGeneration {
		return
	}
	if _, err := t.flowStore.MarkStep(ctx, runID, model.Step3, status, message); err != nil {
		logger.Warnf("ExecutionTracker: failed to mark step3 of run %s as %s: %v", runID, status, err)
	}
}
