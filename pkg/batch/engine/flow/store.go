// Package flow persists the three-step workflow state of a run.
package flow

import (
	"context"
	"time"

	"github.com/tigerroll/suicsync/pkg/batch/core/domain/model"
	"github.com/tigerroll/suicsync/pkg/batch/core/domain/repository"
	"github.com/tigerroll/suicsync/pkg/batch/engine/retry"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/keylock"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/logger"
)

const moduleName = "flow"

// maxSaveAttempts bounds the re-reads after a version conflict.
const maxSaveAttempts = 5

// View is the flow state of a run with its derived resume point and step access.
type View struct {
	RunID         string          `json:"runId"`
	State         model.FlowState `json:"state"`
	SuggestedStep int             `json:"suggestedStep"`
	CanAccess     [3]bool         `json:"canAccess"`
}

// NewView derives the resume point and access flags of state.
func NewView(runID string, state model.FlowState) View {
	v := View{RunID: runID, State: state, SuggestedStep: model.ComputeSuggestedStep(state)}
	for i := range v.CanAccess {
		v.CanAccess[i] = model.CanAccessStep(state, i)
	}
	return v
}

// Store reads and writes flow states. Writes for one run id are serialized
// in-process and guarded by the run version against other writers.
type Store struct {
	repo   repository.RunRepository
	locks  *keylock.KeyLock
	policy retry.RetryPolicy
	now    func() time.Time
}

// NewStore creates a Store over repo.
func NewStore(repo repository.RunRepository) *Store {
	return &Store{
		repo:   repo,
		locks:  keylock.New(),
		policy: retry.OnOptimisticLock(maxSaveAttempts),
		now:    time.Now,
	}
}

func validateUpdates(updates []model.StepUpdate) error {
	if len(updates) == 0 {
		return exception.Validation(moduleName, "at least one step update is required")
	}
	for _, u := range updates {
		if model.StepIndex(u.Step) < 0 {
			return exception.Validation(moduleName, "unknown step %q", u.Step)
		}
		if !u.Status.IsValid() {
			return exception.Validation(moduleName, "invalid status %q for %s", u.Status, u.Step)
		}
	}
	return nil
}

// Update merges updates into the persisted state of runID, recomputes the current
// step and persists both in one write. Unknown runs yield a NotFoundError.
func (s *Store) Update(ctx context.Context, runID string, updates ...model.StepUpdate) (model.FlowState, error) {
	if runID == "" {
		return model.FlowState{}, exception.Validation(moduleName, "run id is required")
	}
	if err := validateUpdates(updates); err != nil {
		return model.FlowState{}, err
	}
	unlock := s.locks.Lock(runID)
	defer unlock()

	var merged model.FlowState
	err := retry.Do(ctx, s.policy, func(attempt int) error {
		run, err := s.repo.FindRun(ctx, runID)
		if err != nil {
			return err
		}
		merged = model.Parse(run.FlowState).Apply(updates, s.now().UTC())
		raw, err := merged.Marshal()
		if err != nil {
			return exception.NewBatchError(moduleName, exception.ErrValidation, "failed to serialize flow state", err)
		}
		_, err = s.repo.SaveFlowState(ctx, runID, raw, model.ComputeSuggestedStep(merged), run.Version)
		return err
	})
	if err != nil {
		logger.Warnf("FlowStore: update of run %s failed: %v", runID, err)
		return model.FlowState{}, err
	}
	logger.Debugf("FlowStore: run %s updated (step1=%s step2=%s step3=%s).", runID, merged.Step1.Status, merged.Step2.Status, merged.Step3.Status)
	return merged, nil
}

// Ensure returns the parsed state of raw. When raw needs repair, the normalized
// state is persisted first; otherwise nothing is written.
func (s *Store) Ensure(ctx context.Context, runID string, raw []byte) (model.FlowState, error) {
	if !model.NeedsRepair(raw) {
		return model.Parse(raw), nil
	}
	unlock := s.locks.Lock(runID)
	defer unlock()

	var state model.FlowState
	err := retry.Do(ctx, s.policy, func(attempt int) error {
		run, err := s.repo.FindRun(ctx, runID)
		if err != nil {
			return err
		}
		state = model.Parse(run.FlowState)
		if !model.NeedsRepair(run.FlowState) {
			return nil
		}
		normalized, err := state.Marshal()
		if err != nil {
			return exception.NewBatchError(moduleName, exception.ErrValidation, "failed to serialize flow state", err)
		}
		_, err = s.repo.SaveFlowState(ctx, runID, normalized, model.ComputeSuggestedStep(state), run.Version)
		if err == nil {
			logger.Infof("FlowStore: normalized flow state of run %s.", runID)
		}
		return err
	})
	if err != nil {
		return model.FlowState{}, err
	}
	return state, nil
}

// Get loads the flow state of runID, repairing it when needed.
func (s *Store) Get(ctx context.Context, runID string) (View, error) {
	if runID == "" {
		return View{}, exception.Validation(moduleName, "run id is required")
	}
	run, err := s.repo.FindRun(ctx, runID)
	if err != nil {
		return View{}, err
	}
	state, err := s.Ensure(ctx, runID, run.FlowState)
	if err != nil {
		return View{}, err
	}
	return NewView(runID, state), nil
}

// MarkStep sets one step to status with an optional message.
func (s *Store) MarkStep(ctx context.Context, runID, step string, status model.StepStatus, message string) (model.FlowState, error) {
	u := model.StepUpdate{Step: step, Status: status}
	if message != "" {
		u.Message = &message
	}
	return s.Update(ctx, runID, u)
}

// RequireAccess fails with a ValidationError unless every step before index is completed.
func (s *Store) RequireAccess(ctx context.Context, runID string, index int) error {
	view, err := s.Get(ctx, runID)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(view.CanAccess) || !view.CanAccess[index] {
		return exception.Validation(moduleName, "step%d of run %s is not reachable yet (step1=%s step2=%s)",
			index+1, runID, view.State.Step1.Status, view.State.Step2.Status)
	}
	return nil
}
