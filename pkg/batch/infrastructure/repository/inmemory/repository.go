// Package inmemory provides an in-memory implementation of the RunRepository interface.
// It is used when no workflow database is configured and in tests.
package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/tigerroll/suicsync/pkg/batch/core/domain/model"
	"github.com/tigerroll/suicsync/pkg/batch/core/domain/repository"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
)

const moduleName = "repository"

// InMemoryRunRepository holds runs in a map guarded by a mutex.
type InMemoryRunRepository struct {
	runs map[string]*model.Run
	mu   sync.RWMutex
	now  func() time.Time
}

var _ repository.RunRepository = (*InMemoryRunRepository)(nil)

// NewInMemoryRunRepository creates an empty repository.
func NewInMemoryRunRepository() *InMemoryRunRepository {
	return &InMemoryRunRepository{
		runs: make(map[string]*model.Run),
		now:  time.Now,
	}
}

// copyRun returns a deep copy so callers never alias stored state.
func copyRun(run *model.Run) *model.Run {
	c := *run
	if run.FlowState != nil {
		c.FlowState = append([]byte(nil), run.FlowState...)
	}
	if run.Execution != nil {
		rec := *run.Execution
		c.Execution = &rec
	}
	return &c
}

// CreateRun implements repository.RunRepository.
func (r *InMemoryRunRepository) CreateRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		return exception.Validation(moduleName, "run id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.ID]; exists {
		return exception.Validation(moduleName, "run %s already exists", run.ID)
	}
	now := r.now().UTC()
	run.CreatedAt, run.UpdatedAt, run.Version = now, now, 0
	r.runs[run.ID] = copyRun(run)
	return nil
}

// FindRun implements repository.RunRepository.
func (r *InMemoryRunRepository) FindRun(ctx context.Context, runID string) (*model.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[runID]
	if !ok {
		return nil, exception.NotFound(moduleName, "run %s not found", runID)
	}
	return copyRun(run), nil
}

// FindRunByExecutionID implements repository.RunRepository.
func (r *InMemoryRunRepository) FindRunByExecutionID(ctx context.Context, executionID string) (*model.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, run := range r.runs {
		if run.Execution != nil && run.Execution.ExecutionID == executionID {
			return copyRun(run), nil
		}
	}
	return nil, exception.NotFound(moduleName, "run with execution %s not found", executionID)
}

func (r *InMemoryRunRepository) update(runID string, expectedVersion int, apply func(run *model.Run)) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok || run.Version != expectedVersion {
		return expectedVersion, exception.NewOptimisticLockingFailureException(moduleName,
			"run "+runID+" was modified concurrently or does not exist", nil)
	}
	apply(run)
	run.Version = expectedVersion + 1
	run.UpdatedAt = r.now().UTC()
	return run.Version, nil
}

// SaveFlowState implements repository.RunRepository.
func (r *InMemoryRunRepository) SaveFlowState(ctx context.Context, runID string, raw []byte, currentStep int, expectedVersion int) (int, error) {
	return r.update(runID, expectedVersion, func(run *model.Run) {
		run.FlowState = append([]byte(nil), raw...)
		run.CurrentStep = currentStep
	})
}

// SaveExecution implements repository.RunRepository.
func (r *InMemoryRunRepository) SaveExecution(ctx context.Context, runID string, record model.ExecutionRecord, expectedVersion int) (int, error) {
	return r.update(runID, expectedVersion, func(run *model.Run) {
		rec := record
		run.Execution = &rec
	})
}

// Close releases resources used by the repository.
// As an in-memory repository, it holds no external resources, so this method always returns nil.
func (r *InMemoryRunRepository) Close() error {
	return nil
}
