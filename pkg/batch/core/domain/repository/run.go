// Package repository defines persistence ports for logical runs.
package repository

import (
	"context"

	"github.com/tigerroll/suicsync/pkg/batch/core/domain/model"
)

// RunsTable is the workflow table holding runs, flow state and execution metadata.
const RunsTable = "suic_runs"

// RunRepository persists logical runs.
// Writes are guarded by the run version: a write whose expected version no longer
// matches fails with exception.ErrOptimisticLockingFailure and changes nothing.
type RunRepository interface {
	// CreateRun inserts a new run with version 0. An existing id is a ValidationError.
	CreateRun(ctx context.Context, run *model.Run) error
	// FindRun returns the run with the given id or a NotFoundError.
	FindRun(ctx context.Context, runID string) (*model.Run, error)
	// FindRunByExecutionID returns the run owning executionID or a NotFoundError.
	FindRunByExecutionID(ctx context.Context, executionID string) (*model.Run, error)
	// SaveFlowState writes the flow state blob and current step, returning the new version.
	SaveFlowState(ctx context.Context, runID string, raw []byte, currentStep int, expectedVersion int) (int, error)
	// SaveExecution writes the execution metadata, returning the new version.
	SaveExecution(ctx context.Context, runID string, record model.ExecutionRecord, expectedVersion int) (int, error)
	// Close releases resources used by the repository.
	Close() error
}
