// Package sql implements the run repository on the workflow database through the database adapter.
package sql

import (
	"context"
	"time"

	"github.com/tigerroll/suicsync/pkg/batch/adapter/database"
	"github.com/tigerroll/suicsync/pkg/batch/core/domain/model"
	"github.com/tigerroll/suicsync/pkg/batch/core/domain/repository"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
)

const moduleName = "repository"

// SQLRunRepository implements repository.RunRepository.
type SQLRunRepository struct {
	dbResolver database.DBConnectionResolver
	// dbName is the name of the workflow connection (e.g., "workflow").
	dbName string
	now    func() time.Time
}

var _ repository.RunRepository = (*SQLRunRepository)(nil)

// NewSQLRunRepository creates a repository on the named connection.
func NewSQLRunRepository(dbResolver database.DBConnectionResolver, dbName string) *SQLRunRepository {
	return &SQLRunRepository{dbResolver: dbResolver, dbName: dbName, now: time.Now}
}

func (r *SQLRunRepository) conn(ctx context.Context) (database.DBConnection, error) {
	conn, err := r.dbResolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		if exception.KindOf(err) == nil {
			err = exception.NewBatchErrorf(moduleName, exception.ErrConnectivity, "failed to resolve DB connection '%s'", r.dbName, err)
		}
		return nil, err
	}
	return conn, nil
}

func (r *SQLRunRepository) findOne(ctx context.Context, query map[string]interface{}, what string) (*model.Run, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}
	var entities []RunEntity
	if err := conn.ExecuteQuery(ctx, &entities, repository.RunsTable, query); err != nil {
		if conn.IsTableNotExistError(err) {
			return nil, exception.NotFound(moduleName, "run %s not found (table %s does not exist)", what, repository.RunsTable)
		}
		return nil, exception.NewBatchErrorf(moduleName, exception.ErrQuery, "failed to find run %s", what, err)
	}
	if len(entities) == 0 {
		return nil, exception.NotFound(moduleName, "run %s not found", what)
	}
	return toDomainRun(&entities[0]), nil
}

// FindRun implements repository.RunRepository.
func (r *SQLRunRepository) FindRun(ctx context.Context, runID string) (*model.Run, error) {
	return r.findOne(ctx, map[string]interface{}{"id": runID}, runID)
}

// FindRunByExecutionID implements repository.RunRepository.
func (r *SQLRunRepository) FindRunByExecutionID(ctx context.Context, executionID string) (*model.Run, error) {
	return r.findOne(ctx, map[string]interface{}{"execution_id": executionID}, "with execution "+executionID)
}

// CreateRun implements repository.RunRepository.
func (r *SQLRunRepository) CreateRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		return exception.Validation(moduleName, "run id is required")
	}
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	count, err := conn.Count(ctx, repository.RunsTable, map[string]interface{}{"id": run.ID})
	if err != nil {
		return exception.NewBatchErrorf(moduleName, exception.ErrQuery, "failed to check run %s", run.ID, err)
	}
	if count > 0 {
		return exception.Validation(moduleName, "run %s already exists", run.ID)
	}

	now := r.now().UTC()
	run.CreatedAt, run.UpdatedAt, run.Version = now, now, 0
	if err := conn.ExecuteCreate(ctx, repository.RunsTable, createValues(run)); err != nil {
		return exception.NewBatchErrorf(moduleName, exception.ErrQuery, "failed to create run %s", run.ID, err)
	}
	return nil
}

func (r *SQLRunRepository) update(ctx context.Context, runID string, values map[string]interface{}, expectedVersion int) (int, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return expectedVersion, err
	}
	values["version"] = expectedVersion + 1
	values["updated_at"] = r.now().UTC()

	rowsAffected, err := conn.ExecuteUpdate(ctx, repository.RunsTable, values, map[string]interface{}{"id": runID, "version": expectedVersion})
	if err != nil {
		return expectedVersion, exception.NewBatchErrorf(moduleName, exception.ErrQuery, "failed to update run %s", runID, err)
	}
	if rowsAffected == 0 {
		return expectedVersion, exception.NewOptimisticLockingFailureException(moduleName,
			"run "+runID+" was modified concurrently or does not exist", nil)
	}
	return expectedVersion + 1, nil
}

// SaveFlowState implements repository.RunRepository.
func (r *SQLRunRepository) SaveFlowState(ctx context.Context, runID string, raw []byte, currentStep int, expectedVersion int) (int, error) {
	return r.update(ctx, runID, map[string]interface{}{
		"flow_state":   string(raw),
		"current_step": currentStep,
	}, expectedVersion)
}

// SaveExecution implements repository.RunRepository.
func (r *SQLRunRepository) SaveExecution(ctx context.Context, runID string, record model.ExecutionRecord, expectedVersion int) (int, error) {
	return r.update(ctx, runID, executionValues(record), expectedVersion)
}

// Close implements repository.RunRepository. Connections belong to the resolver.
func (r *SQLRunRepository) Close() error {
	return nil
}
