package sql_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/suicsync/pkg/batch/core/domain/model"
	sqlrepo "github.com/tigerroll/suicsync/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
	"github.com/tigerroll/suicsync/pkg/batch/test"
)

var runColumns = []string{
	"id", "flow_state", "current_step", "execution_id", "execution_status",
	"execution_type", "execution_last_update", "version", "created_at", "updated_at",
}

func newRepository(t *testing.T) (*sqlrepo.SQLRunRepository, sqlmock.Sqlmock) {
	conn, sqlMock := test.NewSQLMockConnection(t, "workflow")
	resolver := new(test.MockDBConnectionResolver)
	resolver.On("ResolveDBConnection", mock.Anything, "workflow").Return(conn, nil)
	return sqlrepo.NewSQLRunRepository(resolver, "workflow"), sqlMock
}

func TestFindRun_MapsExecution(t *testing.T) {
	repo, sqlMock := newRepository(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	sqlMock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `suic_runs` WHERE `id` = ?")).
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows(runColumns).AddRow(
			"run-1", `{"step1":{"status":"completed"}}`, 1, "exec-9", "running",
			"suic_load", now, 4, now, now))

	run, err := repo.FindRun(context.Background(), "run-1")

	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, 1, run.CurrentStep)
	assert.Equal(t, 4, run.Version)
	assert.JSONEq(t, `{"step1":{"status":"completed"}}`, string(run.FlowState))
	require.NotNil(t, run.Execution)
	assert.Equal(t, "exec-9", run.Execution.ExecutionID)
	assert.Equal(t, model.ExecutionRunning, run.Execution.Status)
	assert.Equal(t, model.ExecutionTypeSuicLoad, run.Execution.Type)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestFindRun_NotFound(t *testing.T) {
	repo, sqlMock := newRepository(t)

	sqlMock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `suic_runs` WHERE `id` = ?")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(runColumns))

	_, err := repo.FindRun(context.Background(), "missing")

	assert.ErrorIs(t, err, exception.ErrNotFound)
}

func TestFindRun_MissingTableIsNotFound(t *testing.T) {
	repo, sqlMock := newRepository(t)

	sqlMock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `suic_runs`")).
		WillReturnError(errors.New("Error 1146 (42S02): Table 'suic.suic_runs' doesn't exist"))

	_, err := repo.FindRun(context.Background(), "run-1")

	assert.ErrorIs(t, err, exception.ErrNotFound)
}

func TestFindRunByExecutionID_WithoutFlowState(t *testing.T) {
	repo, sqlMock := newRepository(t)
	now := time.Now().UTC()

	sqlMock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `suic_runs` WHERE `execution_id` = ?")).
		WithArgs("exec-1").
		WillReturnRows(sqlmock.NewRows(runColumns).AddRow(
			"run-2", nil, 0, "exec-1", "pending", "report_generation", now, 1, now, now))

	run, err := repo.FindRunByExecutionID(context.Background(), "exec-1")

	require.NoError(t, err)
	assert.Equal(t, "run-2", run.ID)
	assert.Nil(t, run.FlowState)
	assert.Equal(t, model.ExecutionPending, run.Execution.Status)
}

func TestCreateRun_RejectsDuplicate(t *testing.T) {
	repo, sqlMock := newRepository(t)

	sqlMock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM `suic_runs` WHERE `id` = ?")).
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(1))

	err := repo.CreateRun(context.Background(), &model.Run{ID: "run-1"})

	assert.ErrorIs(t, err, exception.ErrValidation)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestCreateRun_InsertsVersionZero(t *testing.T) {
	repo, sqlMock := newRepository(t)

	sqlMock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM `suic_runs` WHERE `id` = ?")).
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(0))
	sqlMock.ExpectExec(regexp.QuoteMeta("INSERT INTO `suic_runs`")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	run := &model.Run{ID: "run-1", Version: 7}
	require.NoError(t, repo.CreateRun(context.Background(), run))

	assert.Equal(t, 0, run.Version)
	assert.False(t, run.CreatedAt.IsZero())
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestSaveFlowState_IncrementsVersion(t *testing.T) {
	repo, sqlMock := newRepository(t)

	sqlMock.ExpectExec(regexp.QuoteMeta("UPDATE `suic_runs` SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	version, err := repo.SaveFlowState(context.Background(), "run-1", []byte(`{}`), 0, 3)

	require.NoError(t, err)
	assert.Equal(t, 4, version)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestSaveExecution_StaleVersion(t *testing.T) {
	repo, sqlMock := newRepository(t)

	sqlMock.ExpectExec(regexp.QuoteMeta("UPDATE `suic_runs` SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	version, err := repo.SaveExecution(context.Background(), "run-1", model.ExecutionRecord{
		ExecutionID: "exec-1", Status: model.ExecutionRunning, Type: model.ExecutionTypeSuicLoad, LastUpdate: time.Now(),
	}, 2)

	assert.ErrorIs(t, err, exception.ErrOptimisticLockingFailure)
	assert.Equal(t, 2, version)
}

func TestRepository_ResolveFailureIsConnectivity(t *testing.T) {
	resolver := new(test.MockDBConnectionResolver)
	resolver.On("ResolveDBConnection", mock.Anything, "workflow").Return(nil, errors.New("dial tcp: refused"))
	repo := sqlrepo.NewSQLRunRepository(resolver, "workflow")

	_, err := repo.FindRun(context.Background(), "run-1")

	assert.ErrorIs(t, err, exception.ErrConnectivity)
}
