package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/suicsync/pkg/batch/component/step/writer"
	config "github.com/tigerroll/suicsync/pkg/batch/core/config"
	"github.com/tigerroll/suicsync/pkg/batch/core/domain/model"
	"github.com/tigerroll/suicsync/pkg/batch/core/metrics"
	"github.com/tigerroll/suicsync/pkg/batch/engine/flow"
	"github.com/tigerroll/suicsync/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
	"github.com/tigerroll/suicsync/pkg/batch/test"
)

const table = "suic_records"

type staticSource struct {
	rows []*model.Row
	err  error
}

func (s staticSource) ReadAll(ctx context.Context) ([]*model.Row, error) {
	return s.rows, s.err
}

type batchCounter struct {
	metrics.NoOpMetricRecorder
	mu        sync.Mutex
	succeeded int
	failed    int
}

func (c *batchCounter) RecordBatch(ctx context.Context, flavor string, rows int, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if success {
		c.succeeded++
	} else {
		c.failed++
	}
}

type fixture struct {
	orch     *Orchestrator
	dest     *test.MemoryDestination
	repo     *inmemory.InMemoryRunRepository
	flow     *flow.Store
	recorder *batchCounter
	resolved int
}

func newFixture(t *testing.T, source Source) *fixture {
	t.Helper()
	repo := inmemory.NewInMemoryRunRepository()
	require.NoError(t, repo.CreateRun(context.Background(), &model.Run{ID: "run-1"}))

	f := &fixture{dest: test.NewMemoryDestination(), repo: repo, recorder: &batchCounter{}}
	f.flow = flow.NewStore(repo)
	_, err := f.flow.MarkStep(context.Background(), "run-1", model.Step1, model.StepCompleted, "")
	require.NoError(t, err)
	cfg := config.TransferConfig{
		DestinationTable: table,
		PartitionColumn:  "society",
		BatchSize:        500,
		BatchPause:       "0s",
		ColumnSetVersion: model.DefaultColumnSet.Version,
		Columns:          model.DefaultColumnSet.Columns,
	}
	f.orch = NewOrchestrator(nil, cfg, f.flow, f.recorder, metrics.NewNoOpTracer())
	f.orch.newSource = func() Source { return source }
	f.orch.destination = func(ctx context.Context) (writer.Destination, error) {
		f.resolved++
		return f.dest, nil
	}
	return f
}

func (f *fixture) step2(t *testing.T) model.StepState {
	run, err := f.repo.FindRun(context.Background(), "run-1")
	require.NoError(t, err)
	return model.Parse(run.FlowState).Step2
}

func TestMigrate_AllBatches(t *testing.T) {
	f := newFixture(t, staticSource{rows: test.SampleRows(1200, "PE01")})
	var progress [][2]int

	summary, err := f.orch.Migrate(context.Background(), "run-1", func(b, total int) {
		progress = append(progress, [2]int{b, total})
	})

	require.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Equal(t, 1200, summary.RecordsRead)
	assert.Equal(t, 1200, summary.RecordsTransferred)
	assert.Equal(t, 3, summary.TotalBatches)
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, progress)
	assert.Equal(t, 1200, f.dest.CountWhere(table, map[string]interface{}{"run_id": "run-1", "partition_key": "PE01"}))
	assert.Equal(t, model.StepCompleted, f.step2(t).Status)
	assert.Equal(t, 3, f.recorder.succeeded)
}

func TestMigrate_MiddleBatchFailureRollsBackEverything(t *testing.T) {
	f := newFixture(t, staticSource{rows: test.SampleRows(1200, "PE01")})
	f.dest.Seed(table, map[string]interface{}{"run_id": "run-1", "partition_key": "PE01"})
	f.dest.FailInsert(2, errors.New("Error 1406: Data too long"))

	summary, err := f.orch.Migrate(context.Background(), "run-1", nil)

	assert.ErrorIs(t, err, exception.ErrBatchWrite)
	assert.False(t, summary.Success)
	assert.Equal(t, 0, summary.RecordsTransferred)
	assert.Equal(t, 1, f.dest.CountWhere(table, map[string]interface{}{"run_id": "run-1"}), "seeded row survives the rollback")
	step2 := f.step2(t)
	assert.Equal(t, model.StepError, step2.Status)
	require.NotNil(t, step2.Message)
	assert.Contains(t, *step2.Message, "migration of run run-1 failed")
	assert.Equal(t, 1, f.recorder.succeeded)
	assert.Equal(t, 1, f.recorder.failed)
}

func TestMigrate_EmptySourceShortCircuits(t *testing.T) {
	f := newFixture(t, staticSource{rows: []*model.Row{}})

	summary, err := f.orch.Migrate(context.Background(), "run-1", nil)

	require.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Equal(t, 0, summary.RecordsTransferred)
	assert.Equal(t, 0, f.resolved, "the destination is never opened")
	assert.Empty(t, f.dest.Deletes)
	assert.Equal(t, model.StepCompleted, f.step2(t).Status)
}

func TestMigrate_SourceUnreachable(t *testing.T) {
	f := newFixture(t, staticSource{err: exception.NewBatchError("reader", exception.ErrConnectivity, "cannot connect to source 'source'", nil)})

	summary, err := f.orch.Migrate(context.Background(), "run-1", nil)

	assert.ErrorIs(t, err, exception.ErrConnectivity)
	assert.False(t, summary.Success)
	assert.Equal(t, 0, summary.RecordsTransferred)
	assert.NotEmpty(t, summary.Errors)
	assert.Equal(t, model.StepError, f.step2(t).Status)
}

func TestMigrate_RequiresRunID(t *testing.T) {
	f := newFixture(t, staticSource{})

	summary, err := f.orch.Migrate(context.Background(), " ", nil)

	assert.ErrorIs(t, err, exception.ErrValidation)
	assert.False(t, summary.Success)
	assert.Equal(t, 0, f.resolved)
}

func TestSavePartition_ContinuesAfterFailedBatch(t *testing.T) {
	f := newFixture(t, staticSource{})
	f.dest.FailInsert(2, errors.New("Error 1406: Data too long"))

	summary, err := f.orch.SavePartition(context.Background(), "run-1", "PE01", test.SampleRows(1100, "PE01"), nil)

	require.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Equal(t, 600, summary.ProcessedRecords)
	assert.Len(t, summary.Errors, 1)
	assert.Equal(t, 600, f.dest.CountWhere(table, map[string]interface{}{"run_id": "run-1", "partition_key": "PE01"}))
	step2 := f.step2(t)
	assert.Equal(t, model.StepCompleted, step2.Status)
	require.NotNil(t, step2.Message)
	assert.Contains(t, *step2.Message, "1 of 3 batches failed")
	assert.Equal(t, 2, f.recorder.succeeded)
	assert.Equal(t, 1, f.recorder.failed)
}

func TestSavePartition_EveryBatchFailedMarksStep2Error(t *testing.T) {
	f := newFixture(t, staticSource{})
	f.dest.FailInsert(1, errors.New("Error 1146: Table doesn't exist"))
	f.dest.FailInsert(2, errors.New("Error 1146: Table doesn't exist"))

	summary, err := f.orch.SavePartition(context.Background(), "run-1", "PE01", test.SampleRows(800, "PE01"), nil)

	assert.ErrorIs(t, err, exception.ErrBatchWrite)
	assert.False(t, summary.Success)
	assert.Len(t, summary.Errors, 2)
	assert.Equal(t, model.StepError, f.step2(t).Status)
}

func TestTransfer_RequiresCompletedStep1(t *testing.T) {
	f := newFixture(t, staticSource{rows: test.SampleRows(3, "PE01")})
	ctx := context.Background()
	require.NoError(t, f.repo.CreateRun(ctx, &model.Run{ID: "run-2"}))

	_, err := f.orch.SavePartition(ctx, "run-2", "PE01", test.SampleRows(3, "PE01"), nil)
	assert.ErrorIs(t, err, exception.ErrValidation)
	_, err = f.orch.SaveFromSource(ctx, "run-2", "PE01", nil)
	assert.ErrorIs(t, err, exception.ErrValidation)
	summary, err := f.orch.Migrate(ctx, "run-2", nil)
	assert.ErrorIs(t, err, exception.ErrValidation)
	assert.False(t, summary.Success)

	assert.Equal(t, 0, f.resolved)
	run, err := f.repo.FindRun(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, model.StepPending, model.Parse(run.FlowState).Step2.Status)
}

func TestSavePartition_SameRunIsSerialized(t *testing.T) {
	f := newFixture(t, staticSource{})
	entered := make(chan struct{})
	release := make(chan struct{})
	f.dest.BeforeInsert = func(call int) {
		if call == 1 {
			close(entered)
			<-release
		}
	}
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = f.orch.SavePartition(ctx, "run-1", "PE01", test.SampleRows(1000, "PE01"), nil)
	}()
	<-entered
	go func() {
		defer wg.Done()
		_, errs[1] = f.orch.SavePartition(ctx, "run-1", "CL01", test.SampleRows(1000, "CL01"), nil)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"delete PE01"}, f.dest.Operations(), "the second save waits for the first")
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, []string{
		"delete PE01", "insert PE01", "insert PE01",
		"delete CL01", "insert CL01", "insert CL01",
	}, f.dest.Operations())
	assert.Equal(t, 1000, f.dest.CountWhere(table, map[string]interface{}{"partition_key": "PE01"}))
	assert.Equal(t, 1000, f.dest.CountWhere(table, map[string]interface{}{"partition_key": "CL01"}))
}

func TestSavePartition_RepeatIsIdempotent(t *testing.T) {
	f := newFixture(t, staticSource{})
	rows := test.SampleRows(700, "CO01")
	ctx := context.Background()

	_, err := f.orch.SavePartition(ctx, "run-1", "CO01", rows, nil)
	require.NoError(t, err)
	_, err = f.orch.SavePartition(ctx, "run-1", "CO01", rows, nil)
	require.NoError(t, err)

	assert.Equal(t, 700, f.dest.CountWhere(table, map[string]interface{}{"run_id": "run-1", "partition_key": "CO01"}))
	assert.Equal(t, model.StepCompleted, f.step2(t).Status)
}

func TestSavePartition_RequiresPartitionKey(t *testing.T) {
	f := newFixture(t, staticSource{})

	_, err := f.orch.SavePartition(context.Background(), "run-1", "", test.SampleRows(3, "PE01"), nil)

	assert.ErrorIs(t, err, exception.ErrValidation)
	assert.Equal(t, 0, f.resolved)
}

func TestSaveFromSource_FiltersPartition(t *testing.T) {
	rows := append(test.SampleRows(4, "PE01"), test.SampleRows(3, "CL01")...)
	f := newFixture(t, staticSource{rows: rows})

	summary, err := f.orch.SaveFromSource(context.Background(), "run-1", "CL01", nil)

	require.NoError(t, err)
	assert.Equal(t, 3, summary.ProcessedRecords)
	assert.Equal(t, 3, f.dest.CountWhere(table, map[string]interface{}{"run_id": "run-1", "partition_key": "CL01"}))
	assert.Equal(t, 0, f.dest.CountWhere(table, map[string]interface{}{"partition_key": "PE01"}))
}
