package flow_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/suicsync/pkg/batch/core/domain/model"
	"github.com/tigerroll/suicsync/pkg/batch/engine/flow"
	"github.com/tigerroll/suicsync/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
)

func newStore(t *testing.T, runIDs ...string) (*flow.Store, *inmemory.InMemoryRunRepository) {
	repo := inmemory.NewInMemoryRunRepository()
	for _, id := range runIDs {
		require.NoError(t, repo.CreateRun(context.Background(), &model.Run{ID: id}))
	}
	return flow.NewStore(repo), repo
}

func TestUpdate_MergesAndRecomputesStep(t *testing.T) {
	store, repo := newStore(t, "run-1")
	ctx := context.Background()

	state, err := store.Update(ctx, "run-1", model.StepUpdate{Step: model.Step1, Status: model.StepCompleted})
	require.NoError(t, err)
	assert.Equal(t, model.StepCompleted, state.Step1.Status)
	assert.NotNil(t, state.Step1.UpdatedAt)
	assert.Equal(t, model.StepPending, state.Step2.Status)

	msg := "3 of 4 batches saved"
	state, err = store.Update(ctx, "run-1", model.StepUpdate{Step: model.Step2, Status: model.StepError, Message: &msg})
	require.NoError(t, err)
	assert.Equal(t, model.StepCompleted, state.Step1.Status)
	require.NotNil(t, state.Step2.Message)
	assert.Equal(t, msg, *state.Step2.Message)

	run, err := repo.FindRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 1, run.CurrentStep)
	assert.Equal(t, 2, run.Version)
	assert.Equal(t, model.StepError, model.Parse(run.FlowState).Step2.Status)
}

func TestUpdate_UnknownRun(t *testing.T) {
	store, _ := newStore(t)

	_, err := store.Update(context.Background(), "nope", model.StepUpdate{Step: model.Step1, Status: model.StepCompleted})

	assert.ErrorIs(t, err, exception.ErrNotFound)
}

func TestUpdate_Validation(t *testing.T) {
	store, _ := newStore(t, "run-1")
	ctx := context.Background()

	_, err := store.Update(ctx, "run-1", model.StepUpdate{Step: "step9", Status: model.StepCompleted})
	assert.ErrorIs(t, err, exception.ErrValidation)
	_, err = store.Update(ctx, "run-1", model.StepUpdate{Step: model.Step1, Status: "done"})
	assert.ErrorIs(t, err, exception.ErrValidation)
	_, err = store.Update(ctx, "", model.StepUpdate{Step: model.Step1, Status: model.StepCompleted})
	assert.ErrorIs(t, err, exception.ErrValidation)
	_, err = store.Update(ctx, "run-1")
	assert.ErrorIs(t, err, exception.ErrValidation)
}

func TestUpdate_ConcurrentWritersKeepEveryStep(t *testing.T) {
	store, _ := newStore(t, "run-1")
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, step := range model.StepNames {
		wg.Add(1)
		go func(step string) {
			defer wg.Done()
			_, err := store.Update(ctx, "run-1", model.StepUpdate{Step: step, Status: model.StepCompleted})
			assert.NoError(t, err)
		}(step)
	}
	wg.Wait()

	view, err := store.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, view.SuggestedStep)
	assert.Equal(t, [3]bool{true, true, true}, view.CanAccess)
}

func TestEnsure_RepairsOnlyWhenNeeded(t *testing.T) {
	store, repo := newStore(t, "run-1")
	ctx := context.Background()

	state, err := store.Ensure(ctx, "run-1", nil)
	require.NoError(t, err)
	assert.Equal(t, model.NewFlowState(), state)
	run, err := repo.FindRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 1, run.Version)
	assert.False(t, model.NeedsRepair(run.FlowState))

	state, err = store.Ensure(ctx, "run-1", run.FlowState)
	require.NoError(t, err)
	assert.Equal(t, model.NewFlowState(), state)
	run, err = repo.FindRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 1, run.Version, "a valid blob is not rewritten")
}

func TestGet_View(t *testing.T) {
	store, _ := newStore(t, "run-1")
	ctx := context.Background()
	_, err := store.MarkStep(ctx, "run-1", model.Step1, model.StepCompleted, "")
	require.NoError(t, err)

	view, err := store.Get(ctx, "run-1")

	require.NoError(t, err)
	assert.Equal(t, 1, view.SuggestedStep)
	assert.Equal(t, [3]bool{true, true, false}, view.CanAccess)
	assert.Nil(t, view.State.Step1.Message)
}

func TestRequireAccess_FollowsCompletedSteps(t *testing.T) {
	store, _ := newStore(t, "run-1")
	ctx := context.Background()

	require.NoError(t, store.RequireAccess(ctx, "run-1", 0))
	assert.ErrorIs(t, store.RequireAccess(ctx, "run-1", 1), exception.ErrValidation)
	assert.ErrorIs(t, store.RequireAccess(ctx, "run-1", 2), exception.ErrValidation)

	_, err := store.MarkStep(ctx, "run-1", model.Step1, model.StepCompleted, "")
	require.NoError(t, err)
	require.NoError(t, store.RequireAccess(ctx, "run-1", 1))
	assert.ErrorIs(t, store.RequireAccess(ctx, "run-1", 2), exception.ErrValidation)

	_, err = store.MarkStep(ctx, "run-1", model.Step2, model.StepCompleted, "")
	require.NoError(t, err)
	require.NoError(t, store.RequireAccess(ctx, "run-1", 2))
	assert.ErrorIs(t, store.RequireAccess(ctx, "run-1", 3), exception.ErrValidation)
	assert.ErrorIs(t, store.RequireAccess(ctx, "missing", 1), exception.ErrNotFound)
}
