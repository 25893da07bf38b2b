package execution_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/suicsync/pkg/batch/core/domain/model"
	"github.com/tigerroll/suicsync/pkg/batch/engine/execution"
	"github.com/tigerroll/suicsync/pkg/batch/support/registry"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
)

// scriptedReader returns statuses[i] on the i-th call, repeating the last one.
type scriptedReader struct {
	mu       sync.Mutex
	calls    int
	statuses []model.ExecutionStatus
	errs     map[int]error
}

func (r *scriptedReader) GetStatus(ctx context.Context, runID string) (*model.ExecutionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if err, ok := r.errs[r.calls]; ok {
		return nil, err
	}
	i := r.calls - 1
	if i >= len(r.statuses) {
		i = len(r.statuses) - 1
	}
	return &model.ExecutionRecord{ExecutionID: "exec-1", Status: r.statuses[i], Type: model.ExecutionTypeSuicLoad}, nil
}

func (r *scriptedReader) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func wait(t *testing.T, p *execution.Poller) execution.Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	outcome, err := p.Wait(ctx)
	require.NoError(t, err)
	return outcome
}

func TestPoller_StopsOnTerminalStatus(t *testing.T) {
	reader := &scriptedReader{statuses: []model.ExecutionStatus{
		model.ExecutionPending, model.ExecutionRunning, model.ExecutionCompleted,
	}}
	reg := registry.New()
	p := execution.NewPoller(reader, "run-1", 5*time.Millisecond, time.Minute, execution.WithRegistry(reg))

	p.Start(context.Background())
	outcome := wait(t, p)

	assert.Equal(t, execution.ReasonCompleted, outcome.Reason)
	assert.Equal(t, 3, outcome.Ticks)
	assert.Equal(t, 3, reader.Calls())
	assert.NoError(t, outcome.Err)
	require.NotNil(t, outcome.Record)
	assert.Equal(t, model.ExecutionCompleted, outcome.Record.Status)
	assert.Equal(t, execution.PollerStopped, p.State())
	assert.Equal(t, 0, reg.Len())
}

func TestPoller_ErrorStatusIsTerminal(t *testing.T) {
	reader := &scriptedReader{statuses: []model.ExecutionStatus{model.ExecutionError}}
	p := execution.NewPoller(reader, "run-1", 5*time.Millisecond, time.Minute)

	p.Start(context.Background())
	outcome := wait(t, p)

	assert.Equal(t, execution.ReasonError, outcome.Reason)
	assert.Equal(t, 1, outcome.Ticks)
}

func TestPoller_TimesOut(t *testing.T) {
	reader := &scriptedReader{statuses: []model.ExecutionStatus{model.ExecutionRunning}}
	p := execution.NewPoller(reader, "run-1", 5*time.Millisecond, 30*time.Millisecond)

	p.Start(context.Background())
	outcome := wait(t, p)

	assert.Equal(t, execution.ReasonTimedOut, outcome.Reason)
	assert.ErrorIs(t, outcome.Err, exception.ErrTimeout)
	assert.Equal(t, execution.PollerTimedOut, p.State())
	assert.GreaterOrEqual(t, outcome.Ticks, 2)
	require.NotNil(t, outcome.Record)
	assert.Equal(t, model.ExecutionRunning, outcome.Record.Status)
}

func TestPoller_ReadErrorKeepsPolling(t *testing.T) {
	reader := &scriptedReader{
		statuses: []model.ExecutionStatus{model.ExecutionRunning, model.ExecutionRunning, model.ExecutionCompleted},
		errs:     map[int]error{2: errors.New("connection reset")},
	}
	var ticks []int
	var mu sync.Mutex
	p := execution.NewPoller(reader, "run-1", 5*time.Millisecond, time.Minute,
		execution.WithTickObserver(func(tick int, record *model.ExecutionRecord, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				ticks = append(ticks, tick)
			}
		}))

	p.Start(context.Background())
	outcome := wait(t, p)

	assert.Equal(t, execution.ReasonCompleted, outcome.Reason)
	assert.Equal(t, 3, outcome.Ticks)
	mu.Lock()
	assert.Equal(t, []int{2}, ticks)
	mu.Unlock()
}

func TestPoller_StopIsIdempotent(t *testing.T) {
	reader := &scriptedReader{statuses: []model.ExecutionStatus{model.ExecutionRunning}}
	p := execution.NewPoller(reader, "run-1", time.Hour, time.Hour)

	p.Stop()
	assert.Equal(t, execution.PollerIdle, p.State())

	p.Start(context.Background())
	p.Stop()
	p.Stop()
	require.NoError(t, p.Close())

	assert.Equal(t, execution.PollerStopped, p.State())
	assert.Equal(t, execution.ReasonStopped, p.Outcome().Reason)
	assert.Equal(t, 1, reader.Calls())
}

func TestPoller_DoubleStartIsNoOp(t *testing.T) {
	reader := &scriptedReader{statuses: []model.ExecutionStatus{model.ExecutionRunning}}
	p := execution.NewPoller(reader, "run-1", time.Hour, time.Hour)

	p.Start(context.Background())
	p.Start(context.Background())
	require.Eventually(t, func() bool { return reader.Calls() >= 1 }, time.Second, time.Millisecond)
	p.Stop()

	assert.Equal(t, 1, reader.Calls())
}

func TestPoller_RegistryCloseStopsPolling(t *testing.T) {
	reader := &scriptedReader{statuses: []model.ExecutionStatus{model.ExecutionRunning}}
	reg := registry.New()
	p := execution.NewPoller(reader, "run-1", time.Hour, time.Hour, execution.WithRegistry(reg))

	p.Start(context.Background())
	assert.Equal(t, 1, reg.Len())
	require.NoError(t, reg.CloseAll())

	assert.Equal(t, execution.PollerStopped, p.State())
}

func TestPoller_WaitBeforeStart(t *testing.T) {
	p := execution.NewPoller(&scriptedReader{}, "run-1", time.Second, time.Second)

	_, err := p.Wait(context.Background())

	assert.ErrorIs(t, err, exception.ErrValidation)
}

func TestPoller_StartOnClosedRegistryEndsStopped(t *testing.T) {
	reader := &scriptedReader{statuses: []model.ExecutionStatus{model.ExecutionRunning}}
	reg := registry.New()
	require.NoError(t, reg.CloseAll())
	p := execution.NewPoller(reader, "run-1", time.Hour, time.Hour, execution.WithRegistry(reg))

	started := make(chan struct{})
	go func() {
		p.Start(context.Background())
		close(started)
	}()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("Start blocked on a closed registry")
	}

	outcome := wait(t, p)
	assert.Equal(t, execution.ReasonStopped, outcome.Reason)
	assert.Equal(t, execution.PollerStopped, p.State())
	assert.Equal(t, 0, reg.Len())
}

func TestPoller_TickObserverCanCancel(t *testing.T) {
	reader := &scriptedReader{statuses: []model.ExecutionStatus{model.ExecutionRunning}}
	var p *execution.Poller
	p = execution.NewPoller(reader, "run-1", 5*time.Millisecond, time.Minute,
		execution.WithTickObserver(func(tick int, record *model.ExecutionRecord, err error) {
			if tick == 2 {
				p.Cancel()
			}
		}))

	p.Start(context.Background())
	outcome := wait(t, p)

	assert.Equal(t, execution.ReasonStopped, outcome.Reason)
	assert.Equal(t, 2, outcome.Ticks)
	assert.Equal(t, 2, reader.Calls())
}
