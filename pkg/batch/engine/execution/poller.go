package execution

import (
	"context"
	"sync"
	"time"

	"github.com/tigerroll/suicsync/pkg/batch/core/domain/model"
	"github.com/tigerroll/suicsync/pkg/batch/core/metrics"
	"github.com/tigerroll/suicsync/pkg/batch/support/registry"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/logger"
)

// Poller defaults.
const (
	DefaultPollingInterval    = 17 * time.Second
	DefaultMaxPollingDuration = 30 * time.Minute
)

// PollerState is the lifecycle state of a Poller.
type PollerState string

const (
	PollerIdle     PollerState = "idle"
	PollerPolling  PollerState = "polling"
	PollerStopped  PollerState = "stopped"
	PollerTimedOut PollerState = "timed_out"
)

// Outcome reasons.
const (
	ReasonCompleted = "completed"
	ReasonError     = "error"
	ReasonTimedOut  = "timed_out"
	ReasonStopped   = "stopped"
)

// StatusReader reads the current execution record of a run.
type StatusReader interface {
	GetStatus(ctx context.Context, runID string) (*model.ExecutionRecord, error)
}

// Outcome is how a poll ended.
type Outcome struct {
	RunID string
	// Reason is one of the Reason constants.
	Reason string
	// Record is the last record read successfully, if any.
	Record *model.ExecutionRecord
	Ticks  int
	// Err is a TimeoutError when the poll timed out.
	Err error
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithRegistry registers the poller while it is active, under "poller:<runID>".
func WithRegistry(reg *registry.Registry) PollerOption {
	return func(p *Poller) { p.registry = reg }
}

// WithMetrics sets the recorder and tracer.
func WithMetrics(recorder metrics.MetricRecorder, tracer metrics.Tracer) PollerOption {
	return func(p *Poller) { p.recorder, p.tracer = recorder, tracer }
}

// WithTickObserver is called after every status check with the tick number and the record read (nil on error).
// fn runs on the loop goroutine: it may call Cancel to end the poll, but Stop, Close
// and Wait block until the loop exits and must not be called from it.
func WithTickObserver(fn func(tick int, record *model.ExecutionRecord, err error)) PollerOption {
	return func(p *Poller) { p.onTick = fn }
}

// Poller re-reads the execution record of one run until it is terminal or the
// maximum duration is exceeded. It runs idle → polling → stopped | timed_out
// with at most one loop goroutine at a time.
type Poller struct {
	reader      StatusReader
	runID       string
	interval    time.Duration
	maxDuration time.Duration
	registry    *registry.Registry
	recorder    metrics.MetricRecorder
	tracer      metrics.Tracer
	onTick      func(int, *model.ExecutionRecord, error)

	mu      sync.Mutex
	state   PollerState
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	outcome Outcome
}

// NewPoller creates an idle poller. Non-positive durations fall back to the defaults.
func NewPoller(reader StatusReader, runID string, interval, maxDuration time.Duration, opts ...PollerOption) *Poller {
	if interval <= 0 {
		interval = DefaultPollingInterval
	}
	if maxDuration <= 0 {
		maxDuration = DefaultMaxPollingDuration
	}
	p := &Poller{
		reader:      reader,
		runID:       runID,
		interval:    interval,
		maxDuration: maxDuration,
		recorder:    metrics.NewNoOpMetricRecorder(),
		tracer:      metrics.NewNoOpTracer(),
		state:       PollerIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Poller) registryName() string {
	return "poller:" + p.runID
}

// Start begins polling in a new goroutine. The first check happens immediately.
// Starting an active poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.state == PollerPolling {
		p.mu.Unlock()
		logger.Warnf("Poller: run %s is already being polled; Start ignored.", p.runID)
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.state, p.cancel, p.done, p.started = PollerPolling, cancel, done, false
	p.outcome = Outcome{RunID: p.runID}
	p.mu.Unlock()

	// A closed registry closes the poller during Register; the loop then ends as stopped on its first check.
	if p.registry != nil {
		if err := p.registry.Register(p.registryName(), p); err != nil {
			logger.Warnf("Poller: closing the previous poller of run %s failed: %v", p.runID, err)
		}
	}
	logger.Infof("Poller: polling run %s every %v for at most %v.", p.runID, p.interval, p.maxDuration)
	p.mu.Lock()
	p.started = true
	p.mu.Unlock()
	go p.loop(loopCtx, done)
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ctx, end := p.tracer.StartSpan(ctx, "execution.poll", map[string]interface{}{"run_id": p.runID})
	defer end()

	start := time.Now()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	ticks := 0
	var last *model.ExecutionRecord
	for {
		ticks++
		record, err := p.reader.GetStatus(ctx, p.runID)
		switch {
		case ctx.Err() != nil:
			p.finish(ctx, PollerStopped, Outcome{Reason: ReasonStopped, Record: last, Ticks: ticks}, start)
			return
		case err != nil:
			logger.Warnf("Poller: status check %d of run %s failed, retrying at the next tick: %v", ticks, p.runID, err)
			p.recorder.RecordPollTick(ctx, "read_error")
		default:
			last = record
			outcome := "none"
			if record != nil {
				outcome = string(record.Status)
			}
			p.recorder.RecordPollTick(ctx, outcome)
			logger.Debugf("Poller: status check %d of run %s: %s.", ticks, p.runID, outcome)
		}
		if p.onTick != nil {
			p.onTick(ticks, record, err)
		}

		if err == nil && record != nil && record.Status.IsTerminal() {
			reason := ReasonCompleted
			if record.Status == model.ExecutionError {
				reason = ReasonError
			}
			p.finish(ctx, PollerStopped, Outcome{Reason: reason, Record: record, Ticks: ticks}, start)
			return
		}
		if elapsed := time.Since(start); elapsed > p.maxDuration {
			timeoutErr := exception.NewBatchErrorf(moduleName, exception.ErrTimeout,
				"no terminal status for run %s after %v (%d checks)", p.runID, elapsed.Round(time.Millisecond), ticks)
			p.tracer.RecordError(ctx, moduleName, timeoutErr)
			p.finish(ctx, PollerTimedOut, Outcome{Reason: ReasonTimedOut, Record: last, Ticks: ticks, Err: timeoutErr}, start)
			return
		}

		select {
		case <-ctx.Done():
			p.finish(ctx, PollerStopped, Outcome{Reason: ReasonStopped, Record: last, Ticks: ticks}, start)
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				p.finish(ctx, PollerStopped, Outcome{Reason: ReasonStopped, Record: last, Ticks: ticks}, start)
				return
			}
		}
	}
}

func (p *Poller) finish(ctx context.Context, state PollerState, outcome Outcome, start time.Time) {
	outcome.RunID = p.runID
	if p.registry != nil {
		p.registry.Unregister(p.registryName())
	}
	p.recorder.RecordPollEnd(ctx, outcome.Reason, time.Since(start))

	p.mu.Lock()
	p.state, p.outcome = state, outcome
	p.mu.Unlock()
	logger.Infof("Poller: polling of run %s ended after %d checks (%s).", p.runID, outcome.Ticks, outcome.Reason)
}

// Stop cancels the loop and waits for it to exit. It is safe to call at any time, any number of times,
// except from a tick observer.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done, started := p.cancel, p.done, p.started
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if started {
		<-done
	}
}

// Cancel asks the loop to stop without waiting for it.
func (p *Poller) Cancel() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close implements io.Closer for the resource registry.
func (p *Poller) Close() error {
	p.Stop()
	return nil
}

// State returns the current lifecycle state.
func (p *Poller) State() PollerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Outcome returns how the last poll ended. It is zero while polling.
func (p *Poller) Outcome() Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outcome
}

// Wait blocks until the active poll ends or ctx is done.
func (p *Poller) Wait(ctx context.Context) (Outcome, error) {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return Outcome{}, exception.Validation(moduleName, "poller of run %s was never started", p.runID)
	}
	select {
	case <-done:
		return p.Outcome(), nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
