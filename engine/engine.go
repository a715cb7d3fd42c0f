package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/enginebridge/backoff"
	"github.com/hupe1980/enginebridge/core"
	"github.com/hupe1980/enginebridge/logging"
	"github.com/hupe1980/enginebridge/workflow"
)

// Config defines tuning parameters for the Executor.
//
// Example:
//
//	cfg := Config{
//	    EventBufferSize: 256,
//	    MarkSkipped:     true,
//	}
type Config struct {
	// EventBufferSize sets the channel buffer size of asynchronous runs. A
	// consumer that falls behind by more than this many events stalls the
	// run until it catches up or the run is cancelled.
	EventBufferSize int

	// MarkSkipped moves the steps that follow an aborting failure from
	// Pending to Skipped. When false they stay Pending.
	MarkSkipped bool
}

// DefaultConfig provides the default executor configuration.
//
// Configuration values:
//   - EventBufferSize: 100
//   - MarkSkipped: false (steps after an abort stay Pending)
var DefaultConfig = Config{
	EventBufferSize: 100,
	MarkSkipped:     false,
}

// Options configures an Executor using the functional options pattern.
//
// Example:
//
//	exec := New(gateway, func(o *Options) {
//	    o.Backoff = backoff.NewExponential(500*time.Millisecond, 10*time.Second)
//	    o.Logger = logger
//	    o.RunStore = store.NewInMemoryStore()
//	})
type Options struct {
	// Config contains operational parameters. Defaults to DefaultConfig.
	Config Config

	// Backoff computes the delay before each retry. Defaults to
	// backoff.DefaultStrategy() (a fixed one second delay).
	Backoff backoff.Strategy

	// Timer performs backoff waits. Defaults to backoff.RealTimer.
	Timer backoff.Timer

	// RunStore receives a RunRecord after every run. Nil disables history.
	RunStore core.RunStore

	// Logger provides structured logging. Defaults to NoOp logger.
	Logger logging.Logger

	// Callbacks holds lifecycle hooks. Defaults to an empty manager.
	Callbacks *CallbackManager

	// Tracer and Meter instrument runs and attempts. Default to the global
	// OpenTelemetry providers.
	Tracer trace.Tracer
	Meter  metric.Meter

	// Now returns the current time for step timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Executor drives workflows step by step through session transfer, retry and
// failure policy.
//
// The executor holds no per-workflow state. Every execute call owns its
// workflow for the duration of the run (see workflow.Workflow.Acquire), so a
// single Executor can run any number of distinct workflows concurrently as
// long as they use disjoint engine handles.
//
// Two entry points share one per-step routine:
//   - ExecuteSync runs on the caller's goroutine and blocks through every
//     action, session transfer and backoff wait.
//   - ExecuteAsync runs on its own goroutine, streams StepEvents, awaits
//     cooperative engines and honors cancellation between and during steps.
//
// Example:
//
//	exec := New(session.NewGateway())
//
//	ok, err := exec.ExecuteSync(ctx, wf, core.Handles{
//	    core.EngineBrowser: browserHandle,
//	    core.EngineWeb:     webHandle,
//	})
type Executor struct {
	gateway   core.SessionGateway
	logger    logging.Logger
	config    Config
	backoff   backoff.Strategy
	timer     backoff.Timer
	store     core.RunStore
	callbacks *CallbackManager
	telemetry *telemetry
	now       func() time.Time

	// Active run tracking
	activeRuns map[string]context.CancelFunc
	runsMu     sync.RWMutex
}

// New creates an Executor around a session gateway. A nil gateway is replaced
// by core.NoOpGateway.
func New(gateway core.SessionGateway, optFns ...func(o *Options)) *Executor {
	opts := Options{
		Config:    DefaultConfig,
		Backoff:   backoff.DefaultStrategy(),
		Timer:     backoff.RealTimer{},
		Logger:    logging.NoOpLogger{},
		Callbacks: NewCallbackManager(),
		Now:       time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if gateway == nil {
		gateway = core.NoOpGateway{}
	}
	if opts.Config.EventBufferSize < 0 {
		opts.Config.EventBufferSize = 0
	}

	return &Executor{
		gateway:    gateway,
		logger:     opts.Logger,
		config:     opts.Config,
		backoff:    opts.Backoff,
		timer:      opts.Timer,
		store:      opts.RunStore,
		callbacks:  opts.Callbacks,
		telemetry:  newTelemetry(opts.Tracer, opts.Meter),
		now:        opts.Now,
		activeRuns: make(map[string]context.CancelFunc),
	}
}

// Callbacks returns the callback manager of the executor.
func (e *Executor) Callbacks() *CallbackManager { return e.callbacks }

// ExecuteSync runs every step of wf in order on the calling goroutine.
//
// It returns true when no Stop abort occurred. A configuration error (no
// handle registered for a step's engine) is returned as an error together
// with false. Step failures are recorded on the steps, never returned as
// errors. Cancellation of ctx is checked between steps only.
func (e *Executor) ExecuteSync(ctx context.Context, wf *workflow.Workflow, handles core.Handles) (bool, error) {
	if err := e.claim(wf); err != nil {
		return false, err
	}
	defer wf.Release()

	x := e.newExecution(uuid.NewString(), modeSync, wf, handles, nil)
	return e.execute(ctx, x)
}

// ExecuteAsync starts wf on a new goroutine and returns immediately.
//
// Step transitions are streamed on the events channel. The run outcome is
// delivered exactly once on the done channel, after which both channels are
// closed. The run stops early when ctx is cancelled or StopRun is called
// with the returned run ID; the step in flight is then marked Failed with
// core.ErrCancelled and the remaining steps are left Pending.
//
// Example:
//
//	runID, events, done, err := exec.ExecuteAsync(ctx, wf, handles)
//	if err != nil {
//	    return err
//	}
//	for ev := range events {
//	    log.Printf("%s %s %s", runID, ev.Step, ev.Type)
//	}
//	outcome := <-done
func (e *Executor) ExecuteAsync(
	ctx context.Context,
	wf *workflow.Workflow,
	handles core.Handles,
) (string, <-chan core.StepEvent, <-chan core.Outcome, error) {
	if err := e.claim(wf); err != nil {
		return "", nil, nil, err
	}

	runID := uuid.NewString()
	eventsCh := make(chan core.StepEvent, e.config.EventBufferSize)
	doneCh := make(chan core.Outcome, 1)

	runCtx, cancel := context.WithCancel(ctx)

	e.runsMu.Lock()
	e.activeRuns[runID] = cancel
	e.runsMu.Unlock()

	emit := func(ev core.StepEvent) {
		select {
		case eventsCh <- ev:
			return
		default:
		}
		select {
		case eventsCh <- ev:
		case <-runCtx.Done():
		}
	}

	go func() {
		x := e.newExecution(runID, modeAsync, wf, handles, emit)
		ok, err := e.execute(runCtx, x)

		e.runsMu.Lock()
		delete(e.activeRuns, runID)
		e.runsMu.Unlock()
		cancel()
		wf.Release()

		doneCh <- core.Outcome{RunID: runID, Success: ok, Err: err}
		close(doneCh)
		close(eventsCh)
	}()

	return runID, eventsCh, doneCh, nil
}

// ExecuteAsyncWait runs wf asynchronously and collects every event until the
// run completes. It returns the run outcome and the events in order.
func (e *Executor) ExecuteAsyncWait(
	ctx context.Context,
	wf *workflow.Workflow,
	handles core.Handles,
) (bool, []core.StepEvent, error) {
	_, eventsCh, doneCh, err := e.ExecuteAsync(ctx, wf, handles)
	if err != nil {
		return false, nil, err
	}

	var events []core.StepEvent
	for ev := range eventsCh {
		events = append(events, ev)
	}

	outcome := <-doneCh
	return outcome.Success, events, outcome.Err
}

// StopRun cancels an in-flight asynchronous run.
func (e *Executor) StopRun(runID string) error {
	e.runsMu.RLock()
	cancel, ok := e.activeRuns[runID]
	e.runsMu.RUnlock()

	if !ok {
		return fmt.Errorf("run %s: %w", runID, core.ErrRunNotFound)
	}

	cancel()
	return nil
}

// ActiveRuns returns the IDs of asynchronous runs in flight, sorted.
func (e *Executor) ActiveRuns() []string {
	e.runsMu.RLock()
	defer e.runsMu.RUnlock()
	ids := make([]string, 0, len(e.activeRuns))
	for id := range e.activeRuns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// claim validates wf and takes ownership of it. A workflow whose steps are
// not all Pending has already run and must be reset first.
func (e *Executor) claim(wf *workflow.Workflow) error {
	if wf == nil {
		return errors.New("enginebridge: nil workflow")
	}
	if err := wf.Acquire(); err != nil {
		return err
	}
	for _, step := range wf.Steps() {
		if st := step.Status(); st != core.StatusPending {
			wf.Release()
			return fmt.Errorf("workflow %q: step %q is %s, reset before executing again: %w",
				wf.Name, step.Name, st, core.ErrInvalidTransition)
		}
	}
	return nil
}

// execute runs x and handles everything around the step loop: tracing,
// logging, run history and the run-complete callbacks.
func (e *Executor) execute(ctx context.Context, x *execution) (bool, error) {
	startedAt := e.now()
	ctx, span := e.telemetry.startRun(ctx, x)

	x.logger.Info("Starting workflow run", "mode", x.mode, "step_count", x.wf.Len())

	ok, err := e.run(ctx, x)

	finishedAt := e.now()
	e.telemetry.endRun(ctx, span, x, ok, err)
	logging.RunExecution(x.logger, x.wf.Name, x.wf.Len(), finishedAt.Sub(startedAt), ok, err)

	e.record(ctx, x, startedAt, finishedAt, ok, err)

	if cbErr := e.callbacks.ExecuteCallbacks(ctx, CallbackOnRunComplete, &CallbackContext{
		RunID:    x.id,
		Workflow: x.wf,
		Index:    -1,
		Err:      err,
		Success:  ok,
	}); cbErr != nil {
		x.logger.Warn("Callback failed", "error", cbErr.Error())
	}

	return ok, err
}

// record saves the run in the configured store. Failures are logged only.
func (e *Executor) record(ctx context.Context, x *execution, startedAt, finishedAt time.Time, ok bool, runErr error) {
	if e.store == nil {
		return
	}

	rec := core.RunRecord{
		ID:         x.id,
		Workflow:   x.wf.Name,
		Mode:       x.mode,
		Success:    ok,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Steps:      x.wf.Snapshot(),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}

	if err := e.store.Save(context.WithoutCancel(ctx), rec); err != nil {
		x.logger.Warn("Failed to save run record", "error", err.Error())
	}
}
