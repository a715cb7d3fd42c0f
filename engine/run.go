package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/enginebridge/core"
	"github.com/hupe1980/enginebridge/logging"
	"github.com/hupe1980/enginebridge/workflow"
)

const (
	modeSync  = "sync"
	modeAsync = "async"
)

// execution is the state of one execute call.
type execution struct {
	id      string
	mode    string
	wf      *workflow.Workflow
	handles core.Handles
	table   *core.EngineTable
	emit    func(core.StepEvent)
	logger  logging.Logger

	// active is the index of the step being executed.
	active int
}

func (e *Executor) newExecution(
	id, mode string,
	wf *workflow.Workflow,
	handles core.Handles,
	emit func(core.StepEvent),
) *execution {
	logger := e.logger
	if bl, ok := logger.(*logging.BridgeLogger); ok {
		logger = bl.WithComponent("executor").WithRun(wf.Name, id)
	}
	if emit == nil {
		emit = func(core.StepEvent) {}
	}
	return &execution{
		id:      id,
		mode:    mode,
		wf:      wf,
		handles: handles,
		table:   wf.EngineTable(),
		emit:    emit,
		logger:  logger,
	}
}

// suspenderFor returns the waiting strategy of a step. Synchronous runs block
// for everything; asynchronous runs await cooperative engines only.
func (e *Executor) suspenderFor(x *execution, spec core.EngineSpec) suspender {
	if x.mode == modeAsync && spec.Mode == core.ModeCooperative {
		return cooperative{timer: e.timer}
	}
	return blocking{timer: e.timer}
}

func (x *execution) event(t core.EventType, step *workflow.Step, index, attempt int, err error) {
	ev := core.StepEvent{
		RunID:     x.id,
		Type:      t,
		Step:      step.Name,
		Index:     index,
		Attempt:   attempt,
		Status:    step.Status(),
		Timestamp: step.EndTime(),
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = step.StartTime()
	}
	if err != nil {
		ev.Error = err.Error()
	}
	x.emit(ev)
}

// run executes the steps of x in order.
func (e *Executor) run(ctx context.Context, x *execution) (bool, error) {
	steps := x.wf.Steps()

	for i, step := range steps {
		x.active = i

		if err := ctx.Err(); err != nil {
			return false, cancelled(err)
		}

		spec, handle, err := x.resolve(step)
		if err != nil {
			step.Reject(e.now(), err)
			x.event(core.EventStepFailed, step, i, 0, err)
			x.logger.Error("Step configuration error", "step", step.Name, "engine_type", step.EngineType.String(), "error", err.Error())
			return false, err
		}

		ok, err := e.runStep(ctx, x, i, step, spec, handle)
		if err != nil {
			return false, err
		}
		if ok {
			continue
		}

		if step.OnFailure.Aborts() {
			x.logger.Error("Step failed, aborting workflow", "step", step.Name, "policy", step.OnFailure.String(), "error", step.ErrorMessage())
			e.abort(x, steps, i+1)
			return false, nil
		}

		x.logger.Warn("Step failed, continuing", "step", step.Name, "error", step.ErrorMessage())
	}

	return true, nil
}

// resolve finds the spec and the handle of a step's engine.
func (x *execution) resolve(step *workflow.Step) (core.EngineSpec, core.EngineHandle, error) {
	spec, ok := x.table.Lookup(step.EngineType)
	if !ok {
		return core.EngineSpec{}, nil, fmt.Errorf("%w: step %q: engine type %q is not registered",
			core.ErrConfiguration, step.Name, step.EngineType)
	}
	handle, ok := x.handles[spec.HandleKey]
	if !ok || handle == nil {
		return core.EngineSpec{}, nil, fmt.Errorf("%w: step %q: no %s handle registered",
			core.ErrConfiguration, step.Name, spec.HandleKey)
	}
	return spec, handle, nil
}

// abort handles the steps from index from onward after an aborting failure.
func (e *Executor) abort(x *execution, steps []*workflow.Step, from int) {
	if !e.config.MarkSkipped {
		return
	}
	for i := from; i < len(steps); i++ {
		if err := steps[i].Skip(); err != nil {
			x.logger.Warn("Cannot skip step", "step", steps[i].Name, "error", err.Error())
			continue
		}
		x.event(core.EventStepSkipped, steps[i], i, 0, nil)
	}
}

// runStep drives one step through its attempts. It returns whether the step
// succeeded; a non-nil error means the run was cancelled.
func (e *Executor) runStep(
	ctx context.Context,
	x *execution,
	index int,
	step *workflow.Step,
	spec core.EngineSpec,
	handle core.EngineHandle,
) (bool, error) {
	sus := e.suspenderFor(x, spec)
	ctx = core.WithStepTimeout(ctx, step.Timeout)

	for {
		attempt, err := step.Begin(e.now())
		if err != nil {
			return false, err
		}
		x.event(core.EventStepStarted, step, index, attempt, nil)
		x.logger.Debug("Step started", "step", step.Name, "engine_type", step.EngineType.String(), "attempt", attempt)

		start := e.now()
		attemptCtx, span := e.telemetry.startAttempt(ctx, step, index, attempt)
		result, attemptErr := e.attempt(attemptCtx, x, index, step, spec, handle, sus, attempt)

		if attemptErr == nil {
			elapsed := e.now().Sub(start)
			e.telemetry.endAttempt(attemptCtx, span, step, elapsed, nil)
			logging.StepExecution(x.logger, step.Name, step.EngineType.String(), attempt, elapsed, nil)

			if err := step.Succeed(e.now(), result); err != nil {
				return false, err
			}
			x.event(core.EventStepSucceeded, step, index, attempt, nil)
			e.fire(ctx, x, CallbackAfterStep, step, index, attempt, nil)

			if step.ProducesSession {
				e.capture(ctx, x, index, step, handle, attempt)
			}
			return true, nil
		}

		// A failure observed after cancellation is reported as cancellation.
		if !errors.Is(attemptErr, core.ErrCancelled) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				attemptErr = fmt.Errorf("%w: %w", cancelled(ctxErr), attemptErr)
			}
		}

		elapsed := e.now().Sub(start)
		e.telemetry.endAttempt(attemptCtx, span, step, elapsed, attemptErr)
		logging.StepExecution(x.logger, step.Name, step.EngineType.String(), attempt, elapsed, attemptErr)

		if err := step.Fail(e.now(), attemptErr); err != nil {
			return false, err
		}
		x.event(core.EventStepFailed, step, index, attempt, attemptErr)
		e.fire(ctx, x, CallbackOnStepError, step, index, attempt, attemptErr)

		if errors.Is(attemptErr, core.ErrCancelled) {
			return false, fmt.Errorf("step %q: %w", step.Name, attemptErr)
		}

		retry, ok := step.ConsumeRetry()
		if !ok {
			return false, nil
		}

		delay := e.backoff.Delay(retry)
		x.logger.Info("Retrying step", "step", step.Name, "retry", retry, "delay", delay, "remaining", step.RetryCount())
		x.event(core.EventStepRetrying, step, index, attempt, attemptErr)
		e.fire(ctx, x, CallbackOnRetry, step, index, attempt, attemptErr)

		if err := sus.wait(ctx, delay); err != nil {
			_ = step.Fail(e.now(), err)
			return false, fmt.Errorf("step %q: %w", step.Name, err)
		}
	}
}

// attempt performs a single attempt: the before-step hooks, the session
// injection and the action call.
func (e *Executor) attempt(
	ctx context.Context,
	x *execution,
	index int,
	step *workflow.Step,
	spec core.EngineSpec,
	handle core.EngineHandle,
	sus suspender,
	attempt int,
) (any, error) {
	if err := e.callbacks.ExecuteCallbacks(ctx, CallbackBeforeStep, &CallbackContext{
		RunID:    x.id,
		Workflow: x.wf,
		Step:     step,
		Index:    index,
		Attempt:  attempt,
	}); err != nil {
		return nil, fmt.Errorf("%w: step %q: %w", core.ErrAction, step.Name, err)
	}

	if step.RequiresSession {
		if state := x.wf.SessionData(); state != nil {
			if err := e.inject(ctx, x, index, step, spec, handle, sus, state, attempt); err != nil {
				return nil, err
			}
		}
	}

	action := protect(step.Action)
	result, err := sus.call(ctx, func(ctx context.Context) (any, error) {
		return action(ctx, handle)
	})
	if err != nil {
		if errors.Is(err, core.ErrCancelled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: step %q: %w", core.ErrAction, step.Name, err)
	}

	return result, nil
}

// inject applies the carried session to the step's engine, choosing the
// gateway entry point by the engine's mode.
func (e *Executor) inject(
	ctx context.Context,
	x *execution,
	index int,
	step *workflow.Step,
	spec core.EngineSpec,
	handle core.EngineHandle,
	sus suspender,
	state core.SessionState,
	attempt int,
) error {
	_, err := sus.call(ctx, func(ctx context.Context) (_ any, err error) {
		defer recoverInto(&err)
		if spec.Mode == core.ModeCooperative {
			return nil, e.gateway.InjectAsync(ctx, handle, state)
		}
		return nil, e.gateway.InjectSync(ctx, handle, state)
	})

	logging.SessionTransfer(x.logger, "inject", step.Name, step.EngineType.String(), err)

	if err != nil {
		if errors.Is(err, core.ErrCancelled) {
			return err
		}
		return fmt.Errorf("%w: inject into %s for step %q: %w", core.ErrSessionTransfer, step.EngineType, step.Name, err)
	}

	x.event(core.EventSessionInjected, step, index, attempt, nil)
	return nil
}

// capture extracts the session of a producing step after success. Failures
// are logged and never fail the step; a nil state leaves the carried session
// unchanged.
func (e *Executor) capture(
	ctx context.Context,
	x *execution,
	index int,
	step *workflow.Step,
	handle core.EngineHandle,
	attempt int,
) {
	state, err := e.extract(ctx, handle)
	logging.SessionTransfer(x.logger, "extract", step.Name, step.EngineType.String(), err)
	if err != nil {
		return
	}
	if state == nil {
		x.logger.Debug("No session captured", "step", step.Name)
		return
	}

	x.wf.SetSessionData(state)
	x.event(core.EventSessionCaptured, step, index, attempt, nil)

	if cbErr := e.callbacks.ExecuteCallbacks(ctx, CallbackOnSessionCaptured, &CallbackContext{
		RunID:    x.id,
		Workflow: x.wf,
		Step:     step,
		Index:    index,
		Attempt:  attempt,
		Session:  state,
	}); cbErr != nil {
		x.logger.Warn("Callback failed", "step", step.Name, "error", cbErr.Error())
	}
}

func (e *Executor) extract(ctx context.Context, handle core.EngineHandle) (_ core.SessionState, err error) {
	defer recoverInto(&err)
	return e.gateway.Extract(ctx, handle)
}

// fire runs callbacks whose errors only get logged.
func (e *Executor) fire(
	ctx context.Context,
	x *execution,
	t CallbackType,
	step *workflow.Step,
	index, attempt int,
	err error,
) {
	if cbErr := e.callbacks.ExecuteCallbacks(ctx, t, &CallbackContext{
		RunID:    x.id,
		Workflow: x.wf,
		Step:     step,
		Index:    index,
		Attempt:  attempt,
		Err:      err,
	}); cbErr != nil {
		x.logger.Warn("Callback failed", "step", step.Name, "error", cbErr.Error())
	}
}
