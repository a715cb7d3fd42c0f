// Package engine executes workflows.
//
// The Executor walks the steps of a workflow.Workflow in order and, for each
// step, resolves the engine handle, injects the carried session, calls the
// action, captures a new session when the step produces one, and applies the
// retry budget and failure policy.
//
// # Execution modes
//
// ExecuteSync runs on the caller's goroutine. Every action, session transfer
// and backoff wait blocks the caller.
//
// ExecuteAsync runs on a dedicated goroutine and streams core.StepEvent values
// while the run progresses. Steps bound to a cooperative engine (see
// core.ModeCooperative) are awaited: their actions, injections and backoff
// waits are abandoned as soon as the run is cancelled. Steps bound to a
// blocking engine are called directly on the run goroutine.
//
// Both modes share one per-step routine; they differ only in how they wait.
//
// # Failure handling
//
//   - A missing engine handle is a configuration error. The step is marked
//     Failed, the run ends and the error is returned. It is never retried.
//   - Any other failure (action error, panic, rejected injection) fails the
//     attempt. While the step has retries left the executor waits for the
//     backoff delay and tries again.
//   - Once the budget is exhausted the failure policy decides: Stop and Retry
//     end the run with false, Continue proceeds with the next step.
//   - A cancelled asynchronous run marks the step in flight Failed with
//     core.ErrCancelled and leaves the remaining steps Pending.
//
// # Observability
//
// Runs and attempts are traced with OpenTelemetry spans and measured with a
// duration histogram and attempt counters. Lifecycle callbacks (see
// CallbackManager) hook into every step transition. A core.RunStore, when
// configured, receives a record of every run.
//
// # Basic Usage
//
//	exec := engine.New(session.NewGateway(), func(o *engine.Options) {
//	    o.Logger = logger
//	})
//
//	ok, err := exec.ExecuteSync(ctx, wf, core.Handles{
//	    core.EngineBrowser: browserHandle,
//	    core.EngineWeb:     webHandle,
//	})
//	if err != nil {
//	    return err // configuration error
//	}
//	if !ok {
//	    for _, d := range wf.Details() {
//	        log.Printf("%s: %s %s", d.Name, d.Status, d.ErrorMessage)
//	    }
//	}
package engine
