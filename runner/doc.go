// Package runner runs several independent workflows at the same time.
//
// Every Job pairs a workflow with the engine handles it owns. The Runner
// checks that no two jobs share a workflow or a handle, then executes the
// jobs on one engine.Executor with bounded concurrency (errgroup). Steps of
// one workflow never overlap; only whole workflows run in parallel.
//
//	r := runner.New(exec, func(o *runner.Options) { o.MaxConcurrency = 2 })
//	results, err := r.Run(ctx,
//	    runner.Job{Workflow: storeA, Handles: handlesA},
//	    runner.Job{Workflow: storeB, Handles: handlesB},
//	)
package runner
