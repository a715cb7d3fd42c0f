package runner

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/enginebridge/core"
	"github.com/hupe1980/enginebridge/engine"
	"github.com/hupe1980/enginebridge/logging"
	"github.com/hupe1980/enginebridge/workflow"
)

var (
	// ErrSharedHandle is returned when two jobs reference the same engine handle.
	ErrSharedHandle = errors.New("enginebridge: engine handle shared between jobs")

	// ErrDuplicateWorkflow is returned when a workflow appears in two jobs.
	ErrDuplicateWorkflow = errors.New("enginebridge: workflow scheduled twice")

	// ErrJobFailed is returned by Run in fail-fast mode once a job fails.
	ErrJobFailed = errors.New("enginebridge: job failed")
)

// Job is one workflow run together with the handles it owns.
type Job struct {
	Workflow *workflow.Workflow
	Handles  core.Handles
}

// Result is the outcome of one job.
type Result struct {
	Index    int
	Workflow string
	Success  bool
	Err      error
	Events   []core.StepEvent
	Duration time.Duration
}

// Options holds configuration overrides passed to New().
type Options struct {
	// MaxConcurrency limits how many workflows run at once. Zero or less
	// means no limit.
	MaxConcurrency int
	// Async runs every job through Executor.ExecuteAsyncWait and collects its
	// events. Otherwise jobs use ExecuteSync.
	Async bool
	// FailFast cancels the remaining jobs once one fails.
	FailFast bool
	// Logger provides structured logging.
	Logger logging.Logger
}

// Runner executes independent workflows concurrently on one Executor. Steps
// of a single workflow stay sequential; only distinct workflows overlap.
// Public methods are safe for concurrent use.
type Runner struct {
	executor       *engine.Executor
	maxConcurrency int
	async          bool
	failFast       bool
	logger         logging.Logger
}

// New constructs a Runner with optional overrides.
func New(executor *engine.Executor, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxConcurrency: 4,
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Runner{
		executor:       executor,
		maxConcurrency: opts.MaxConcurrency,
		async:          opts.Async,
		failFast:       opts.FailFast,
		logger:         opts.Logger,
	}
}

// Run executes jobs and returns one Result per job in job order. Jobs must
// not share workflows or engine handles. Workflow failures are reported in
// the results; the returned error is non-nil only for invalid job sets or,
// in fail-fast mode, for the first failing job.
func (r *Runner) Run(ctx context.Context, jobs ...Job) ([]Result, error) {
	if err := validate(jobs); err != nil {
		return nil, err
	}

	results := make([]Result, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	if r.maxConcurrency > 0 {
		g.SetLimit(r.maxConcurrency)
	}

	for i, job := range jobs {
		g.Go(func() error {
			res := r.runJob(gctx, i, job)
			results[i] = res

			if r.failFast && (!res.Success || res.Err != nil) {
				return fmt.Errorf("%w: workflow %q: %v", ErrJobFailed, res.Workflow, res.Err)
			}
			return nil
		})
	}

	err := g.Wait()

	r.logger.Info("Runner finished", "jobs", len(jobs), "failed", countFailed(results))

	return results, err
}

func (r *Runner) runJob(ctx context.Context, index int, job Job) Result {
	res := Result{Index: index, Workflow: job.Workflow.Name}
	start := time.Now()

	if r.async {
		res.Success, res.Events, res.Err = r.executor.ExecuteAsyncWait(ctx, job.Workflow, job.Handles)
	} else {
		res.Success, res.Err = r.executor.ExecuteSync(ctx, job.Workflow, job.Handles)
	}

	res.Duration = time.Since(start)
	logging.RunExecution(r.logger, job.Workflow.Name, job.Workflow.Len(), res.Duration, res.Success, res.Err)
	return res
}

// validate rejects nil workflows, duplicated workflows and handles used by
// more than one job. Handles of non-comparable types cannot be compared and
// are not checked.
func validate(jobs []Job) error {
	workflows := make(map[*workflow.Workflow]int, len(jobs))
	handles := make(map[core.EngineHandle]int)

	for i, job := range jobs {
		if job.Workflow == nil {
			return fmt.Errorf("enginebridge: job %d has no workflow", i)
		}
		if j, ok := workflows[job.Workflow]; ok {
			return fmt.Errorf("%w: %q in jobs %d and %d", ErrDuplicateWorkflow, job.Workflow.Name, j, i)
		}
		workflows[job.Workflow] = i

		for key, h := range job.Handles {
			if h == nil || !reflect.TypeOf(h).Comparable() {
				continue
			}
			if j, ok := handles[h]; ok && j != i {
				return fmt.Errorf("%w: %s handle in jobs %d and %d", ErrSharedHandle, key, j, i)
			}
			handles[h] = i
		}
	}
	return nil
}

func countFailed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Success || r.Err != nil {
			n++
		}
	}
	return n
}
