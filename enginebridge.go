// Package enginebridge provides a high-level facade over the workflow
// executor and its collaborators (engine table, session gateway, run store,
// logging and telemetry). Most applications interact with this package by:
//  1. Creating a Bridge via New() or NewFromConfig()
//  2. Defining workflows in code (DefineWorkflow) or YAML (LoadWorkflow)
//  3. Executing them synchronously (ExecuteSync) or asynchronously
//     (ExecuteAsync, ExecuteAsyncWait) with a set of engine handles
//
// The facade delegates orchestration to engine.Executor. All defaults are
// safe for local development and testing: a no-op session gateway, an
// in-memory run store and a no-op logger.
package enginebridge

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/enginebridge/backoff"
	"github.com/hupe1980/enginebridge/config"
	"github.com/hupe1980/enginebridge/core"
	"github.com/hupe1980/enginebridge/engine"
	"github.com/hupe1980/enginebridge/logging"
	"github.com/hupe1980/enginebridge/runner"
	"github.com/hupe1980/enginebridge/session"
	"github.com/hupe1980/enginebridge/store"
	"github.com/hupe1980/enginebridge/workflow"
)

// Options configures the Bridge instance.
type Options struct {
	// EngineConfig tunes the executor (event buffer, skipped marking).
	EngineConfig engine.Config

	// EngineTable maps engine types to handle keys and modes. Defaults to
	// core.DefaultEngineTable().
	EngineTable *core.EngineTable

	// Gateway transfers sessions between engines. Defaults to
	// core.NoOpGateway.
	Gateway core.SessionGateway

	// RunStore persists run history. Defaults to an in-memory store.
	RunStore core.RunStore

	// Backoff and Timer control retry delays.
	Backoff backoff.Strategy
	Timer   backoff.Timer

	// Tracer and Meter default to the global OpenTelemetry providers.
	Tracer trace.Tracer
	Meter  metric.Meter

	// Runner configures ExecuteAll.
	Runner runner.Options

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Bridge is the high-level facade aggregating the executor and its services.
type Bridge struct {
	opts     Options
	executor *engine.Executor
	actions  *workflow.ActionRegistry
	closers  []func() error
}

// New creates a new Bridge with optional overrides.
func New(optFns ...func(o *Options)) *Bridge {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		EngineTable:  core.DefaultEngineTable(),
		Gateway:      core.NoOpGateway{},
		RunStore:     store.NewInMemoryStore(),
		Runner:       runner.Options{MaxConcurrency: 4},
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.EngineTable == nil {
		opts.EngineTable = core.DefaultEngineTable()
	}

	x := engine.New(opts.Gateway, func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.RunStore = opts.RunStore
		o.Logger = opts.Logger
		o.Tracer = opts.Tracer
		o.Meter = opts.Meter
		if opts.Backoff != nil {
			o.Backoff = opts.Backoff
		}
		if opts.Timer != nil {
			o.Timer = opts.Timer
		}
	})

	return &Bridge{opts: opts, executor: x, actions: workflow.NewActionRegistry()}
}

// NewFromConfig builds a Bridge from file configuration: logger, backoff,
// run store, cookie gateway and runner settings. Additional overrides are
// applied afterwards. Close releases the run store.
func NewFromConfig(cfg config.Config, optFns ...func(o *Options)) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger()

	runStore, closeStore, err := cfg.OpenStore()
	if err != nil {
		return nil, fmt.Errorf("enginebridge: open run store: %w", err)
	}

	b := New(append([]func(o *Options){func(o *Options) {
		o.EngineConfig = engine.Config{
			EventBufferSize: cfg.Executor.EventBufferSize,
			MarkSkipped:     cfg.Executor.MarkSkipped,
		}
		o.Gateway = session.NewGateway(cfg.GatewayOptions(), func(so *session.Options) {
			so.Logger = logger
		})
		o.RunStore = runStore
		o.Backoff = cfg.Backoff()
		cfg.RunnerOptions()(&o.Runner)
		o.Logger = logger
	}}, optFns...)...)
	b.closers = append(b.closers, closeStore)

	return b, nil
}

// Executor exposes the underlying executor, e.g. to register callbacks.
func (b *Bridge) Executor() *engine.Executor { return b.executor }

// RunStore returns the configured run store (may be nil).
func (b *Bridge) RunStore() core.RunStore { return b.opts.RunStore }

// RegisterAction makes an action available to LoadWorkflow definitions.
func (b *Bridge) RegisterAction(name string, action core.Action) {
	b.actions.Register(name, action)
}

// DefineWorkflow creates an empty workflow bound to the bridge's engine table.
func (b *Bridge) DefineWorkflow(name, description string, metadata map[string]any) *workflow.Workflow {
	return workflow.DefineWithTable(b.opts.EngineTable, name, description, metadata)
}

// LoadWorkflow builds a workflow from a YAML definition file, resolving
// actions registered with RegisterAction.
func (b *Bridge) LoadWorkflow(path string) (*workflow.Workflow, error) {
	def, err := workflow.LoadDefinitionFile(path)
	if err != nil {
		return nil, err
	}
	return def.Build(b.opts.EngineTable, b.actions)
}

// ReadWorkflow builds a workflow from a YAML definition read from r.
func (b *Bridge) ReadWorkflow(r io.Reader) (*workflow.Workflow, error) {
	def, err := workflow.LoadDefinitionReader(r)
	if err != nil {
		return nil, err
	}
	return def.Build(b.opts.EngineTable, b.actions)
}

// RenderWorkflow builds a workflow from a YAML definition template,
// expanding {{ }} markers with vars first.
func (b *Bridge) RenderWorkflow(data []byte, vars map[string]any) (*workflow.Workflow, error) {
	def, err := workflow.ParseDefinitionTemplate(data, vars)
	if err != nil {
		return nil, err
	}
	return def.Build(b.opts.EngineTable, b.actions)
}

// ExecuteSync runs wf to completion on the calling goroutine.
func (b *Bridge) ExecuteSync(ctx context.Context, wf *workflow.Workflow, handles core.Handles) (bool, error) {
	return b.executor.ExecuteSync(ctx, wf, handles)
}

// ExecuteAsync starts wf in the background, returning the run ID, the event
// stream and the outcome channel.
func (b *Bridge) ExecuteAsync(
	ctx context.Context,
	wf *workflow.Workflow,
	handles core.Handles,
) (string, <-chan core.StepEvent, <-chan core.Outcome, error) {
	return b.executor.ExecuteAsync(ctx, wf, handles)
}

// ExecuteAsyncWait runs wf asynchronously and collects all events.
func (b *Bridge) ExecuteAsyncWait(
	ctx context.Context,
	wf *workflow.Workflow,
	handles core.Handles,
) (bool, []core.StepEvent, error) {
	return b.executor.ExecuteAsyncWait(ctx, wf, handles)
}

// ExecuteAll runs independent workflows concurrently.
func (b *Bridge) ExecuteAll(ctx context.Context, jobs ...runner.Job) ([]runner.Result, error) {
	r := runner.New(b.executor, func(o *runner.Options) {
		*o = b.opts.Runner
		if o.Logger == nil {
			o.Logger = b.opts.Logger
		}
	})
	return r.Run(ctx, jobs...)
}

// StopRun cancels an asynchronous run.
func (b *Bridge) StopRun(runID string) error { return b.executor.StopRun(runID) }

// Status summarizes wf.
func (b *Bridge) Status(wf *workflow.Workflow) workflow.Status { return wf.Status() }

// StepDetails returns per-step details of wf in execution order.
func (b *Bridge) StepDetails(wf *workflow.Workflow) []workflow.StepDetails { return wf.Details() }

// Reset returns wf to its initial state.
func (b *Bridge) Reset(wf *workflow.Workflow) error { return wf.Reset() }

// History lists the most recent runs of a workflow, newest first.
func (b *Bridge) History(ctx context.Context, workflowName string, limit int) ([]core.RunRecord, error) {
	if b.opts.RunStore == nil {
		return nil, nil
	}
	return b.opts.RunStore.List(ctx, workflowName, limit)
}

// Close releases resources opened by NewFromConfig.
func (b *Bridge) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}
