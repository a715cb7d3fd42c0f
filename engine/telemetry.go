package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/enginebridge/workflow"
)

// instrumentationName is the scope name for executor tracing and metrics.
const instrumentationName = "github.com/hupe1980/enginebridge"

// telemetry wraps runs and step attempts in OpenTelemetry spans and records
// their durations. Without a configured provider the global noop
// implementations are used.
//
// Instruments:
//   - enginebridge.step.duration (Float64Histogram): attempt time in seconds,
//     with attributes: step, engine_type, status ("ok" or "error")
//   - enginebridge.step.attempts (Int64Counter): total attempts, same attributes
//   - enginebridge.run.executions (Int64Counter): total runs,
//     with attributes: workflow, mode, status
type telemetry struct {
	tracer       trace.Tracer
	stepDuration metric.Float64Histogram
	stepAttempts metric.Int64Counter
	runs         metric.Int64Counter
}

func newTelemetry(tracer trace.Tracer, meter metric.Meter) *telemetry {
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}

	// On error the API returns noop instruments.
	stepDuration, _ := meter.Float64Histogram(
		"enginebridge.step.duration",
		metric.WithDescription("Duration of step attempts in seconds"),
		metric.WithUnit("s"),
	)
	stepAttempts, _ := meter.Int64Counter(
		"enginebridge.step.attempts",
		metric.WithDescription("Total number of step attempts"),
		metric.WithUnit("{attempt}"),
	)
	runs, _ := meter.Int64Counter(
		"enginebridge.run.executions",
		metric.WithDescription("Total number of workflow runs"),
		metric.WithUnit("{run}"),
	)

	return &telemetry{
		tracer:       tracer,
		stepDuration: stepDuration,
		stepAttempts: stepAttempts,
		runs:         runs,
	}
}

func (t *telemetry) startRun(ctx context.Context, x *execution) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "enginebridge.workflow.execute",
		trace.WithAttributes(
			attribute.String("enginebridge.run_id", x.id),
			attribute.String("enginebridge.workflow", x.wf.Name),
			attribute.String("enginebridge.mode", x.mode),
			attribute.Int("enginebridge.step_count", x.wf.Len()),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t *telemetry) endRun(ctx context.Context, span trace.Span, x *execution, success bool, err error) {
	defer span.End()

	status := statusOf(success)
	span.SetAttributes(attribute.Bool("enginebridge.success", success))
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case !success:
		span.SetStatus(codes.Error, "workflow aborted")
	default:
		span.SetStatus(codes.Ok, "")
	}

	t.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", x.wf.Name),
		attribute.String("mode", x.mode),
		attribute.String("status", status),
	))
}

func (t *telemetry) startAttempt(ctx context.Context, step *workflow.Step, index, attempt int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "enginebridge.step.execute",
		trace.WithAttributes(
			attribute.String("enginebridge.step", step.Name),
			attribute.Int("enginebridge.step_index", index),
			attribute.String("enginebridge.engine_type", string(step.EngineType)),
			attribute.Int("enginebridge.attempt", attempt),
			attribute.Bool("enginebridge.requires_session", step.RequiresSession),
			attribute.Bool("enginebridge.produces_session", step.ProducesSession),
			attribute.Float64("enginebridge.timeout_seconds", step.Timeout.Seconds()),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t *telemetry) endAttempt(ctx context.Context, span trace.Span, step *workflow.Step, elapsed time.Duration, err error) {
	defer span.End()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	attrs := metric.WithAttributes(
		attribute.String("step", step.Name),
		attribute.String("engine_type", string(step.EngineType)),
		attribute.String("status", statusOf(err == nil)),
	)
	t.stepDuration.Record(ctx, elapsed.Seconds(), attrs)
	t.stepAttempts.Add(ctx, 1, attrs)
}

func statusOf(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
