package observer

import (
	"context"
	"fmt"
	"time"

	"github.com/nevindra/memagent/code"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedRunner wraps a code.Runner with OTEL instrumentation. The status
// of a run is "ok", the failure kind (e.g. "timeout", "scope_error"), or
// "error" when the runner itself failed.
type ObservedRunner struct {
	inner code.Runner
	inst  *Instruments
	name  string
}

// WrapRunner returns an instrumented runner.
func WrapRunner(inner code.Runner, inst *Instruments) *ObservedRunner {
	return &ObservedRunner{inner: inner, inst: inst, name: fmt.Sprintf("%T", inner)}
}

func (o *ObservedRunner) Run(ctx context.Context, req code.Request) (code.Result, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "sandbox.run", trace.WithAttributes(
		AttrSandboxRunner.String(o.name),
	))
	defer span.End()
	start := time.Now()

	result, err := o.inner.Run(ctx, req)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if result.Failure != nil {
		status = result.Failure.Kind
		span.SetStatus(codes.Error, result.Failure.Message)
	}
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		AttrSandboxStatus.String(status),
		AttrSandboxVars.Int(len(result.Vars)),
		AttrSandboxStdoutLen.Int(len(result.Stdout)),
	)

	o.inst.SnippetRuns.Add(ctx, 1, metric.WithAttributes(
		AttrSandboxRunner.String(o.name),
		attribute.String("status", status),
	))
	o.inst.SnippetDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrSandboxRunner.String(o.name),
	))

	// Structured log
	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("snippet executed"))
	rec.AddAttributes(
		otellog.String("sandbox.runner", o.name),
		otellog.String("sandbox.status", status),
		otellog.Int("sandbox.vars", len(result.Vars)),
		otellog.Float64("sandbox.duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return result, err
}

// compile-time check
var _ code.Runner = (*ObservedRunner)(nil)
