package observer

import (
	"context"
	"time"

	"github.com/nevindra/memagent"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Chatter is the part of *memagent.Agent the turn wrapper needs.
type Chatter interface {
	ID() string
	Chat(ctx context.Context, message string) memagent.Response
}

// ObservedAgent wraps a Chatter to emit one span, metric set and log record
// per user turn. LLM calls and snippets made during the turn become child
// spans via context propagation.
type ObservedAgent struct {
	inner Chatter
	inst  *Instruments
}

// WrapAgent returns an instrumented Chatter.
func WrapAgent(inner Chatter, inst *Instruments) *ObservedAgent {
	return &ObservedAgent{inner: inner, inst: inst}
}

func (o *ObservedAgent) ID() string { return o.inner.ID() }

// Chat wraps the inner Chat, emitting an agent.chat span that serves as the
// parent for all inner operations.
func (o *ObservedAgent) Chat(ctx context.Context, message string) memagent.Response {
	ctx, span := o.inst.Tracer.Start(ctx, "agent.chat", trace.WithAttributes(
		AttrAgentID.String(o.inner.ID()),
	))
	defer span.End()
	start := time.Now()

	resp := o.inner.Chat(ctx, message)

	durationMs := float64(time.Since(start).Milliseconds())
	status := turnStatus(resp)
	if status != "ok" {
		span.AddEvent("agent." + status)
		span.SetStatus(codes.Error, status)
	}

	span.SetAttributes(
		AttrAgentStatus.String(status),
		AttrAgentToolTurns.Int(resp.ToolTurns),
		AttrAgentLLMCalls.Int(resp.LLMCalls),
		AttrTokensInput.Int(resp.Usage.InputTokens),
		AttrTokensOutput.Int(resp.Usage.OutputTokens),
	)

	// Metrics
	o.inst.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	o.inst.TurnDuration.Record(ctx, durationMs)
	o.inst.TurnToolTurns.Record(ctx, int64(resp.ToolTurns))

	// Structured log
	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("turn completed"))
	rec.AddAttributes(
		otellog.String("agent.id", o.inner.ID()),
		otellog.String("agent.status", status),
		otellog.Int("agent.tool_turns", resp.ToolTurns),
		otellog.Int("agent.llm_calls", resp.LLMCalls),
		otellog.Int("tokens.input", resp.Usage.InputTokens),
		otellog.Int("tokens.output", resp.Usage.OutputTokens),
		otellog.Float64("duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return resp
}

// turnStatus returns "ok" or the first flag of resp.
func turnStatus(resp memagent.Response) string {
	if flags := resp.Flags(); len(flags) > 0 {
		return flags[0]
	}
	return "ok"
}

// compile-time check
var _ Chatter = (*memagent.Agent)(nil)
