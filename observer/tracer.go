package observer

import (
	"context"
	"fmt"

	"github.com/nevindra/memagent"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerOption configures NewTracer.
type TracerOption func(*otelTracer)

// WithTracerProvider records spans on tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) TracerOption {
	return func(t *otelTracer) { t.inner = tp.Tracer(scopeName) }
}

// NewTracer returns a memagent.Tracer that turns the agent's turn, LLM call
// and sandbox spans into OTEL spans. Without WithTracerProvider it uses the
// global provider, so call Init first or spans go nowhere.
func NewTracer(opts ...TracerOption) memagent.Tracer {
	t := &otelTracer{inner: otel.Tracer(scopeName)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type otelTracer struct {
	inner trace.Tracer
}

func (t *otelTracer) Start(ctx context.Context, name string, attrs ...memagent.SpanAttr) (context.Context, memagent.Span) {
	ctx, span := t.inner.Start(ctx, name, trace.WithAttributes(convertAttrs(attrs)...))
	return ctx, otelSpan{span}
}

type otelSpan struct {
	trace.Span
}

func (s otelSpan) SetAttr(attrs ...memagent.SpanAttr) {
	s.SetAttributes(convertAttrs(attrs)...)
}

func (s otelSpan) Event(name string, attrs ...memagent.SpanAttr) {
	s.AddEvent(name, trace.WithAttributes(convertAttrs(attrs)...))
}

func (s otelSpan) Error(err error) {
	s.RecordError(err)
	s.SetStatus(codes.Error, err.Error())
}

func (s otelSpan) End() { s.Span.End() }

func convertAttrs(attrs []memagent.SpanAttr) []attribute.KeyValue {
	out := make([]attribute.KeyValue, len(attrs))
	for i, a := range attrs {
		switch v := a.Value.(type) {
		case string:
			out[i] = attribute.String(a.Key, v)
		case int:
			out[i] = attribute.Int(a.Key, v)
		case int64:
			out[i] = attribute.Int64(a.Key, v)
		case float64:
			out[i] = attribute.Float64(a.Key, v)
		case bool:
			out[i] = attribute.Bool(a.Key, v)
		default:
			out[i] = attribute.String(a.Key, fmt.Sprint(v))
		}
	}
	return out
}

var (
	_ memagent.Tracer = (*otelTracer)(nil)
	_ memagent.Span   = otelSpan{}
)
