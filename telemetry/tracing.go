// Package telemetry traces guarded calls with OpenTelemetry.
package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracing with call-guard helpers.
type Tracer struct {
	tracer trace.Tracer
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return Noop()
	}
	return globalTracer
}

// Noop returns a tracer that records nothing.
func Noop() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
}

// NewTracer creates a tracer from the global otel provider.
func NewTracer(name string) *Tracer {
	return &Tracer{tracer: otel.Tracer(name)}
}

// NewTracerFromProvider creates a tracer from a specific provider.
func NewTracerFromProvider(tp trace.TracerProvider, name string) *Tracer {
	return &Tracer{tracer: tp.Tracer(name)}
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Guarded call spans ---

// CallSpanOptions describes the outcome of a guarded call.
type CallSpanOptions struct {
	Attempts int
	Code     string // error code of the final failure, if any
}

// StartCallSpan starts a span covering every attempt of one guarded call.
func (t *Tracer) StartCallSpan(ctx context.Context, guard, key, callID string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "guard."+guard, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("guard.name", guard),
		attribute.String("guard.key", key),
		attribute.String("guard.call_id", callID),
	)
	return ctx, span
}

// RecordRetry adds a retry event to the call span.
func RecordRetry(span trace.Span, attempt int, delay time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.Int("retry.attempt", attempt),
		attribute.Int64("retry.delay_ms", delay.Milliseconds()),
	}
	if err != nil {
		attrs = append(attrs, attribute.String("retry.error", truncate(err.Error(), 500)))
	}
	span.AddEvent("retry", trace.WithAttributes(attrs...))
}

// RecordWait adds a limiter wait event to the call span.
func RecordWait(span trace.Span, waited time.Duration) {
	span.AddEvent("rate_limited", trace.WithAttributes(
		attribute.Int64("limiter.wait_ms", waited.Milliseconds()),
	))
}

// EndCallSpan ends a call span with attributes.
func (t *Tracer) EndCallSpan(span trace.Span, opts CallSpanOptions, err error) {
	attrs := []attribute.KeyValue{
		attribute.Int("guard.attempts", opts.Attempts),
	}
	if opts.Code != "" {
		attrs = append(attrs, attribute.String("guard.error_code", opts.Code))
	}
	span.SetAttributes(attrs...)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

// --- LLM Spans ---

// LLMSpanOptions contains options for LLM call spans.
type LLMSpanOptions struct {
	Model     string
	Provider  string
	TokensIn  int
	TokensOut int
}

// StartLLMSpan starts a span for an LLM call.
func (t *Tracer) StartLLMSpan(ctx context.Context, provider string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "llm."+provider, trace.WithSpanKind(trace.SpanKindClient))
}

// EndLLMSpan ends an LLM span with attributes.
func (t *Tracer) EndLLMSpan(span trace.Span, opts LLMSpanOptions, err error) {
	span.SetAttributes(
		attribute.String("llm.model", opts.Model),
		attribute.String("llm.provider", opts.Provider),
		attribute.Int("llm.tokens.input", opts.TokensIn),
		attribute.Int("llm.tokens.output", opts.TokensOut),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

// --- Context Propagation ---

// InjectHeaders writes the trace context of ctx into outbound request headers.
func InjectHeaders(ctx context.Context, h http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(h))
}

// ExtractHeaders reads a trace context from inbound request headers.
func ExtractHeaders(ctx context.Context, h http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(h))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
