package telemetry

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newRecordingTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewTracerFromProvider(tp, "test"), rec
}

func attr(span sdktrace.ReadOnlySpan, key string) string {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value.Emit()
		}
	}
	return ""
}

func TestCallSpan_Success(t *testing.T) {
	tracer, rec := newRecordingTracer(t)

	_, span := tracer.StartCallSpan(context.Background(), "github", "api.github.com", "id-1")
	RecordWait(span, 200*time.Millisecond)
	tracer.EndCallSpan(span, CallSpanOptions{Attempts: 1}, nil)

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "guard.github" {
		t.Errorf("unexpected span name %q", s.Name())
	}
	if attr(s, "guard.key") != "api.github.com" {
		t.Errorf("expected key attribute, got %q", attr(s, "guard.key"))
	}
	if attr(s, "guard.call_id") != "id-1" {
		t.Errorf("expected call id attribute, got %q", attr(s, "guard.call_id"))
	}
	if attr(s, "guard.attempts") != "1" {
		t.Errorf("expected attempts=1, got %q", attr(s, "guard.attempts"))
	}
	if s.Status().Code != codes.Ok {
		t.Errorf("expected Ok status, got %v", s.Status().Code)
	}
	if len(s.Events()) != 1 || s.Events()[0].Name != "rate_limited" {
		t.Errorf("expected one rate_limited event, got %v", s.Events())
	}
}

func TestCallSpan_Failure(t *testing.T) {
	tracer, rec := newRecordingTracer(t)

	_, span := tracer.StartCallSpan(context.Background(), "jira", "jira", "id-2")
	RecordRetry(span, 1, time.Second, errors.New("503"))
	RecordRetry(span, 2, 2*time.Second, errors.New("503"))
	tracer.EndCallSpan(span, CallSpanOptions{Attempts: 3, Code: "UNAVAILABLE"}, errors.New("503"))

	s := rec.Ended()[0]
	if s.Status().Code != codes.Error {
		t.Errorf("expected Error status, got %v", s.Status().Code)
	}
	if attr(s, "guard.error_code") != "UNAVAILABLE" {
		t.Errorf("expected error code attribute, got %q", attr(s, "guard.error_code"))
	}

	retries := 0
	for _, ev := range s.Events() {
		if ev.Name == "retry" {
			retries++
		}
	}
	if retries != 2 {
		t.Errorf("expected 2 retry events, got %d", retries)
	}
}

func TestLLMSpan(t *testing.T) {
	tracer, rec := newRecordingTracer(t)

	_, span := tracer.StartLLMSpan(context.Background(), "anthropic")
	tracer.EndLLMSpan(span, LLMSpanOptions{Model: "claude", Provider: "anthropic", TokensIn: 10, TokensOut: 5}, nil)

	s := rec.Ended()[0]
	if s.Name() != "llm.anthropic" {
		t.Errorf("unexpected span name %q", s.Name())
	}
	if attr(s, "llm.tokens.output") != "5" {
		t.Errorf("expected output tokens, got %q", attr(s, "llm.tokens.output"))
	}
}

func TestGetTracer_DefaultsToNoop(t *testing.T) {
	SetGlobalTracer(nil)
	tr := GetTracer()
	_, span := tr.StartCallSpan(context.Background(), "g", "k", "id")
	if span.SpanContext().IsValid() {
		t.Error("noop tracer should produce invalid span contexts")
	}
	tr.EndCallSpan(span, CallSpanOptions{}, nil)
}

func TestInitProvider_WritesSpans(t *testing.T) {
	var buf bytes.Buffer
	p, err := InitProvider(context.Background(), ProviderConfig{
		ServiceName:    "callguard-test",
		ServiceVersion: "1.2.3",
		Output:         &buf,
	})
	if err != nil {
		t.Fatalf("InitProvider() error = %v", err)
	}
	defer SetGlobalTracer(nil)

	_, span := p.Tracer().StartCallSpan(context.Background(), "simulate", "k", "id")
	p.Tracer().EndCallSpan(span, CallSpanOptions{Attempts: 1}, nil)

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !strings.Contains(buf.String(), "guard.simulate") {
		t.Errorf("expected exported span, got: %s", buf.String())
	}
	for _, want := range []string{"callguard-test", "1.2.3"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("expected resource attribute %q in: %s", want, buf.String())
		}
	}
	if GetTracer() != p.Tracer() {
		t.Error("InitProvider should install the global tracer")
	}
}

func TestInjectHeaders(t *testing.T) {
	var buf bytes.Buffer
	p, err := InitProvider(context.Background(), ProviderConfig{Output: &buf})
	if err != nil {
		t.Fatalf("InitProvider() error = %v", err)
	}
	defer p.Shutdown(context.Background())
	defer SetGlobalTracer(nil)

	ctx, span := p.Tracer().StartSpan(context.Background(), "outbound")
	defer span.End()

	h := http.Header{}
	InjectHeaders(ctx, h)
	if h.Get("traceparent") == "" {
		t.Fatal("expected traceparent header")
	}

	got := trace.SpanContextFromContext(ExtractHeaders(context.Background(), h))
	if got.TraceID() != span.SpanContext().TraceID() {
		t.Errorf("expected trace %s, got %s", span.SpanContext().TraceID(), got.TraceID())
	}
}
