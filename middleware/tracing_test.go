package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/svetoslav0421/nocode-claude-ai/id"
	"github.com/svetoslav0421/nocode-claude-ai/job"
	mw "github.com/svetoslav0421/nocode-claude-ai/middleware"
)

func setupTestTracer() (*tracetest.SpanRecorder, trace.Tracer) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, tp.Tracer("test")
}

func newTestJob() *job.Job {
	return &job.Job{
		ID:          id.NewJobID(),
		Type:        job.TypeGeneration,
		Priority:    5,
		Attempts:    1,
		MaxAttempts: 3,
	}
}

func TestTracing_SpanAttributes(t *testing.T) {
	sr, tracer := setupTestTracer()
	j := newTestJob()

	err := mw.TracingWithTracer(tracer)(context.Background(), j, func(_ context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "nocode.job.execute" {
		t.Errorf("span name = %q", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("expected status Ok, got %v", spans[0].Status().Code)
	}

	expected := map[string]any{
		"nocode.job.id":           j.ID.String(),
		"nocode.job.type":         "generation",
		"nocode.job.attempt":      int64(2),
		"nocode.job.max_attempts": int64(3),
		"nocode.job.priority":     int64(5),
	}
	attrMap := make(map[string]any)
	for _, a := range spans[0].Attributes() {
		switch a.Value.Type() {
		case attribute.STRING:
			attrMap[string(a.Key)] = a.Value.AsString()
		case attribute.INT64:
			attrMap[string(a.Key)] = a.Value.AsInt64()
		}
	}
	for key, want := range expected {
		if got := attrMap[key]; got != want {
			t.Errorf("attribute %q = %v, want %v", key, got, want)
		}
	}
}

func TestTracing_Error_SetsErrorStatus(t *testing.T) {
	sr, tracer := setupTestTracer()

	handlerErr := job.Permanent(errors.New("handler failed"))
	err := mw.TracingWithTracer(tracer)(context.Background(), newTestJob(), func(_ context.Context) error {
		return handlerErr
	})
	if !errors.Is(err, handlerErr) {
		t.Fatalf("expected handler error, got %v", err)
	}

	span := sr.Ended()[0]
	if span.Status().Code != codes.Error {
		t.Errorf("expected status Error, got %v", span.Status().Code)
	}

	exception, permanent := false, false
	for _, ev := range span.Events() {
		if ev.Name == "exception" {
			exception = true
		}
	}
	for _, a := range span.Attributes() {
		if a.Key == "nocode.job.permanent" && a.Value.AsBool() {
			permanent = true
		}
	}
	if !exception || !permanent {
		t.Errorf("exception event=%v permanent attribute=%v", exception, permanent)
	}
}

func TestTracing_PropagatesContext(t *testing.T) {
	sr, tracer := setupTestTracer()

	var handlerSpanCtx trace.SpanContext
	_ = mw.TracingWithTracer(tracer)(context.Background(), newTestJob(), func(ctx context.Context) error {
		handlerSpanCtx = trace.SpanFromContext(ctx).SpanContext()
		return nil
	})

	if !handlerSpanCtx.IsValid() {
		t.Fatal("expected valid span context in handler")
	}
	if handlerSpanCtx.TraceID() != sr.Ended()[0].SpanContext().TraceID() {
		t.Error("handler span context trace ID does not match middleware span")
	}
}

func TestTracing_DefaultNoopSafe(t *testing.T) {
	called := false
	err := mw.Tracing()(context.Background(), newTestJob(), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("err=%v called=%v", err, called)
	}
}
