package middleware

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/waypoint/pkg/navigation"
	"github.com/vango-dev/waypoint/pkg/router"
)

func newRecorder(t *testing.T) (*tracetest.SpanRecorder, trace.TracerProvider) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return rec, tp
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	return attrs
}

func TestOpenTelemetryMiddleware_RecordsStepSpan(t *testing.T) {
	rec, tp := newRecorder(t)

	mw := OpenTelemetry(
		WithTracerProvider(tp),
		WithIncludeSearch(true),
		WithAttributeExtractor(func(*navigation.Step) []attribute.KeyValue {
			return []attribute.KeyValue{attribute.String("test.attr", "ok")}
		}),
	)

	err := mw.Handle(context.Background(), newStep(navigation.StepLoader, "/posts/$postId"), func(ctx context.Context) error {
		span := SpanFromContext(ctx)
		if !span.SpanContext().IsValid() || !span.IsRecording() {
			t.Error("expected a recording span in the hook context")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("len(spans) = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "waypoint.loader /posts/$postId" {
		t.Errorf("span name = %q", span.Name())
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", span.Status().Code)
	}

	attrs := spanAttrs(span)
	want := map[attribute.Key]string{
		"waypoint.step":         "loader",
		"waypoint.route":        "/posts/$postId",
		"waypoint.intent_id":    "intent-1",
		"waypoint.pathname":     "/posts/1",
		"waypoint.cause":        "enter",
		"waypoint.param.postId": "1",
		"waypoint.search":       "?q=go",
		"test.attr":             "ok",
	}
	for k, v := range want {
		if got := attrs[k].AsString(); got != v {
			t.Errorf("attribute %s = %q, want %q", k, got, v)
		}
	}
}

func TestOpenTelemetryMiddleware_ErrorStatus(t *testing.T) {
	rec, tp := newRecorder(t)
	mw := OpenTelemetry(WithTracerProvider(tp), WithIncludeParams(false))

	wantErr := errors.New("db down")
	err := mw.Handle(context.Background(), newStep(navigation.StepLoader, "/posts"), func(context.Context) error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("err=%v, want %v", err, wantErr)
	}

	span := rec.Ended()[0]
	if span.Status().Code != codes.Error || span.Status().Description != "db down" {
		t.Errorf("status = %+v, want Error(db down)", span.Status())
	}
	if _, ok := spanAttrs(span)["waypoint.param.postId"]; ok {
		t.Error("params recorded with IncludeParams(false)")
	}
	if _, ok := spanAttrs(span)["waypoint.search"]; ok {
		t.Error("search recorded without IncludeSearch")
	}
}

func TestOpenTelemetryMiddleware_SignalsAreEvents(t *testing.T) {
	rec, tp := newRecorder(t)
	mw := OpenTelemetry(WithTracerProvider(tp))

	signals := []struct {
		err   error
		event string
	}{
		{router.Redirect(router.RedirectOptions{To: "/login"}), "redirect"},
		{router.NotFound(router.RootRouteID), "not_found"},
	}
	for _, s := range signals {
		_ = mw.Handle(context.Background(), newStep(navigation.StepBeforeLoad, "/admin"), func(context.Context) error { return s.err })
	}

	spans := rec.Ended()
	if len(spans) != len(signals) {
		t.Fatalf("len(spans) = %d, want %d", len(spans), len(signals))
	}
	for i, span := range spans {
		if span.Status().Code != codes.Ok {
			t.Errorf("%s: status = %v, want Ok", signals[i].event, span.Status().Code)
		}
		events := span.Events()
		if len(events) != 1 || events[0].Name != signals[i].event {
			t.Errorf("events = %v, want one %q", events, signals[i].event)
		}
	}
}

func TestOpenTelemetryMiddleware_FilterSkipsTracing(t *testing.T) {
	rec, tp := newRecorder(t)
	mw := OpenTelemetry(
		WithTracerProvider(tp),
		WithStepFilter(func(step *navigation.Step) bool { return step.Kind == navigation.StepLoader }),
	)

	called := false
	err := mw.Handle(context.Background(), newStep(navigation.StepValidateSearch, "/search"), func(ctx context.Context) error {
		called = true
		if SpanFromContext(ctx).SpanContext().IsValid() {
			t.Error("filtered step received a span")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected next to be called")
	}
	if n := len(rec.Ended()); n != 0 {
		t.Errorf("recorded %d spans for a filtered step", n)
	}
}

func TestSpanFromContext_NoSpan(t *testing.T) {
	span := SpanFromContext(context.Background())
	if span == nil {
		t.Fatal("expected a non-nil no-op span")
	}
	if span.SpanContext().IsValid() {
		t.Error("expected an invalid span context without a span")
	}
}
