package otel

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/PipeOpsHQ/rivalscope/observe"
)

func newRecorder(t *testing.T) (*Sink, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewSink(tp), exporter
}

func TestSinkEmitsSpanWithTypedAttributes(t *testing.T) {
	sink, exporter := newRecorder(t)
	now := time.Now()
	err := sink.Emit(context.Background(), observe.Event{
		Kind:       observe.KindGate,
		Name:       "plan",
		SessionID:  "sess-456",
		Status:     observe.StatusCompleted,
		Timestamp:  now,
		DurationMs: 150,
		Attributes: map[string]any{"approval_status": "pending_plan_approval", "tasks": 3, "llm_generated": false},
	})
	if err != nil {
		t.Fatal(err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "rivalscope.gate.plan" {
		t.Errorf("unexpected span name %q", span.Name)
	}
	if got := span.EndTime.Sub(span.StartTime); got != 150*time.Millisecond {
		t.Errorf("expected 150ms span, got %v", got)
	}

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes {
		attrs[kv.Key] = kv.Value
	}
	if v := attrs["rivalscope.session.id"]; v.AsString() != "sess-456" {
		t.Errorf("session id attribute: %v", v.Emit())
	}
	if v := attrs["rivalscope.attr.tasks"]; v.Type() != attribute.INT64 || v.AsInt64() != 3 {
		t.Errorf("tasks should be an int attribute, got %v (%v)", v.Emit(), v.Type())
	}
	if v := attrs["rivalscope.attr.llm_generated"]; v.Type() != attribute.BOOL {
		t.Errorf("llm_generated should be a bool attribute, got %v", v.Type())
	}
}

func TestSessionSpansShareTrace(t *testing.T) {
	sink, exporter := newRecorder(t)
	for _, name := range []string{"plan", "research"} {
		_ = sink.Emit(context.Background(), observe.Event{Kind: observe.KindStage, Name: name, SessionID: "s1"})
	}
	_ = sink.Emit(context.Background(), observe.Event{Kind: observe.KindStage, Name: "plan", SessionID: "s2"})

	spans := exporter.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}
	if spans[0].SpanContext.TraceID() != spans[1].SpanContext.TraceID() {
		t.Fatalf("spans of one session should share a trace")
	}
	if spans[0].SpanContext.TraceID() == spans[2].SpanContext.TraceID() {
		t.Fatalf("distinct sessions should not share a trace")
	}
	if spans[0].SpanContext.TraceID() != SessionTraceID("s1") {
		t.Fatalf("trace id should be derived from the session id")
	}
}

func TestSpanName(t *testing.T) {
	tests := []struct {
		event observe.Event
		want  string
	}{
		{observe.Event{Kind: observe.KindProvider, Provider: "openai"}, "rivalscope.llm.openai"},
		{observe.Event{Kind: observe.KindProvider}, "rivalscope.llm.generate"},
		{observe.Event{Kind: observe.KindTool, ToolName: "tavily"}, "rivalscope.tool.tavily"},
		{observe.Event{Kind: observe.KindStage, Name: "research"}, "rivalscope.stage.research"},
		{observe.Event{Kind: observe.KindSession}, "rivalscope.session"},
		{observe.Event{Kind: observe.KindCheckpoint}, "rivalscope.checkpoint"},
		{observe.Event{Kind: observe.KindCache}, "rivalscope.cache"},
		{observe.Event{Kind: observe.KindCustom, Name: "custom_event"}, "rivalscope.custom_event"},
		{observe.Event{}, "rivalscope.event"},
	}
	for _, tt := range tests {
		if got := SpanName(tt.event); got != tt.want {
			t.Errorf("SpanName(%+v) = %q, want %q", tt.event, got, tt.want)
		}
	}
}

func TestSinkDegradedIsError(t *testing.T) {
	sink, exporter := newRecorder(t)
	_ = sink.Emit(context.Background(), observe.Event{
		Kind:   observe.KindStage,
		Name:   "research",
		Status: observe.StatusDegraded,
		Error:  "search collaborator unavailable",
	})
	spans := exporter.GetSpans()
	if len(spans) != 1 || len(spans[0].Events) == 0 {
		t.Fatalf("expected one span with a recorded error, got %+v", spans)
	}
}

func TestNilTracerProvider(t *testing.T) {
	if err := NewSink(nil).Emit(context.Background(), observe.Event{Kind: observe.KindSession}); err != nil {
		t.Errorf("expected no error with nil provider, got: %v", err)
	}
}
