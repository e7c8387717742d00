// Package otel turns observe events into OpenTelemetry spans. Every span of a
// session shares one trace id derived from the session id, so a reviewer's
// whole plan, research and strategy walk lands in a single trace even though
// it spans many HTTP requests.
package otel

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/PipeOpsHQ/rivalscope/observe"
)

const (
	instrumentationName = "github.com/PipeOpsHQ/rivalscope"
	maxMessage          = 1024
)

type Sink struct {
	tracer trace.Tracer
}

// NewSink uses tp, or a noop provider when tp is nil.
func NewSink(tp trace.TracerProvider) *Sink {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Sink{tracer: tp.Tracer(instrumentationName)}
}

func (s *Sink) Emit(ctx context.Context, event observe.Event) error {
	event.Normalize()
	end := event.Timestamp
	start := end.Add(-time.Duration(event.DurationMs) * time.Millisecond)

	if !trace.SpanContextFromContext(ctx).IsValid() && event.SessionID != "" {
		ctx = trace.ContextWithRemoteSpanContext(ctx, sessionParent(event.SessionID))
	}
	_, span := s.tracer.Start(ctx, SpanName(event),
		trace.WithTimestamp(start),
		trace.WithAttributes(attributes(event)...),
	)

	switch event.Status {
	case observe.StatusFailed, observe.StatusDegraded:
		span.SetStatus(codes.Error, event.Error)
		if event.Error != "" {
			span.RecordError(errors.New(event.Error))
		}
	case observe.StatusCompleted:
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(end))
	return nil
}

// SessionTraceID is the trace id shared by every span of a session.
func SessionTraceID(sessionID string) trace.TraceID {
	sum := sha256.Sum256([]byte("rivalscope/session/" + sessionID))
	var id trace.TraceID
	copy(id[:], sum[:len(id)])
	return id
}

func sessionParent(sessionID string) trace.SpanContext {
	sum := sha256.Sum256([]byte("rivalscope/root/" + sessionID))
	var span trace.SpanID
	copy(span[:], sum[:len(span)])
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    SessionTraceID(sessionID),
		SpanID:     span,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
}

func attributes(e observe.Event) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("rivalscope.event.kind", string(e.Kind))}
	add := func(key, val string) {
		if val != "" {
			attrs = append(attrs, attribute.String(key, val))
		}
	}
	add("rivalscope.session.id", e.SessionID)
	add("rivalscope.event.name", e.Name)
	add("rivalscope.status", string(e.Status))
	add("rivalscope.provider", e.Provider)
	add("rivalscope.tool.name", e.ToolName)
	if e.Message != "" {
		attrs = append(attrs, attribute.String("rivalscope.message", truncate(e.Message)))
	}
	if e.DurationMs > 0 {
		attrs = append(attrs, attribute.Int64("rivalscope.duration_ms", e.DurationMs))
	}
	for k, v := range e.Attributes {
		key := "rivalscope.attr." + k
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(key, val))
		case bool:
			attrs = append(attrs, attribute.Bool(key, val))
		case int:
			attrs = append(attrs, attribute.Int(key, val))
		case int64:
			attrs = append(attrs, attribute.Int64(key, val))
		case float64:
			attrs = append(attrs, attribute.Float64(key, val))
		case []string:
			attrs = append(attrs, attribute.StringSlice(key, val))
		default:
			attrs = append(attrs, attribute.String(key, fmt.Sprint(val)))
		}
	}
	return attrs
}

// SpanName is rivalscope.<kind>, qualified by the stage, provider or tool
// when the event names one.
func SpanName(e observe.Event) string {
	var qualifier string
	switch e.Kind {
	case observe.KindStage, observe.KindGate:
		qualifier = e.Name
	case observe.KindProvider:
		return "rivalscope.llm." + orDefault(e.Provider, "generate")
	case observe.KindTool:
		qualifier = e.ToolName
	case observe.KindCustom, "":
		return "rivalscope." + orDefault(e.Name, "event")
	}
	if qualifier == "" {
		return "rivalscope." + string(e.Kind)
	}
	return "rivalscope." + string(e.Kind) + "." + qualifier
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func truncate(s string) string {
	if len(s) <= maxMessage {
		return s
	}
	return s[:maxMessage] + "..."
}
