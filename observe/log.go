package observe

import (
	"context"
	"log/slog"
)

// LogSink writes events through slog. Failures log at warn level.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(ctx context.Context, event Event) error {
	if s == nil {
		return nil
	}
	event.Normalize()
	attrs := []any{
		"kind", string(event.Kind),
		"status", string(event.Status),
	}
	if event.SessionID != "" {
		attrs = append(attrs, "session_id", event.SessionID)
	}
	if event.Name != "" {
		attrs = append(attrs, "name", event.Name)
	}
	if event.Provider != "" {
		attrs = append(attrs, "provider", event.Provider)
	}
	if event.ToolName != "" {
		attrs = append(attrs, "tool", event.ToolName)
	}
	if event.DurationMs > 0 {
		attrs = append(attrs, "duration_ms", event.DurationMs)
	}
	if event.Error != "" {
		attrs = append(attrs, "error", event.Error)
	}
	msg := event.Message
	if msg == "" {
		msg = string(event.Kind) + " event"
	}
	level := slog.LevelDebug
	switch event.Status {
	case StatusFailed, StatusDegraded:
		level = slog.LevelWarn
	case StatusCompleted:
		if event.Kind == KindSession || event.Kind == KindGate {
			level = slog.LevelInfo
		}
	}
	s.logger.Log(ctx, level, msg, attrs...)
	return nil
}
