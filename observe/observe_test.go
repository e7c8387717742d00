package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestHubBacklogAndLiveDelivery(t *testing.T) {
	hub := NewHub(2)
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		_ = hub.Emit(ctx, Event{SessionID: "s1", Name: name})
	}
	_ = hub.Emit(ctx, Event{SessionID: "other", Name: "x"})

	sub := hub.Subscribe("s1")
	defer sub.Close()

	got := []string{(<-sub.C).Name, (<-sub.C).Name}
	if got[0] != "b" || got[1] != "c" {
		t.Fatalf("expected trimmed backlog [b c], got %v", got)
	}

	_ = hub.Emit(ctx, Event{SessionID: "s1", Name: "d"})
	select {
	case e := <-sub.C:
		if e.Name != "d" {
			t.Fatalf("expected live event d, got %q", e.Name)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for live event")
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	hub := NewHub(0)
	sub := hub.Subscribe("s1")
	sub.Close()
	sub.Close()
	if _, ok := <-sub.C; ok {
		t.Fatalf("expected closed channel")
	}
	if err := hub.Emit(context.Background(), Event{SessionID: "s1"}); err != nil {
		t.Fatalf("emit after close: %v", err)
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	calls := 0
	failing := SinkFunc(func(context.Context, Event) error { calls++; return errors.New("down") })
	ok := SinkFunc(func(context.Context, Event) error { calls++; return nil })

	err := Fanout(failing, nil, ok).Emit(context.Background(), Event{})
	if err == nil || calls != 2 {
		t.Fatalf("expected both sinks called and an error, calls=%d err=%v", calls, err)
	}
}

func TestBufferedDrainsOnClose(t *testing.T) {
	var seen []string
	sink := NewBuffered(SinkFunc(func(_ context.Context, e Event) error {
		seen = append(seen, e.Name)
		return nil
	}), 8)
	_ = sink.Emit(context.Background(), Event{Name: "one"})
	_ = sink.Emit(context.Background(), Event{Name: "two"})
	sink.Close()
	if len(seen) != 2 {
		t.Fatalf("expected 2 drained events, got %v", seen)
	}
}

func TestBufferedCountsDrops(t *testing.T) {
	release := make(chan struct{})
	sink := NewBuffered(SinkFunc(func(context.Context, Event) error {
		<-release
		return nil
	}), 1)
	// One event is held by the consumer, one fills the queue, the rest drop.
	for i := 0; i < 10; i++ {
		_ = sink.Emit(context.Background(), Event{})
	}
	close(release)
	sink.Close()
	if d := sink.Dropped(); d < 8 || d > 9 {
		t.Fatalf("expected 8 or 9 drops, got %d", d)
	}
}

func TestLogSinkWritesSessionID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	_ = NewLogSink(logger).Emit(context.Background(), Event{
		Kind:      KindGate,
		Status:    StatusCompleted,
		SessionID: "s9",
		Message:   "paused at gate",
	})
	if !strings.Contains(buf.String(), `"session_id":"s9"`) {
		t.Fatalf("expected session id in log output: %s", buf.String())
	}
}

func TestSessionIDContext(t *testing.T) {
	ctx := WithSessionID(context.Background(), "abc")
	if SessionIDFrom(ctx) != "abc" {
		t.Fatalf("session id not carried")
	}
	if SessionIDFrom(context.Background()) != "" {
		t.Fatalf("expected empty session id")
	}
}
