package observe

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Sink receives workflow events. Emit must not block stage execution for
// long; slow destinations belong behind a Buffered sink.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Emit(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type NoopSink struct{}

func (NoopSink) Emit(context.Context, Event) error { return nil }

type fanout []Sink

// Fanout delivers each event to every non-nil sink in order and joins
// their errors.
func Fanout(sinks ...Sink) Sink {
	var out fanout
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return NoopSink{}
	case 1:
		return out[0]
	}
	return out
}

func (f fanout) Emit(ctx context.Context, event Event) error {
	var err error
	for _, s := range f {
		err = errors.Join(err, s.Emit(ctx, event))
	}
	return err
}

const defaultBuffer = 256

// Buffered hands events to a background goroutine. When the queue is full
// the event is dropped and counted.
type Buffered struct {
	next    Sink
	queue   chan Event
	dropped atomic.Int64
	once    sync.Once
	drained chan struct{}
}

func NewBuffered(next Sink, size int) *Buffered {
	if next == nil {
		next = NoopSink{}
	}
	if size <= 0 {
		size = defaultBuffer
	}
	b := &Buffered{next: next, queue: make(chan Event, size), drained: make(chan struct{})}
	go func() {
		defer close(b.drained)
		for ev := range b.queue {
			_ = b.next.Emit(context.Background(), ev)
		}
	}()
	return b
}

func (b *Buffered) Emit(_ context.Context, event Event) error {
	if b == nil {
		return nil
	}
	event.Normalize()
	select {
	case b.queue <- event:
	default:
		b.dropped.Add(1)
	}
	return nil
}

// Dropped counts events discarded because the queue was full.
func (b *Buffered) Dropped() int64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}

// Close stops intake and waits until queued events are delivered.
func (b *Buffered) Close() {
	if b == nil {
		return
	}
	b.once.Do(func() { close(b.queue) })
	<-b.drained
}
