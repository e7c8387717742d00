package observe

import (
	"context"
	"sync"
)

const (
	defaultBacklog   = 64
	subscriberBuffer = 32
)

// Hub fans events out to per-session subscribers and keeps a short backlog
// so late subscribers see what happened since the last gate.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]map[*Subscription]struct{}
	backlog map[string][]Event
	limit   int
}

type Subscription struct {
	C         <-chan Event
	ch        chan Event
	sessionID string
	hub       *Hub
	once      sync.Once
}

func NewHub(backlog int) *Hub {
	if backlog <= 0 {
		backlog = defaultBacklog
	}
	return &Hub{
		subs:    map[string]map[*Subscription]struct{}{},
		backlog: map[string][]Event{},
		limit:   backlog,
	}
}

func (h *Hub) Emit(_ context.Context, event Event) error {
	if h == nil || event.SessionID == "" {
		return nil
	}
	event.Normalize()
	h.mu.Lock()
	defer h.mu.Unlock()

	recent := append(h.backlog[event.SessionID], event)
	if len(recent) > h.limit {
		recent = recent[len(recent)-h.limit:]
	}
	h.backlog[event.SessionID] = recent

	for sub := range h.subs[event.SessionID] {
		select {
		case sub.ch <- event:
		default:
			// slow subscriber; drop rather than stall the engine
		}
	}
	return nil
}

// Subscribe returns a subscription primed with the session backlog.
func (h *Hub) Subscribe(sessionID string) *Subscription {
	ch := make(chan Event, subscriberBuffer+h.limit)
	sub := &Subscription{C: ch, ch: ch, sessionID: sessionID, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.backlog[sessionID] {
		ch <- e
	}
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = map[*Subscription]struct{}{}
	}
	h.subs[sessionID][sub] = struct{}{}
	return sub
}

func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		delete(s.hub.subs[s.sessionID], s)
		if len(s.hub.subs[s.sessionID]) == 0 {
			delete(s.hub.subs, s.sessionID)
		}
		close(s.ch)
	})
}
