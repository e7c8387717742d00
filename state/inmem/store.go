// Package inmem is the process-lifetime checkpoint store.
package inmem

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/PipeOpsHQ/rivalscope/state"
)

const defaultLimit = 50

type Store struct {
	mu          sync.RWMutex
	sessions    map[string]state.SessionRecord
	checkpoints map[string][]byte
}

func New() *Store {
	return &Store{
		sessions:    map[string]state.SessionRecord{},
		checkpoints: map[string][]byte{},
	}
}

func (s *Store) SaveSession(_ context.Context, session state.SessionRecord) error {
	if err := session.Normalize(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.sessions[session.SessionID]; ok {
		session.CreatedAt = prev.CreatedAt
	}
	s.sessions[session.SessionID] = session
	return nil
}

func (s *Store) LoadSession(_ context.Context, sessionID string) (state.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return state.SessionRecord{}, state.ErrNotFound
	}
	return session, nil
}

func (s *Store) ListSessions(_ context.Context, query state.ListSessionsQuery) ([]state.SessionRecord, error) {
	s.mu.RLock()
	out := make([]state.SessionRecord, 0, len(s.sessions))
	for _, session := range s.sessions {
		if query.UserID != "" && session.UserID != query.UserID {
			continue
		}
		if query.Status != "" && session.Status != query.Status {
			continue
		}
		out = append(out, session)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, query.Offset, query.Limit), nil
}

// SaveCheckpoint stores an encoded copy so callers cannot mutate the slot
// through shared maps.
func (s *Store) SaveCheckpoint(_ context.Context, checkpoint state.CheckpointRecord) error {
	if err := checkpoint.Normalize(); err != nil {
		return err
	}
	raw, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prevRaw, ok := s.checkpoints[checkpoint.SessionID]; ok {
		var prev state.CheckpointRecord
		if err := json.Unmarshal(prevRaw, &prev); err != nil {
			return fmt.Errorf("failed to decode checkpoint: %w", err)
		}
		if checkpoint.Seq <= prev.Seq {
			return state.ErrConflict
		}
	}
	s.checkpoints[checkpoint.SessionID] = raw
	return nil
}

func (s *Store) LoadCheckpoint(_ context.Context, sessionID string) (state.CheckpointRecord, error) {
	s.mu.RLock()
	raw, ok := s.checkpoints[sessionID]
	s.mu.RUnlock()
	if !ok {
		return state.CheckpointRecord{}, state.ErrNotFound
	}
	var checkpoint state.CheckpointRecord
	if err := json.Unmarshal(raw, &checkpoint); err != nil {
		return state.CheckpointRecord{}, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return checkpoint, nil
}

func (s *Store) Close() error { return nil }

func page(in []state.SessionRecord, offset, limit int) []state.SessionRecord {
	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(in) {
		return []state.SessionRecord{}
	}
	end := offset + limit
	if end > len(in) {
		end = len(in)
	}
	return in[offset:end]
}
