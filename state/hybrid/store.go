package hybrid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/PipeOpsHQ/rivalscope/state"
)

// HybridStore writes through to a durable store and keeps a cache in front
// of it for reads. The durable store decides conflicts.
type HybridStore struct {
	durable state.Store
	cache   state.Store
	logger  *slog.Logger
}

type Option func(*HybridStore)

func WithLogger(l *slog.Logger) Option {
	return func(h *HybridStore) {
		if l != nil {
			h.logger = l
		}
	}
}

func New(durable state.Store, cache state.Store, opts ...Option) (*HybridStore, error) {
	if durable == nil {
		return nil, fmt.Errorf("durable store is required")
	}
	h := &HybridStore{
		durable: durable,
		cache:   cache,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *HybridStore) SaveSession(ctx context.Context, session state.SessionRecord) error {
	if err := h.durable.SaveSession(ctx, session); err != nil {
		return err
	}
	if h.cache != nil {
		if err := h.cache.SaveSession(ctx, session); err != nil {
			h.logger.Warn("hybrid store cache SaveSession failed", "session_id", session.SessionID, "error", err)
		}
	}
	return nil
}

func (h *HybridStore) LoadSession(ctx context.Context, sessionID string) (state.SessionRecord, error) {
	if h.cache != nil {
		session, err := h.cache.LoadSession(ctx, sessionID)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, state.ErrNotFound) {
			h.logger.Warn("hybrid store cache LoadSession failed", "session_id", sessionID, "error", err)
		}
	}

	session, err := h.durable.LoadSession(ctx, sessionID)
	if err != nil {
		return state.SessionRecord{}, err
	}
	if h.cache != nil {
		if err := h.cache.SaveSession(ctx, session); err != nil {
			h.logger.Warn("hybrid store cache backfill SaveSession failed", "session_id", sessionID, "error", err)
		}
	}
	return session, nil
}

func (h *HybridStore) ListSessions(ctx context.Context, query state.ListSessionsQuery) ([]state.SessionRecord, error) {
	return h.durable.ListSessions(ctx, query)
}

func (h *HybridStore) SaveCheckpoint(ctx context.Context, checkpoint state.CheckpointRecord) error {
	if err := h.durable.SaveCheckpoint(ctx, checkpoint); err != nil {
		return err
	}
	if h.cache != nil {
		if err := h.cache.SaveCheckpoint(ctx, checkpoint); err != nil {
			h.logger.Warn("hybrid store cache SaveCheckpoint failed", "session_id", checkpoint.SessionID, "error", err)
		}
	}
	return nil
}

// LoadCheckpoint reads the cache first; a miss falls back to the durable
// store and backfills the cache.
func (h *HybridStore) LoadCheckpoint(ctx context.Context, sessionID string) (state.CheckpointRecord, error) {
	if h.cache != nil {
		checkpoint, err := h.cache.LoadCheckpoint(ctx, sessionID)
		if err == nil {
			return checkpoint, nil
		}
		if !errors.Is(err, state.ErrNotFound) {
			h.logger.Warn("hybrid store cache LoadCheckpoint failed", "session_id", sessionID, "error", err)
		}
	}

	checkpoint, err := h.durable.LoadCheckpoint(ctx, sessionID)
	if err != nil {
		return state.CheckpointRecord{}, err
	}
	if h.cache != nil {
		if err := h.cache.SaveCheckpoint(ctx, checkpoint); err != nil {
			h.logger.Warn("hybrid store cache backfill SaveCheckpoint failed", "session_id", sessionID, "error", err)
		}
	}
	return checkpoint, nil
}

// AcquireSessionLock delegates to whichever side can lock.
func (h *HybridStore) AcquireSessionLock(ctx context.Context, sessionID, owner string) (bool, error) {
	if l := h.locker(); l != nil {
		return l.AcquireSessionLock(ctx, sessionID, owner)
	}
	return true, nil
}

func (h *HybridStore) ReleaseSessionLock(ctx context.Context, sessionID, owner string) error {
	if l := h.locker(); l != nil {
		return l.ReleaseSessionLock(ctx, sessionID, owner)
	}
	return nil
}

func (h *HybridStore) locker() state.Locker {
	if l, ok := h.cache.(state.Locker); ok {
		return l
	}
	if l, ok := h.durable.(state.Locker); ok {
		return l
	}
	return nil
}

func (h *HybridStore) Close() error {
	var firstErr error
	if h.cache != nil {
		if err := h.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if h.durable != nil {
		if err := h.durable.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
