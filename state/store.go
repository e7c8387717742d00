// Package state persists session records and the single latest checkpoint
// per session.
package state

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("state: not found")
	ErrConflict = errors.New("state: conflict")
)

// Store keeps one checkpoint slot per session. SaveCheckpoint replaces the
// slot only when the incoming Seq is greater than the stored one and returns
// ErrConflict otherwise, so two writers racing from the same checkpoint
// cannot both win.
type Store interface {
	SaveSession(ctx context.Context, session SessionRecord) error
	LoadSession(ctx context.Context, sessionID string) (SessionRecord, error)
	ListSessions(ctx context.Context, query ListSessionsQuery) ([]SessionRecord, error)

	SaveCheckpoint(ctx context.Context, checkpoint CheckpointRecord) error
	LoadCheckpoint(ctx context.Context, sessionID string) (CheckpointRecord, error)

	Close() error
}

// Locker serializes writers for a session across processes.
type Locker interface {
	AcquireSessionLock(ctx context.Context, sessionID, owner string) (bool, error)
	ReleaseSessionLock(ctx context.Context, sessionID, owner string) error
}
