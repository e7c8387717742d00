package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/PipeOpsHQ/rivalscope/state"
)

//go:embed schema.sql
var schemaSQL string

const (
	defaultBusyTimeout = 5 * time.Second
	defaultLimit       = 50
)

type Store struct {
	db          *sql.DB
	busyTimeout time.Duration
	enableWAL   bool
	maxOpenConn int
}

type Option func(*Store)

func WithBusyTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout >= 0 {
			s.busyTimeout = timeout
		}
	}
}

func WithWAL(enabled bool) Option {
	return func(s *Store) {
		s.enableWAL = enabled
	}
}

func WithMaxOpenConns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxOpenConn = n
		}
	}
}

func New(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	s := &Store{
		busyTimeout: defaultBusyTimeout,
		enableWAL:   true,
		maxOpenConn: 1,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(s.maxOpenConn)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s.db = db
	if err := s.initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if s.busyTimeout > 0 {
		ms := int(s.busyTimeout / time.Millisecond)
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d;", ms)); err != nil {
			return fmt.Errorf("failed to set busy_timeout: %w", err)
		}
	}
	if s.enableWAL {
		if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("failed to enable wal: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *Store) SaveSession(ctx context.Context, session state.SessionRecord) error {
	if err := session.Normalize(); err != nil {
		return err
	}

	const q = `
INSERT INTO sessions (
  session_id, user_id, company_url, query, stage, status, revision, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
  user_id=excluded.user_id,
  company_url=excluded.company_url,
  query=excluded.query,
  stage=excluded.stage,
  status=excluded.status,
  revision=excluded.revision,
  updated_at=excluded.updated_at;
`
	_, err := s.db.ExecContext(
		ctx,
		q,
		session.SessionID,
		session.UserID,
		session.CompanyURL,
		session.Query,
		session.Stage,
		session.Status,
		session.Revision,
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *Store) LoadSession(ctx context.Context, sessionID string) (state.SessionRecord, error) {
	if strings.TrimSpace(sessionID) == "" {
		return state.SessionRecord{}, fmt.Errorf("session_id is required")
	}

	const q = `
SELECT session_id, user_id, company_url, query, stage, status, revision, created_at, updated_at
FROM sessions
WHERE session_id = ?;
`
	session, err := scanSession(s.db.QueryRowContext(ctx, q, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return state.SessionRecord{}, state.ErrNotFound
		}
		return state.SessionRecord{}, fmt.Errorf("failed to load session: %w", err)
	}
	return session, nil
}

func (s *Store) ListSessions(ctx context.Context, query state.ListSessionsQuery) ([]state.SessionRecord, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	offset := query.Offset
	if offset < 0 {
		offset = 0
	}

	var (
		where []string
		args  []any
	)
	if query.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, query.UserID)
	}
	if query.Status != "" {
		where = append(where, "status = ?")
		args = append(args, query.Status)
	}

	sqlText := `
SELECT session_id, user_id, company_url, query, stage, status, revision, created_at, updated_at
FROM sessions
`
	if len(where) > 0 {
		sqlText += " WHERE " + strings.Join(where, " AND ")
	}
	sqlText += " ORDER BY created_at DESC, session_id ASC LIMIT ? OFFSET ?;"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]state.SessionRecord, 0, limit)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return out, nil
}

// SaveCheckpoint upserts the slot only when the stored seq is older; zero
// affected rows means another writer got there first.
func (s *Store) SaveCheckpoint(ctx context.Context, checkpoint state.CheckpointRecord) error {
	if err := checkpoint.Normalize(); err != nil {
		return err
	}
	stateRaw, err := json.Marshal(checkpoint.State)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint state: %w", err)
	}

	const q = `
INSERT INTO checkpoints (session_id, seq, stage, status, state, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
  seq=excluded.seq,
  stage=excluded.stage,
  status=excluded.status,
  state=excluded.state,
  created_at=excluded.created_at
WHERE excluded.seq > checkpoints.seq;
`
	res, err := s.db.ExecContext(
		ctx,
		q,
		checkpoint.SessionID,
		checkpoint.Seq,
		checkpoint.Stage,
		checkpoint.Status,
		string(stateRaw),
		formatTime(checkpoint.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read checkpoint rows affected: %w", err)
	}
	if affected == 0 {
		return state.ErrConflict
	}
	return nil
}

func (s *Store) LoadCheckpoint(ctx context.Context, sessionID string) (state.CheckpointRecord, error) {
	if strings.TrimSpace(sessionID) == "" {
		return state.CheckpointRecord{}, fmt.Errorf("session_id is required")
	}

	const q = `
SELECT session_id, seq, stage, status, state, created_at
FROM checkpoints
WHERE session_id = ?;
`
	var (
		record       state.CheckpointRecord
		stateRaw     string
		createdAtRaw string
	)
	err := s.db.QueryRowContext(ctx, q, sessionID).Scan(
		&record.SessionID,
		&record.Seq,
		&record.Stage,
		&record.Status,
		&stateRaw,
		&createdAtRaw,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return state.CheckpointRecord{}, state.ErrNotFound
		}
		return state.CheckpointRecord{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	record.CreatedAt, err = parseRequiredTime(createdAtRaw)
	if err != nil {
		return state.CheckpointRecord{}, fmt.Errorf("failed to parse checkpoint created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(stateRaw), &record.State); err != nil {
		return state.CheckpointRecord{}, fmt.Errorf("failed to decode checkpoint state: %w", err)
	}
	return record, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (state.SessionRecord, error) {
	var (
		session    state.SessionRecord
		createdRaw string
		updatedRaw string
	)
	if err := row.Scan(
		&session.SessionID,
		&session.UserID,
		&session.CompanyURL,
		&session.Query,
		&session.Stage,
		&session.Status,
		&session.Revision,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return state.SessionRecord{}, err
	}
	var err error
	if session.CreatedAt, err = parseRequiredTime(createdRaw); err != nil {
		return state.SessionRecord{}, fmt.Errorf("failed to parse session created_at: %w", err)
	}
	if session.UpdatedAt, err = parseRequiredTime(updatedRaw); err != nil {
		return state.SessionRecord{}, fmt.Errorf("failed to parse session updated_at: %w", err)
	}
	return session, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseRequiredTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
