// Package sqlite persists memory records in a single sqlite table. It can
// share a database file with the state store.
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

	"github.com/PipeOpsHQ/rivalscope/memory"
)

//go:embed schema.sql
var schemaSQL string

const defaultBusyTimeout = 5 * time.Second

type Store struct {
	db          *sql.DB
	busyTimeout time.Duration
	now         func() time.Time
}

type Option func(*Store)

func WithBusyTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout >= 0 {
			s.busyTimeout = timeout
		}
	}
}

func New(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	s := &Store{
		busyTimeout: defaultBusyTimeout,
		now:         func() time.Time { return time.Now().UTC() },
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
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

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
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("failed to enable wal: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, ns memory.Namespace, key string) (memory.Record, error) {
	if err := memory.ValidateKey(ns, key); err != nil {
		return memory.Record{}, err
	}
	const q = `
SELECT category, ns_id, key, value, updated_at
FROM memory_records
WHERE category = ? AND ns_id = ? AND key = ?;
`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, q, ns.Category, ns.ID, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return memory.Record{}, memory.ErrNotFound
		}
		return memory.Record{}, fmt.Errorf("failed to load memory record: %w", err)
	}
	return rec, nil
}

func (s *Store) Put(ctx context.Context, ns memory.Namespace, key string, value json.RawMessage) error {
	if err := memory.ValidateKey(ns, key); err != nil {
		return err
	}
	const q = `
INSERT INTO memory_records (category, ns_id, key, value, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(category, ns_id, key) DO UPDATE SET
  value=excluded.value,
  updated_at=excluded.updated_at;
`
	if _, err := s.db.ExecContext(ctx, q, ns.Category, ns.ID, key, string(value), s.now().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to save memory record: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, category string) ([]memory.Record, error) {
	const q = `
SELECT category, ns_id, key, value, updated_at
FROM memory_records
WHERE category = ?
ORDER BY updated_at DESC, ns_id ASC, key ASC;
`
	rows, err := s.db.QueryContext(ctx, q, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory records: %w", err)
	}
	defer rows.Close()

	out := make([]memory.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memory records: %w", err)
	}
	return out, nil
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

func scanRecord(row rowScanner) (memory.Record, error) {
	var (
		rec        memory.Record
		value      string
		updatedRaw string
	)
	if err := row.Scan(&rec.Namespace.Category, &rec.Namespace.ID, &rec.Key, &value, &updatedRaw); err != nil {
		return memory.Record{}, err
	}
	updated, err := time.Parse(time.RFC3339Nano, updatedRaw)
	if err != nil {
		return memory.Record{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	rec.Value = json.RawMessage(value)
	rec.UpdatedAt = updated.UTC()
	return rec, nil
}
