// Package redis stores memory records as JSON strings with one sorted-set
// index per category. Records never expire.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/PipeOpsHQ/rivalscope/memory"
)

const defaultPrefix = "rivalscope"

type Store struct {
	client   *goredis.Client
	prefix   string
	addr     string
	db       int
	password string
	now      func() time.Time
}

type Option func(*Store)

func WithPassword(password string) Option {
	return func(s *Store) {
		s.password = password
	}
}

func WithDB(db int) Option {
	return func(s *Store) {
		s.db = db
	}
}

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if p := strings.TrimSpace(prefix); p != "" {
			s.prefix = p
		}
	}
}

func WithClient(client *goredis.Client) Option {
	return func(s *Store) {
		if client != nil {
			s.client = client
		}
	}
}

func New(addr string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	s := &Store{
		prefix: defaultPrefix,
		addr:   addr,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = goredis.NewClient(&goredis.Options{
			Addr:     s.addr,
			Password: s.password,
			DB:       s.db,
		})
	}
	if err := s.client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return s, nil
}

func (s *Store) Get(ctx context.Context, ns memory.Namespace, key string) (memory.Record, error) {
	if err := memory.ValidateKey(ns, key); err != nil {
		return memory.Record{}, err
	}
	raw, err := s.client.Get(ctx, s.recordKey(ns, key)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return memory.Record{}, memory.ErrNotFound
		}
		return memory.Record{}, fmt.Errorf("failed to load memory record: %w", err)
	}
	var rec memory.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return memory.Record{}, fmt.Errorf("failed to decode memory record: %w", err)
	}
	return rec, nil
}

func (s *Store) Put(ctx context.Context, ns memory.Namespace, key string, value json.RawMessage) error {
	if err := memory.ValidateKey(ns, key); err != nil {
		return err
	}
	rec := memory.Record{Namespace: ns, Key: key, Value: value, UpdatedAt: s.now()}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal memory record: %w", err)
	}

	recordKey := s.recordKey(ns, key)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, recordKey, string(raw), 0)
	pipe.ZAdd(ctx, s.indexKey(ns.Category), goredis.Z{
		Score:  float64(rec.UpdatedAt.UnixNano()),
		Member: recordKey,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save memory record in redis: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, category string) ([]memory.Record, error) {
	keys, err := s.client.ZRevRange(ctx, s.indexKey(category), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list memory keys: %w", err)
	}
	if len(keys) == 0 {
		return []memory.Record{}, nil
	}
	loaded, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to mget memory records: %w", err)
	}

	out := make([]memory.Record, 0, len(loaded))
	for _, raw := range loaded {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var rec memory.Record
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Store) recordKey(ns memory.Namespace, key string) string {
	return fmt.Sprintf("%s:mem:%s:%s:%s", s.prefix, ns.Category, ns.ID, key)
}

func (s *Store) indexKey(category string) string {
	return fmt.Sprintf("%s:memidx:%s", s.prefix, category)
}
