package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/PipeOpsHQ/rivalscope/state"
)

const (
	defaultTTL     = 72 * time.Hour
	defaultLimit   = 50
	defaultPrefix  = "rivalscope"
	defaultLockTTL = 2 * time.Minute
)

// saveCheckpointScript replaces the slot only when ARGV[1] is newer than the
// stored sequence.
var saveCheckpointScript = goredis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[2]) or "0")
local seq = tonumber(ARGV[1])
if seq <= current then
  return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[3])
return 1
`)

var releaseLockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

type Store struct {
	client   *goredis.Client
	ttl      time.Duration
	lockTTL  time.Duration
	prefix   string
	addr     string
	db       int
	password string
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

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithLockTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if strings.TrimSpace(prefix) != "" {
			s.prefix = strings.TrimSpace(prefix)
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
		ttl:     defaultTTL,
		lockTTL: defaultLockTTL,
		prefix:  defaultPrefix,
		addr:    addr,
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

func (s *Store) SaveSession(ctx context.Context, session state.SessionRecord) error {
	if err := session.Normalize(); err != nil {
		return err
	}
	if prev, err := s.LoadSession(ctx, session.SessionID); err == nil {
		session.CreatedAt = prev.CreatedAt
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.sessionKey(session.SessionID), string(raw), s.ttl)
	pipe.ZAdd(ctx, s.sessionIndexKey(), goredis.Z{
		Score:  float64(session.CreatedAt.UnixNano()),
		Member: session.SessionID,
	})
	pipe.Expire(ctx, s.sessionIndexKey(), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session in redis: %w", err)
	}
	return nil
}

func (s *Store) LoadSession(ctx context.Context, sessionID string) (state.SessionRecord, error) {
	if sessionID == "" {
		return state.SessionRecord{}, fmt.Errorf("session_id is required")
	}
	raw, err := s.client.Get(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return state.SessionRecord{}, state.ErrNotFound
		}
		return state.SessionRecord{}, fmt.Errorf("failed to load session from redis: %w", err)
	}
	var session state.SessionRecord
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return state.SessionRecord{}, fmt.Errorf("failed to decode session from redis: %w", err)
	}
	return session, nil
}

// ListSessions filters after loading, so Offset/Limit apply to the filtered
// view.
func (s *Store) ListSessions(ctx context.Context, query state.ListSessionsQuery) ([]state.SessionRecord, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	offset := query.Offset
	if offset < 0 {
		offset = 0
	}

	ids, err := s.client.ZRevRange(ctx, s.sessionIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list session ids: %w", err)
	}
	if len(ids) == 0 {
		return []state.SessionRecord{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.sessionKey(id)
	}
	loaded, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to mget sessions from redis: %w", err)
	}

	out := make([]state.SessionRecord, 0, len(loaded))
	stale := make([]any, 0)
	for i, raw := range loaded {
		if raw == nil {
			stale = append(stale, ids[i])
			continue
		}
		var session state.SessionRecord
		if err := json.Unmarshal([]byte(fmt.Sprintf("%v", raw)), &session); err != nil {
			continue
		}
		if query.UserID != "" && session.UserID != query.UserID {
			continue
		}
		if query.Status != "" && session.Status != query.Status {
			continue
		}
		out = append(out, session)
	}
	if len(stale) > 0 {
		_ = s.client.ZRem(ctx, s.sessionIndexKey(), stale...).Err()
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if offset >= len(out) {
		return []state.SessionRecord{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (s *Store) SaveCheckpoint(ctx context.Context, checkpoint state.CheckpointRecord) error {
	if err := checkpoint.Normalize(); err != nil {
		return err
	}
	raw, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	keys := []string{s.checkpointKey(checkpoint.SessionID), s.checkpointSeqKey(checkpoint.SessionID)}
	applied, err := saveCheckpointScript.Run(ctx, s.client, keys, checkpoint.Seq, string(raw), s.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to save checkpoint in redis: %w", err)
	}
	if applied == 0 {
		return state.ErrConflict
	}
	return nil
}

func (s *Store) LoadCheckpoint(ctx context.Context, sessionID string) (state.CheckpointRecord, error) {
	if sessionID == "" {
		return state.CheckpointRecord{}, fmt.Errorf("session_id is required")
	}
	raw, err := s.client.Get(ctx, s.checkpointKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return state.CheckpointRecord{}, state.ErrNotFound
		}
		return state.CheckpointRecord{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	var checkpoint state.CheckpointRecord
	if err := json.Unmarshal([]byte(raw), &checkpoint); err != nil {
		return state.CheckpointRecord{}, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return checkpoint, nil
}

// AcquireSessionLock takes a TTL-bounded lock so only one process drives a
// session at a time.
func (s *Store) AcquireSessionLock(ctx context.Context, sessionID, owner string) (bool, error) {
	if sessionID == "" || owner == "" {
		return false, fmt.Errorf("session_id and owner are required")
	}
	ok, err := s.client.SetNX(ctx, s.lockKey(sessionID), owner, s.lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	return ok, nil
}

func (s *Store) ReleaseSessionLock(ctx context.Context, sessionID, owner string) error {
	if sessionID == "" || owner == "" {
		return fmt.Errorf("session_id and owner are required")
	}
	if _, err := releaseLockScript.Run(ctx, s.client, []string{s.lockKey(sessionID)}, owner).Result(); err != nil {
		return fmt.Errorf("failed to release session lock: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Store) sessionKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, sessionID)
}

func (s *Store) sessionIndexKey() string {
	return fmt.Sprintf("%s:sessionidx", s.prefix)
}

func (s *Store) checkpointKey(sessionID string) string {
	return fmt.Sprintf("%s:ckpt:%s", s.prefix, sessionID)
}

func (s *Store) checkpointSeqKey(sessionID string) string {
	return fmt.Sprintf("%s:ckpt:seq:%s", s.prefix, sessionID)
}

func (s *Store) lockKey(sessionID string) string {
	return fmt.Sprintf("%s:lock:session:%s", s.prefix, sessionID)
}
