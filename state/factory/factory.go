package factory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/PipeOpsHQ/rivalscope/state"
	"github.com/PipeOpsHQ/rivalscope/state/hybrid"
	"github.com/PipeOpsHQ/rivalscope/state/inmem"
	redisstore "github.com/PipeOpsHQ/rivalscope/state/redis"
	sqlitestore "github.com/PipeOpsHQ/rivalscope/state/sqlite"
)

type Settings struct {
	Backend       string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	RedisTTL      time.Duration
}

func New(ctx context.Context, s Settings) (state.Store, error) {
	_ = ctx

	backend := strings.ToLower(strings.TrimSpace(s.Backend))
	switch backend {
	case "", "memory":
		return inmem.New(), nil

	case "sqlite":
		store, err := sqlitestore.New(sqlitePath(s))
		if err != nil {
			return nil, err
		}
		return store, nil

	case "redis":
		return newRedisStore(s)

	case "hybrid":
		durable, err := sqlitestore.New(sqlitePath(s))
		if err != nil {
			return nil, err
		}
		cache, err := newRedisStore(s)
		if err != nil {
			slog.Warn("hybrid state backend running without redis cache", "error", err)
			return hybrid.New(durable, nil)
		}
		return hybrid.New(durable, cache)

	default:
		return nil, fmt.Errorf("unsupported state backend %q (use memory, sqlite, redis, or hybrid)", backend)
	}
}

func FromEnv(ctx context.Context) (state.Store, error) {
	return New(ctx, Settings{
		Backend:       getenv("RIVALSCOPE_STATE_BACKEND", "memory"),
		SQLitePath:    getenv("RIVALSCOPE_SQLITE_PATH", "./.rivalscope/rivalscope.db"),
		RedisAddr:     getenv("RIVALSCOPE_REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: strings.TrimSpace(os.Getenv("RIVALSCOPE_REDIS_PASSWORD")),
		RedisDB:       getenvInt("RIVALSCOPE_REDIS_DB", 0),
		RedisPrefix:   getenv("RIVALSCOPE_REDIS_PREFIX", "rivalscope"),
		RedisTTL:      getenvDuration("RIVALSCOPE_REDIS_TTL", 72*time.Hour),
	})
}

func sqlitePath(s Settings) string {
	if strings.TrimSpace(s.SQLitePath) == "" {
		return "./.rivalscope/rivalscope.db"
	}
	return s.SQLitePath
}

func newRedisStore(s Settings) (state.Store, error) {
	addr := s.RedisAddr
	if strings.TrimSpace(addr) == "" {
		addr = "127.0.0.1:6379"
	}
	store, err := redisstore.New(addr,
		redisstore.WithPassword(s.RedisPassword),
		redisstore.WithDB(s.RedisDB),
		redisstore.WithPrefix(s.RedisPrefix),
		redisstore.WithTTL(s.RedisTTL),
	)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func getenv(key, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

func getenvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
