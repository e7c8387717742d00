package factory

import (
	"context"
	"fmt"
	"strings"

	"github.com/PipeOpsHQ/rivalscope/memory"
	"github.com/PipeOpsHQ/rivalscope/memory/inmem"
	redisstore "github.com/PipeOpsHQ/rivalscope/memory/redis"
	sqlitestore "github.com/PipeOpsHQ/rivalscope/memory/sqlite"
)

type Settings struct {
	Backend       string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

func New(ctx context.Context, s Settings) (memory.Store, error) {
	_ = ctx

	backend := strings.ToLower(strings.TrimSpace(s.Backend))
	switch backend {
	case "", "memory":
		return inmem.New(), nil

	case "sqlite":
		path := s.SQLitePath
		if strings.TrimSpace(path) == "" {
			path = "./.rivalscope/rivalscope.db"
		}
		store, err := sqlitestore.New(path)
		if err != nil {
			return nil, err
		}
		return store, nil

	case "redis":
		addr := s.RedisAddr
		if strings.TrimSpace(addr) == "" {
			addr = "127.0.0.1:6379"
		}
		store, err := redisstore.New(addr,
			redisstore.WithPassword(s.RedisPassword),
			redisstore.WithDB(s.RedisDB),
			redisstore.WithPrefix(s.RedisPrefix),
		)
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported memory backend %q (use memory, sqlite, or redis)", backend)
	}
}
