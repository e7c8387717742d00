package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/PipeOpsHQ/rivalscope/memory"
	"github.com/PipeOpsHQ/rivalscope/memory/memorytest"
)

func newTestRedisStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	prefix := "rivalscope-test-" + uuid.NewString()

	s, err := New(addr, WithPrefix(prefix))
	if err != nil {
		t.Skipf("redis unavailable at %s: %v", addr, err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		keys, _ := s.client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			_ = s.client.Del(ctx, keys...).Err()
		}
		_ = s.Close()
	})
	return s
}

func TestRedisStoreConformance(t *testing.T) {
	memorytest.Run(t, func(t *testing.T) memory.Store { return newTestRedisStore(t) })
}

func TestRedisRecordsDoNotExpire(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	ns := memory.NS(memory.CategoryCompetitors, "acme")
	if err := memory.PutJSON(ctx, s, ns, memory.KeyProfile, memory.CompetitorProfile{Name: "Acme"}); err != nil {
		t.Fatalf("PutJSON failed: %v", err)
	}
	ttl, err := s.client.TTL(ctx, s.recordKey(ns, memory.KeyProfile)).Result()
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl != -1 {
		t.Fatalf("expected no expiry, got %v", ttl)
	}
}
