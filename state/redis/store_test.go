package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/PipeOpsHQ/rivalscope/state"
	"github.com/PipeOpsHQ/rivalscope/state/statetest"
)

func newTestRedisStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	prefix := "rivalscope-test-" + uuid.NewString()

	s, err := New(addr, WithPrefix(prefix), WithTTL(5*time.Minute), WithLockTTL(5*time.Second))
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
	statetest.Run(t, func(t *testing.T) state.Store { return newTestRedisStore(t) })
}

func TestRedisStore_CheckpointTTL(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	if err := s.SaveCheckpoint(ctx, state.CheckpointRecord{SessionID: "s1", Seq: 1, Stage: "plan", Status: "pending_plan_approval"}); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}
	ttl, err := s.client.TTL(ctx, s.checkpointKey("s1")).Result()
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl <= 0 || ttl > 5*time.Minute {
		t.Fatalf("unexpected checkpoint ttl: %v", ttl)
	}
}

func TestRedisStore_SessionLock(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	ok, err := s.AcquireSessionLock(ctx, "s1", "owner-a")
	if err != nil || !ok {
		t.Fatalf("expected first lock to succeed, ok=%v err=%v", ok, err)
	}
	ok, err = s.AcquireSessionLock(ctx, "s1", "owner-b")
	if err != nil || ok {
		t.Fatalf("expected second lock to fail, ok=%v err=%v", ok, err)
	}
	if err := s.ReleaseSessionLock(ctx, "s1", "owner-b"); err != nil {
		t.Fatalf("release by non-owner errored: %v", err)
	}
	ok, _ = s.AcquireSessionLock(ctx, "s1", "owner-b")
	if ok {
		t.Fatalf("non-owner release must not drop the lock")
	}
	if err := s.ReleaseSessionLock(ctx, "s1", "owner-a"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	ok, err = s.AcquireSessionLock(ctx, "s1", "owner-b")
	if err != nil || !ok {
		t.Fatalf("expected lock after release, ok=%v err=%v", ok, err)
	}
}
