package hybrid

import (
	"context"
	"errors"
	"testing"

	"github.com/PipeOpsHQ/rivalscope/state"
	"github.com/PipeOpsHQ/rivalscope/state/inmem"
	"github.com/PipeOpsHQ/rivalscope/state/statetest"
)

type flakyStore struct {
	*inmem.Store
	failWrites bool
	failReads  bool
}

func (f *flakyStore) SaveCheckpoint(ctx context.Context, c state.CheckpointRecord) error {
	if f.failWrites {
		return errors.New("write failed")
	}
	return f.Store.SaveCheckpoint(ctx, c)
}

func (f *flakyStore) LoadCheckpoint(ctx context.Context, id string) (state.CheckpointRecord, error) {
	if f.failReads {
		return state.CheckpointRecord{}, errors.New("read failed")
	}
	return f.Store.LoadCheckpoint(ctx, id)
}

func TestHybridConformance(t *testing.T) {
	statetest.Run(t, func(t *testing.T) state.Store {
		h, err := New(inmem.New(), inmem.New())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return h
	})
}

func TestHybridCacheWriteFailureIsNotFatal(t *testing.T) {
	durable := inmem.New()
	cache := &flakyStore{Store: inmem.New(), failWrites: true}
	h, err := New(durable, cache)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()

	if err := h.SaveCheckpoint(ctx, state.CheckpointRecord{SessionID: "s1", Seq: 1}); err != nil {
		t.Fatalf("SaveCheckpoint should succeed when only cache fails: %v", err)
	}
	if _, err := durable.LoadCheckpoint(ctx, "s1"); err != nil {
		t.Fatalf("expected durable write, got %v", err)
	}
}

func TestHybridBackfillsCacheOnMiss(t *testing.T) {
	durable := inmem.New()
	cache := inmem.New()
	h, _ := New(durable, cache)
	ctx := context.Background()

	if err := durable.SaveCheckpoint(ctx, state.CheckpointRecord{SessionID: "s1", Seq: 4, Status: "pending_strategy_approval"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	got, err := h.LoadCheckpoint(ctx, "s1")
	if err != nil || got.Seq != 4 {
		t.Fatalf("LoadCheckpoint = %+v, %v", got, err)
	}
	cached, err := cache.LoadCheckpoint(ctx, "s1")
	if err != nil || cached.Seq != 4 {
		t.Fatalf("expected cache backfill, got %+v, %v", cached, err)
	}
}

func TestHybridFallsBackWhenCacheReadFails(t *testing.T) {
	durable := inmem.New()
	cache := &flakyStore{Store: inmem.New(), failReads: true}
	h, _ := New(durable, cache)
	ctx := context.Background()

	_ = durable.SaveCheckpoint(ctx, state.CheckpointRecord{SessionID: "s1", Seq: 1})
	if _, err := h.LoadCheckpoint(ctx, "s1"); err != nil {
		t.Fatalf("expected durable fallback, got %v", err)
	}
}

func TestHybridConflictComesFromDurable(t *testing.T) {
	h, _ := New(inmem.New(), nil)
	ctx := context.Background()
	_ = h.SaveCheckpoint(ctx, state.CheckpointRecord{SessionID: "s1", Seq: 2})
	if err := h.SaveCheckpoint(ctx, state.CheckpointRecord{SessionID: "s1", Seq: 2}); !errors.Is(err, state.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestNewRequiresDurable(t *testing.T) {
	if _, err := New(nil, inmem.New()); err == nil {
		t.Fatalf("expected error without durable store")
	}
}
