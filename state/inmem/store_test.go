package inmem

import (
	"context"
	"testing"

	"github.com/PipeOpsHQ/rivalscope/state"
	"github.com/PipeOpsHQ/rivalscope/state/statetest"
)

func TestStoreConformance(t *testing.T) {
	statetest.Run(t, func(t *testing.T) state.Store { return New() })
}

func TestLoadCheckpointReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.SaveCheckpoint(ctx, state.CheckpointRecord{
		SessionID: "s1",
		Seq:       1,
		State:     map[string]any{"k": "v"},
	}); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}
	first, _ := s.LoadCheckpoint(ctx, "s1")
	first.State["k"] = "mutated"

	second, _ := s.LoadCheckpoint(ctx, "s1")
	if second.State["k"] != "v" {
		t.Fatalf("expected stored slot untouched, got %#v", second.State)
	}
}
