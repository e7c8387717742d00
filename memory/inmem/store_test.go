package inmem

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/PipeOpsHQ/rivalscope/memory"
	"github.com/PipeOpsHQ/rivalscope/memory/memorytest"
)

func TestStoreConformance(t *testing.T) {
	memorytest.Run(t, func(t *testing.T) memory.Store { return New() })
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	ns := memory.NS("users", "u1")
	_ = s.Put(ctx, ns, "k", json.RawMessage(`"abc"`))

	rec, _ := s.Get(ctx, ns, "k")
	rec.Value[1] = 'z'

	again, _ := s.Get(ctx, ns, "k")
	if string(again.Value) != `"abc"` {
		t.Fatalf("stored value was mutated: %s", again.Value)
	}
}
