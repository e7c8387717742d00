package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/PipeOpsHQ/rivalscope/memory"
	"github.com/PipeOpsHQ/rivalscope/memory/memorytest"
)

func TestStoreConformance(t *testing.T) {
	memorytest.Run(t, func(t *testing.T) memory.Store {
		s, err := New(filepath.Join(t.TempDir(), "memory.db"))
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestRecordsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	ctx := context.Background()

	s, err := New(path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ns := memory.NS(memory.CategoryUsers, "u1")
	if err := s.Put(ctx, ns, memory.KeyPreferences, json.RawMessage(`{"focusAreas":["pricing"]}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	_ = s.Close()

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	prefs, err := memory.LoadPreferences(ctx, reopened, "u1")
	if err != nil {
		t.Fatalf("LoadPreferences failed: %v", err)
	}
	if len(prefs.FocusAreas) != 1 || prefs.FocusAreas[0] != "pricing" {
		t.Fatalf("unexpected preferences after reopen: %+v", prefs)
	}
}
