// Package statetest holds the behaviour every state.Store backend must share.
package statetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PipeOpsHQ/rivalscope/state"
)

// Run exercises a fresh store returned by newStore.
func Run(t *testing.T, newStore func(t *testing.T) state.Store) {
	t.Helper()

	t.Run("SessionRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created := time.Now().UTC().Add(-time.Minute).Truncate(time.Millisecond)
		in := state.SessionRecord{
			SessionID:  "sess-1",
			UserID:     "u1",
			CompanyURL: "https://example.com",
			Query:      "analyze",
			Stage:      "plan",
			Status:     "pending_plan_approval",
			CreatedAt:  created,
		}
		if err := s.SaveSession(ctx, in); err != nil {
			t.Fatalf("SaveSession failed: %v", err)
		}
		in.Status = "pending_research_approval"
		in.Revision = 2
		in.CreatedAt = time.Time{}
		if err := s.SaveSession(ctx, in); err != nil {
			t.Fatalf("SaveSession update failed: %v", err)
		}

		got, err := s.LoadSession(ctx, "sess-1")
		if err != nil {
			t.Fatalf("LoadSession failed: %v", err)
		}
		if got.Status != "pending_research_approval" || got.Revision != 2 || got.UserID != "u1" {
			t.Fatalf("unexpected session: %+v", got)
		}
		if !got.CreatedAt.Equal(created) {
			t.Fatalf("expected created_at preserved, got %v want %v", got.CreatedAt, created)
		}

		if _, err := s.LoadSession(ctx, "missing"); !errors.Is(err, state.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListSessionsFilters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		base := time.Now().UTC().Truncate(time.Second)
		for i, rec := range []state.SessionRecord{
			{SessionID: "a", UserID: "u1", Status: "pending_plan_approval"},
			{SessionID: "b", UserID: "u2", Status: "pending_plan_approval"},
			{SessionID: "c", UserID: "u1", Status: "approved_strategy"},
		} {
			rec.CreatedAt = base.Add(time.Duration(i) * time.Second)
			if err := s.SaveSession(ctx, rec); err != nil {
				t.Fatalf("SaveSession failed: %v", err)
			}
		}

		byUser, err := s.ListSessions(ctx, state.ListSessionsQuery{UserID: "u1"})
		if err != nil {
			t.Fatalf("ListSessions failed: %v", err)
		}
		if len(byUser) != 2 || byUser[0].SessionID != "c" || byUser[1].SessionID != "a" {
			t.Fatalf("unexpected sessions for u1: %+v", byUser)
		}

		byStatus, err := s.ListSessions(ctx, state.ListSessionsQuery{Status: "pending_plan_approval", Limit: 1})
		if err != nil {
			t.Fatalf("ListSessions failed: %v", err)
		}
		if len(byStatus) != 1 || byStatus[0].SessionID != "b" {
			t.Fatalf("unexpected sessions by status: %+v", byStatus)
		}
	})

	t.Run("CheckpointSingleSlot", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, err := s.LoadCheckpoint(ctx, "sess-1"); !errors.Is(err, state.ErrNotFound) {
			t.Fatalf("expected ErrNotFound before save, got %v", err)
		}
		for seq, status := range []string{"pending_plan_approval", "pending_research_approval"} {
			err := s.SaveCheckpoint(ctx, state.CheckpointRecord{
				SessionID: "sess-1",
				Seq:       seq + 1,
				Stage:     "plan",
				Status:    status,
				State:     map[string]any{"seq": seq + 1},
			})
			if err != nil {
				t.Fatalf("SaveCheckpoint %d failed: %v", seq+1, err)
			}
		}

		got, err := s.LoadCheckpoint(ctx, "sess-1")
		if err != nil {
			t.Fatalf("LoadCheckpoint failed: %v", err)
		}
		if got.Seq != 2 || got.Status != "pending_research_approval" {
			t.Fatalf("expected latest slot, got %+v", got)
		}
		if v, ok := got.State["seq"].(float64); !ok || v != 2 {
			t.Fatalf("unexpected state payload: %#v", got.State)
		}
	})

	t.Run("CheckpointStaleSeqConflicts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first := state.CheckpointRecord{SessionID: "sess-2", Seq: 1, Stage: "plan", Status: "pending_plan_approval"}
		if err := s.SaveCheckpoint(ctx, first); err != nil {
			t.Fatalf("SaveCheckpoint failed: %v", err)
		}
		if err := s.SaveCheckpoint(ctx, first); !errors.Is(err, state.ErrConflict) {
			t.Fatalf("expected ErrConflict for repeated seq, got %v", err)
		}

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			wins      int
			conflicts int
		)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.SaveCheckpoint(ctx, state.CheckpointRecord{
					SessionID: "sess-2",
					Seq:       2,
					Stage:     "research",
					Status:    "pending_research_approval",
					State:     map[string]any{"writer": i},
				})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, state.ErrConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()
		if wins != 1 || conflicts != 1 {
			t.Fatalf("expected exactly one winner, wins=%d conflicts=%d", wins, conflicts)
		}
	})

	t.Run("CheckpointValidation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.SaveCheckpoint(ctx, state.CheckpointRecord{Seq: 1}); err == nil {
			t.Fatalf("expected error for missing session id")
		}
		if err := s.SaveCheckpoint(ctx, state.CheckpointRecord{SessionID: "x"}); err == nil {
			t.Fatalf("expected error for seq 0")
		}
	})
}
