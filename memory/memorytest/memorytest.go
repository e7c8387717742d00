// Package memorytest holds the behaviour every memory.Store backend shares.
package memorytest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/PipeOpsHQ/rivalscope/memory"
)

func Run(t *testing.T, newStore func(t *testing.T) memory.Store) {
	t.Helper()

	t.Run("GetPutOverwrite", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ns := memory.NS(memory.CategoryCompetitors, "acme inc")

		if _, err := s.Get(ctx, ns, "profile"); !errors.Is(err, memory.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := s.Put(ctx, ns, "profile", json.RawMessage(`{"name":"Acme"}`)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if err := s.Put(ctx, ns, "profile", json.RawMessage(`{"name":"Acme Inc"}`)); err != nil {
			t.Fatalf("Put overwrite failed: %v", err)
		}
		rec, err := s.Get(ctx, ns, "profile")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		var got map[string]string
		if err := json.Unmarshal(rec.Value, &got); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if got["name"] != "Acme Inc" {
			t.Fatalf("expected latest write to win, got %v", got)
		}
		if rec.UpdatedAt.IsZero() {
			t.Fatalf("expected UpdatedAt to be set")
		}
	})

	t.Run("NamespacesAreIsolated", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a := memory.NS(memory.CategoryUsers, "u1")
		b := memory.NS(memory.CategorySessions, "u1")

		if err := s.Put(ctx, a, "profile", json.RawMessage(`1`)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if _, err := s.Get(ctx, b, "profile"); !errors.Is(err, memory.ErrNotFound) {
			t.Fatalf("expected category isolation, got %v", err)
		}
		if _, err := s.Get(ctx, memory.NS(memory.CategoryUsers, "u2"), "profile"); !errors.Is(err, memory.ErrNotFound) {
			t.Fatalf("expected id isolation, got %v", err)
		}
	})

	t.Run("ListByCategory", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, id := range []string{"a", "b"} {
			if err := s.Put(ctx, memory.NS(memory.CategoryCompetitors, id), "profile", json.RawMessage(`{}`)); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
		}
		if err := s.Put(ctx, memory.NS(memory.CategoryUsers, "u1"), "profile", json.RawMessage(`{}`)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		recs, err := s.List(ctx, memory.CategoryCompetitors)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(recs) != 2 {
			t.Fatalf("expected 2 competitor records, got %d", len(recs))
		}
		for _, rec := range recs {
			if rec.Namespace.Category != memory.CategoryCompetitors {
				t.Fatalf("unexpected category in list: %+v", rec.Namespace)
			}
		}
	})

	t.Run("RejectsEmptyAddress", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Put(ctx, memory.NS("", "x"), "k", json.RawMessage(`1`)); err == nil {
			t.Fatalf("expected error for empty category")
		}
		if err := s.Put(ctx, memory.NS("users", "x"), " ", json.RawMessage(`1`)); err == nil {
			t.Fatalf("expected error for empty key")
		}
	})
}
