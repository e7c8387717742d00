package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/PipeOpsHQ/rivalscope/memory"
	"github.com/PipeOpsHQ/rivalscope/memory/inmem"
)

func TestPreferencesDefaultWhenMissing(t *testing.T) {
	prefs, err := memory.LoadPreferences(context.Background(), inmem.New(), "nobody")
	if err != nil {
		t.Fatalf("LoadPreferences failed: %v", err)
	}
	if diff := cmp.Diff(memory.Preferences{}, prefs); diff != "" {
		t.Fatalf("unexpected preferences (-want +got):\n%s", diff)
	}
}

func TestCompetitorRoundTripIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s := inmem.New()
	in := memory.CompetitorProfile{
		Name:        "Acme Inc",
		Website:     "https://acme.example",
		Market:      "analytics",
		KeyFeatures: []string{"dashboards"},
		Analysis:    &memory.Analysis{Competitor: "Acme Inc", ThreatLevel: "medium"},
	}
	if err := memory.SaveCompetitor(ctx, s, in); err != nil {
		t.Fatalf("SaveCompetitor failed: %v", err)
	}
	got, err := memory.LoadCompetitor(ctx, s, "  ACME INC ")
	if err != nil {
		t.Fatalf("LoadCompetitor failed: %v", err)
	}
	if diff := cmp.Diff(in, got, cmpopts.IgnoreFields(memory.CompetitorProfile{}, "FetchedAt")); diff != "" {
		t.Fatalf("competitor mismatch (-want +got):\n%s", diff)
	}
	if got.FetchedAt.IsZero() {
		t.Fatalf("expected FetchedAt to be stamped")
	}

	if _, err := memory.LoadCompetitor(ctx, s, "other"); !errors.Is(err, memory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSearchCompetitors(t *testing.T) {
	ctx := context.Background()
	s := inmem.New()
	for _, p := range []memory.CompetitorProfile{
		{Name: "Acme", Website: "https://acme.io", Market: "payments"},
		{Name: "Globex", Website: "https://globex.com", Market: "Payments infrastructure"},
		{Name: "Initech", Website: "https://initech.com", Market: "staffing"},
	} {
		if err := memory.SaveCompetitor(ctx, s, p); err != nil {
			t.Fatalf("SaveCompetitor failed: %v", err)
		}
	}
	// Analysis-only keys in the category must be ignored.
	if err := memory.PutJSON(ctx, s, memory.NS(memory.CategoryCompetitors, "acme"), "research.company_profile", map[string]string{"x": "y"}); err != nil {
		t.Fatalf("PutJSON failed: %v", err)
	}

	got, err := memory.SearchCompetitors(ctx, s, "payments", 0)
	if err != nil {
		t.Fatalf("SearchCompetitors failed: %v", err)
	}
	names := make([]string, 0, len(got))
	for _, p := range got {
		names = append(names, p.Name)
	}
	if diff := cmp.Diff([]string{"Acme", "Globex"}, names); diff != "" {
		t.Fatalf("unexpected matches (-want +got):\n%s", diff)
	}

	limited, _ := memory.SearchCompetitors(ctx, s, "https", 1)
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
	if none, _ := memory.SearchCompetitors(ctx, s, " ", 5); len(none) != 0 {
		t.Fatalf("expected no matches for blank query")
	}
}

func TestSessionSummaryNamespace(t *testing.T) {
	ctx := context.Background()
	s := inmem.New()
	if err := memory.SaveSessionSummary(ctx, s, memory.SessionSummary{SessionID: "s1", CompanyName: "Example"}); err != nil {
		t.Fatalf("SaveSessionSummary failed: %v", err)
	}
	if _, err := s.Get(ctx, memory.NS(memory.CategorySessions, "s1"), memory.KeySummary); err != nil {
		t.Fatalf("expected summary under sessions/s1: %v", err)
	}
	got, err := memory.LoadSessionSummary(ctx, s, "s1")
	if err != nil || got.CompanyName != "Example" {
		t.Fatalf("LoadSessionSummary = %+v, %v", got, err)
	}
}
