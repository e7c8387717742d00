package workflow

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/PipeOpsHQ/rivalscope/memory"
)

func TestParseDirective(t *testing.T) {
	cases := []struct {
		raw  string
		want Directive
	}{
		{raw: "add CompetitorX", want: Directive{Add: []string{"CompetitorX"}}},
		{raw: "Add Acme, Globex and Initech", want: Directive{Add: []string{"Acme", "Globex", "Initech"}}},
		{raw: "add Acme, Globex, and Initech", want: Directive{Add: []string{"Acme", "Globex", "Initech"}}},
		{raw: "add Procter and Gamble", want: Directive{Add: []string{"Procter and Gamble"}}},
		{raw: "exclude Johnson and Johnson & Acme", want: Directive{Exclude: []string{"Johnson and Johnson", "Acme"}}},
		{raw: "drop Acme; focus on Pricing & Hiring", want: Directive{Remove: []string{"Acme"}, Focus: []string{"pricing", "hiring"}}},
		{raw: "exclude Globex.\nmake it shorter", want: Directive{Exclude: []string{"Globex"}, Constraints: []string{"make it shorter"}}},
		{raw: "emphasize enterprise buyers", want: Directive{Constraints: []string{"emphasize enterprise buyers"}}},
	}
	ignore := cmpopts.IgnoreFields(Directive{}, "ID", "Raw", "CreatedAt", "Stage")
	for _, tc := range cases {
		got := ParseDirective(tc.raw)
		if diff := cmp.Diff(tc.want, got, ignore, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("ParseDirective(%q) mismatch (-want +got):\n%s", tc.raw, diff)
		}
		if got.ID == "" {
			t.Errorf("ParseDirective(%q) has no id", tc.raw)
		}
	}
}

func TestScopeApplyIsCumulative(t *testing.T) {
	s := DefaultScope(memory.Preferences{ExcludedCompetitors: []string{"Initech"}})
	s.Apply(ParseDirective("add Acme, Initech"))
	s.Apply(ParseDirective("focus on hiring"))
	s.Apply(ParseDirective("remove pricing; exclude Acme"))
	s.Apply(ParseDirective("keep it brief"))

	want := Scope{
		FocusAreas:  []string{"overview", "products", "competitors", "hiring"},
		Competitors: []string{"Initech"},
		Excluded:    []string{"Acme"},
		Constraints: []string{"keep it brief"},
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Fatalf("scope mismatch (-want +got):\n%s", diff)
	}
	if !s.IsExcluded("acme") || s.IsExcluded("initech") {
		t.Fatalf("unexpected exclusion state %+v", s)
	}
}

func TestDefaultScopeUsesPreferences(t *testing.T) {
	s := DefaultScope(memory.Preferences{FocusAreas: []string{"security"}})
	if diff := cmp.Diff([]string{"security"}, s.FocusAreas); diff != "" {
		t.Fatalf("focus mismatch: %s", diff)
	}
	s = DefaultScope(memory.Preferences{})
	s.FocusAreas[0] = "mutated"
	if DefaultFocusAreas[0] != "overview" {
		t.Fatalf("DefaultScope must copy the default focus areas")
	}
}

func TestParseAction(t *testing.T) {
	for _, raw := range []string{"approve", " Modify ", "REJECT"} {
		if _, err := ParseAction(raw); err != nil {
			t.Errorf("ParseAction(%q): %v", raw, err)
		}
	}
	if _, err := ParseAction("skip"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestStatusesAreClosed(t *testing.T) {
	if got := len(Statuses()); got != 7 {
		t.Fatalf("expected seven statuses, got %d", got)
	}
	if Status("done").Valid() {
		t.Fatalf("unknown status must be invalid")
	}
	for _, r := range DefaultRoutes {
		if !r.Next.Valid() || !r.Transient.Valid() {
			t.Fatalf("route %+v uses an unknown status", r)
		}
	}
}

func TestResolveTargetAndCompanyName(t *testing.T) {
	cases := []struct {
		ref, url, name, domain string
	}{
		{"example.com", "https://example.com", "Example", "example.com"},
		{"https://www.acme-labs.io/pricing", "https://www.acme-labs.io/pricing", "Acme-Labs", "acme-labs.io"},
		{" http://Globex.com ", "http://Globex.com", "Globex", "globex.com"},
	}
	for _, tc := range cases {
		got, err := ResolveTarget(tc.ref)
		if err != nil {
			t.Fatalf("ResolveTarget(%q): %v", tc.ref, err)
		}
		if got != tc.url {
			t.Errorf("ResolveTarget(%q) = %q, want %q", tc.ref, got, tc.url)
		}
		if n := InferCompanyName(got); n != tc.name {
			t.Errorf("InferCompanyName(%q) = %q, want %q", got, n, tc.name)
		}
		if d := Domain(got); d != tc.domain {
			t.Errorf("Domain(%q) = %q, want %q", got, d, tc.domain)
		}
	}
}
