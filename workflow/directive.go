package workflow

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PipeOpsHQ/rivalscope/memory"
)

var DefaultFocusAreas = []string{"overview", "products", "pricing", "competitors"}

// Scope is what the reviewer has asked for so far. Directives only ever add
// to it; reject at the plan gate is the only reset.
type Scope struct {
	FocusAreas  []string `json:"focusAreas"`
	Competitors []string `json:"competitors,omitempty"`
	Excluded    []string `json:"excluded,omitempty"`
	Constraints []string `json:"constraints,omitempty"`
}

// DefaultScope seeds a scope from stored user preferences.
func DefaultScope(prefs memory.Preferences) Scope {
	focus := prefs.FocusAreas
	if len(focus) == 0 {
		focus = DefaultFocusAreas
	}
	return Scope{
		FocusAreas: append([]string(nil), focus...),
		Excluded:   append([]string(nil), prefs.ExcludedCompetitors...),
	}
}

func (s Scope) IsExcluded(name string) bool {
	return containsFold(s.Excluded, name)
}

// Apply merges d into the scope.
func (s *Scope) Apply(d Directive) {
	for _, name := range d.Add {
		s.Competitors = addFold(s.Competitors, name)
		s.Excluded = removeFold(s.Excluded, name)
	}
	for _, name := range d.Remove {
		if containsFold(s.FocusAreas, name) {
			s.FocusAreas = removeFold(s.FocusAreas, name)
			continue
		}
		s.Competitors = removeFold(s.Competitors, name)
		s.Excluded = addFold(s.Excluded, name)
	}
	for _, name := range d.Exclude {
		s.Competitors = removeFold(s.Competitors, name)
		s.Excluded = addFold(s.Excluded, name)
	}
	for _, area := range d.Focus {
		s.FocusAreas = addFold(s.FocusAreas, area)
	}
	s.Constraints = append(s.Constraints, d.Constraints...)
}

// Directive is the parsed content of a modify action.
type Directive struct {
	ID          string    `json:"id"`
	Stage       StageName `json:"stage"`
	Raw         string    `json:"raw"`
	Add         []string  `json:"add,omitempty"`
	Remove      []string  `json:"remove,omitempty"`
	Focus       []string  `json:"focus,omitempty"`
	Exclude     []string  `json:"exclude,omitempty"`
	Constraints []string  `json:"constraints,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Names returns every entity the directive mentions explicitly.
func (d Directive) Names() []string {
	var out []string
	for _, group := range [][]string{d.Add, d.Remove, d.Exclude} {
		for _, n := range group {
			out = addFold(out, n)
		}
	}
	return out
}

func (d Directive) Empty() bool {
	return len(d.Add) == 0 && len(d.Remove) == 0 && len(d.Focus) == 0 &&
		len(d.Exclude) == 0 && len(d.Constraints) == 0
}

var (
	clauseSplit = regexp.MustCompile(`[;\n]+`)
	listSplit   = regexp.MustCompile(`\s*[,&]\s*`)
	lastAnd     = regexp.MustCompile(`(?i)^(?:(.*\S)\s+)?and\s+(\S.*)$`)
	verbPattern = regexp.MustCompile(`(?i)^(add|remove|drop|exclude|focus\s+on)\s+(.+)$`)
)

// ParseDirective understands "add A, B and C", "remove X", "drop X",
// "exclude X" and "focus on X". Clauses are split on ';' or newlines;
// anything unrecognised becomes a constraint.
func ParseDirective(raw string) Directive {
	d := Directive{
		ID:        uuid.NewString(),
		Raw:       strings.TrimSpace(raw),
		CreatedAt: time.Now().UTC(),
	}
	for _, clause := range clauseSplit.Split(raw, -1) {
		clause = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(clause), "."))
		if clause == "" {
			continue
		}
		m := verbPattern.FindStringSubmatch(clause)
		if m == nil {
			d.Constraints = append(d.Constraints, clause)
			continue
		}
		items := splitList(m[2])
		switch verb := strings.Join(strings.Fields(strings.ToLower(m[1])), " "); verb {
		case "add":
			d.Add = append(d.Add, items...)
		case "remove", "drop":
			d.Remove = append(d.Remove, items...)
		case "exclude":
			d.Exclude = append(d.Exclude, items...)
		case "focus on":
			for _, item := range items {
				d.Focus = append(d.Focus, strings.ToLower(item))
			}
		}
	}
	return d
}

// splitList separates names on ',' and '&'. "and" only separates the last
// item of a comma list, so "Procter and Gamble" stays one name.
func splitList(s string) []string {
	parts := listSplit.Split(s, -1)
	if n := len(parts); n > 1 && strings.Contains(s, ",") {
		if m := lastAnd.FindStringSubmatch(strings.TrimSpace(parts[n-1])); m != nil {
			parts = append(parts[:n-1], m[1], m[2])
		}
	}
	var out []string
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = addFold(out, part)
		}
	}
	return out
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), strings.TrimSpace(v)) {
			return true
		}
	}
	return false
}

func addFold(list []string, v string) []string {
	v = strings.TrimSpace(v)
	if v == "" || containsFold(list, v) {
		return list
	}
	return append(list, v)
}

func removeFold(list []string, v string) []string {
	out := list[:0:0]
	for _, item := range list {
		if !strings.EqualFold(strings.TrimSpace(item), strings.TrimSpace(v)) {
			out = append(out, item)
		}
	}
	return out
}
