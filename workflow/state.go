package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/PipeOpsHQ/rivalscope/memory"
	"github.com/PipeOpsHQ/rivalscope/types"
)

type TaskType string

const (
	TaskCompanyProfile      TaskType = "company_profile"
	TaskCompetitorDiscovery TaskType = "competitor_discovery"
	TaskCompetitorDeepDive  TaskType = "competitor_deep_dive"
)

type Task struct {
	ID         string   `json:"id"`
	Type       TaskType `json:"type"`
	Target     string   `json:"target"`
	URL        string   `json:"url,omitempty"`
	FocusAreas []string `json:"focusAreas,omitempty"`
}

// TaskID is stable for a (type, target) pair so re-planning is repeatable.
func TaskID(t TaskType, target string) string {
	return string(t) + ":" + memory.NormalizeID(target)
}

type Plan struct {
	Tasks     []Task    `json:"tasks"`
	CreatedAt time.Time `json:"createdAt"`
}

// ResearchResult is one finding. Aggregation keys on (Target, Source).
type ResearchResult struct {
	Target       string         `json:"target"`
	Source       string         `json:"source"`
	TaskID       string         `json:"taskId,omitempty"`
	TaskType     TaskType       `json:"taskType,omitempty"`
	Title        string         `json:"title,omitempty"`
	Summary      string         `json:"summary,omitempty"`
	KeyPoints    []string       `json:"keyPoints,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	Cached       bool           `json:"cached,omitempty"`
	LLMGenerated bool           `json:"llmGenerated"`
	FetchedAt    time.Time      `json:"fetchedAt"`
}

type Competitor struct {
	Name      string `json:"name"`
	URL       string `json:"url,omitempty"`
	Relevance string `json:"relevance,omitempty"`
	Priority  int    `json:"priority"`
}

// Failure records a collaborator error the session absorbed.
type Failure struct {
	Stage  StageName `json:"stage"`
	TaskID string    `json:"taskId,omitempty"`
	Target string    `json:"target,omitempty"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Research is one aggregate. Reject at the research gate swaps the whole
// aggregate back to its predecessor.
type Research struct {
	Version        int                       `json:"version"`
	Results        []ResearchResult          `json:"results"`
	Failures       []Failure                 `json:"failures,omitempty"`
	CompanyProfile *memory.CompetitorProfile `json:"companyProfile,omitempty"`
	Competitors    []Competitor              `json:"competitors,omitempty"`
	CreatedAt      time.Time                 `json:"createdAt"`
}

type StrategyDraft struct {
	Version                int       `json:"version"`
	FeatureGaps            []string  `json:"featureGaps"`
	Opportunities          []string  `json:"opportunities"`
	PositioningSuggestions []string  `json:"positioningSuggestions"`
	FundraisingIntel       []string  `json:"fundraisingIntel"`
	Summary                string    `json:"summary"`
	Directive              string    `json:"directive,omitempty"`
	LLMGenerated           bool      `json:"llmGenerated"`
	CreatedAt              time.Time `json:"createdAt"`
	// Analyses are the competitor analyses this draft was written from.
	Analyses []memory.Analysis `json:"analyses,omitempty"`
}

// ResearchSnapshot is everything a research revision may change. Rejecting
// the revision puts all of it back.
type ResearchSnapshot struct {
	Research   *Research   `json:"research,omitempty"`
	Plan       *Plan       `json:"plan,omitempty"`
	Scope      Scope       `json:"scope"`
	Directives []Directive `json:"directives,omitempty"`
}

type Insights struct {
	CompanyName     string    `json:"companyName"`
	Summary         string    `json:"summary"`
	Recommendations []string  `json:"recommendations"`
	CompetitorCount int       `json:"competitorCount"`
	DraftVersion    int       `json:"draftVersion"`
	GeneratedAt     time.Time `json:"generatedAt"`
}

// State is the full session payload carried between gates. Pointer fields
// are absent until the stage that owns them has run.
type State struct {
	SessionID   string    `json:"sessionId"`
	UserID      string    `json:"userId,omitempty"`
	CompanyURL  string    `json:"companyUrl"`
	CompanyName string    `json:"companyName"`
	Query       string    `json:"query,omitempty"`
	Stage       StageName `json:"stage"`
	Status      Status    `json:"status"`
	Revision    int       `json:"revision"`

	Scope      Scope       `json:"scope"`
	Directives []Directive `json:"directives,omitempty"`

	UserProfile     *memory.UserProfile `json:"userProfile,omitempty"`
	Plan            *Plan               `json:"plan,omitempty"`
	Research        *Research           `json:"research,omitempty"`
	ResearchHistory []ResearchSnapshot  `json:"researchHistory,omitempty"`
	Analyses        []memory.Analysis   `json:"analyses,omitempty"`
	Drafts          []StrategyDraft     `json:"drafts,omitempty"`
	Insights        *Insights           `json:"insights,omitempty"`

	Failures []Failure       `json:"failures,omitempty"`
	Messages []types.Message `json:"messages,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LatestDraft returns nil before the strategy stage has produced one.
func (s *State) LatestDraft() *StrategyDraft {
	if s == nil || len(s.Drafts) == 0 {
		return nil
	}
	d := s.Drafts[len(s.Drafts)-1]
	return &d
}

func (s *State) AddFailure(f Failure) {
	if f.At.IsZero() {
		f.At = time.Now().UTC()
	}
	s.Failures = append(s.Failures, f)
}

func (s *State) Say(content string) {
	s.Messages = append(s.Messages, types.Message{Role: types.RoleAssistant, Content: content})
}

// pushResearch records the research aggregate together with the plan, scope
// and directives it was built from, so reject can restore all of them.
func (s *State) pushResearch() error {
	snap, err := clone(ResearchSnapshot{
		Research:   s.Research,
		Plan:       s.Plan,
		Scope:      s.Scope,
		Directives: s.Directives,
	})
	if err != nil {
		return err
	}
	s.ResearchHistory = append(s.ResearchHistory, snap)
	return nil
}

// restoreResearch returns to the last recorded snapshot. Without one the
// aggregate is emptied and the plan and scope are left alone.
func (s *State) restoreResearch() {
	n := len(s.ResearchHistory)
	if n == 0 {
		s.Research = &Research{Results: []ResearchResult{}, CreatedAt: time.Now().UTC()}
		return
	}
	prev := s.ResearchHistory[n-1]
	s.ResearchHistory = s.ResearchHistory[:n-1]
	s.Research = prev.Research
	if s.Research == nil {
		s.Research = &Research{Results: []ResearchResult{}, CreatedAt: time.Now().UTC()}
	}
	s.Plan = prev.Plan
	s.Scope = prev.Scope
	s.Directives = prev.Directives
}

// revertDraft discards the newest draft and the analyses behind it. A lone
// draft is kept since there is nothing earlier to return to.
func (s *State) revertDraft() bool {
	if len(s.Drafts) < 2 {
		return false
	}
	s.Drafts = s.Drafts[:len(s.Drafts)-1]
	s.Analyses = append([]memory.Analysis(nil), s.Drafts[len(s.Drafts)-1].Analyses...)
	return true
}

func (s State) snapshot() (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint snapshot: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint snapshot map: %w", err)
	}
	return out, nil
}

func restoreState(raw map[string]any) (State, error) {
	if len(raw) == 0 {
		return State{}, fmt.Errorf("checkpoint state is empty")
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return State{}, fmt.Errorf("failed to marshal checkpoint state: %w", err)
	}
	var st State
	if err := json.Unmarshal(payload, &st); err != nil {
		return State{}, fmt.Errorf("failed to decode checkpoint state: %w", err)
	}
	return st, nil
}

func clone[T any](v T) (T, error) {
	var out T
	raw, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("failed to copy state: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to copy state: %w", err)
	}
	return out, nil
}
