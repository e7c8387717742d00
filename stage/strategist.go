package stage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/PipeOpsHQ/rivalscope/memory"
	"github.com/PipeOpsHQ/rivalscope/prompt"
	"github.com/PipeOpsHQ/rivalscope/workflow"
)

const (
	maxRecommendations = 5
	maxKeyFindings     = 5
)

// Strategist assesses each competitor, drafts a strategy, and on finalize
// writes insights and the session summary.
type Strategist struct {
	opts options
}

func NewStrategist(opts ...Option) *Strategist {
	return &Strategist{opts: newOptions(opts)}
}

func (s *Strategist) Name() workflow.StageName { return workflow.StageStrategy }

func (s *Strategist) Run(ctx context.Context, st *workflow.State, req workflow.Request) error {
	if st == nil {
		return fmt.Errorf("state is required")
	}
	if req.Op == workflow.OpFinalize {
		return s.finalize(ctx, st, req)
	}

	profiles := s.competitorProfiles(ctx, st, req.Memory)
	analyses := make([]memory.Analysis, 0, len(profiles))
	for i := range profiles {
		analyses = append(analyses, s.analyze(ctx, st, &profiles[i], req))
	}
	st.Analyses = analyses

	draft := s.draft(ctx, st, analyses, req)
	draft.Analyses = analyses
	st.Drafts = append(st.Drafts, draft)
	st.Say(fmt.Sprintf("Strategy draft %d: %d feature gaps, %d opportunities, %d positioning suggestions.",
		draft.Version, len(draft.FeatureGaps), len(draft.Opportunities), len(draft.PositioningSuggestions)))
	s.opts.logger.Info("strategy drafted", "session_id", st.SessionID, "version", draft.Version, "competitors", len(analyses))
	return nil
}

// competitorProfiles collects every non-excluded competitor the research
// found, preferring the cached profile when one exists.
func (s *Strategist) competitorProfiles(ctx context.Context, st *workflow.State, mem memory.Store) []memory.CompetitorProfile {
	var names []workflow.Competitor
	if st.Research != nil {
		names = append(names, st.Research.Competitors...)
	}
	if st.Plan != nil {
		for _, t := range st.Plan.Tasks {
			if t.Type == workflow.TaskCompetitorDeepDive {
				names = append(names, workflow.Competitor{Name: t.Target, URL: t.URL})
			}
		}
	}

	seen := map[string]bool{}
	var out []memory.CompetitorProfile
	for _, c := range names {
		id := memory.NormalizeID(c.Name)
		if id == "" || seen[id] || st.Scope.IsExcluded(c.Name) || strings.EqualFold(c.Name, st.CompanyName) {
			continue
		}
		seen[id] = true
		profile := memory.CompetitorProfile{Name: c.Name, Website: c.URL, Description: c.Relevance}
		if mem != nil {
			cached, err := memory.LoadCompetitor(ctx, mem, c.Name)
			switch {
			case err == nil:
				profile = cached
			case !errors.Is(err, memory.ErrNotFound):
				s.opts.logger.Warn("competitor profile read failed", "competitor", c.Name, "error", err)
			}
		}
		out = append(out, profile)
	}
	return out
}

type analysisOutput struct {
	Competitor     string   `json:"competitor"`
	Strengths      []string `json:"strengths"`
	Weaknesses     []string `json:"weaknesses"`
	MarketPosition string   `json:"market_position"`
	ThreatLevel    string   `json:"threat_level"`
}

// analyze reuses the analysis cached on the competitor profile unless the
// reviewer asked for a revision. Model failures are recorded on st and
// replaced by the fallback.
func (s *Strategist) analyze(ctx context.Context, st *workflow.State, p *memory.CompetitorProfile, req workflow.Request) memory.Analysis {
	if p.Analysis != nil && req.Op != workflow.OpRevise {
		s.opts.emitCache(ctx, true, p.Name, "analysis")
		return *p.Analysis
	}
	s.opts.emitCache(ctx, false, p.Name, "analysis")

	var out analysisOutput
	ok, err := s.opts.synthesize(ctx, prompt.AnalyzeCompetitor, map[string]string{
		"company_profile":    toJSON(companyProfile(st)),
		"competitor_profile": toJSON(p),
	}, &out)
	var a memory.Analysis
	if ok {
		a = memory.Analysis{
			Competitor:     p.Name,
			Strengths:      out.Strengths,
			Weaknesses:     out.Weaknesses,
			MarketPosition: out.MarketPosition,
			ThreatLevel:    normalizeThreat(out.ThreatLevel),
			LLMGenerated:   true,
		}
	} else {
		a = fallbackAnalysis(*p, companyProfile(st))
	}
	if err != nil {
		st.AddFailure(workflow.Failure{Stage: workflow.StageStrategy, Target: p.Name, Reason: fmt.Sprintf("analyze %s: %v", p.Name, err), At: s.opts.now()})
	}

	p.Analysis = &a
	if req.Memory != nil {
		if werr := memory.SaveCompetitor(ctx, req.Memory, *p); werr != nil {
			s.opts.logger.Warn("analysis cache write failed", "competitor", p.Name, "error", werr)
		}
	}
	return a
}

type draftOutput struct {
	FeatureGaps            []string `json:"feature_gaps"`
	Opportunities          []string `json:"opportunities"`
	PositioningSuggestions []string `json:"positioning_suggestions"`
	FundraisingIntel       []string `json:"fundraising_intel"`
	Summary                string   `json:"summary"`
}

func (s *Strategist) draft(ctx context.Context, st *workflow.State, analyses []memory.Analysis, req workflow.Request) workflow.StrategyDraft {
	d := workflow.StrategyDraft{Version: nextDraftVersion(st.Drafts), CreatedAt: s.opts.now()}
	if req.Directive != nil {
		d.Directive = req.Directive.Raw
	}

	var out draftOutput
	ok, err := s.opts.synthesize(ctx, prompt.GenerateStrategy, map[string]string{
		"company_name":         st.CompanyName,
		"company_profile":      toJSON(companyProfile(st)),
		"competitive_analysis": toJSON(analyses),
		"directives":           joinOr(strategyGuidance(st), "none"),
	}, &out)
	if ok {
		d.FeatureGaps = out.FeatureGaps
		d.Opportunities = out.Opportunities
		d.PositioningSuggestions = out.PositioningSuggestions
		d.FundraisingIntel = out.FundraisingIntel
		d.Summary = out.Summary
		d.LLMGenerated = true
	} else {
		fallbackDraft(&d, st, analyses, s.profilesFor(ctx, analyses, req.Memory))
	}
	if err != nil {
		st.AddFailure(workflow.Failure{Stage: workflow.StageStrategy, Reason: "generate strategy: " + err.Error(), At: s.opts.now()})
	}
	return d
}

func (s *Strategist) profilesFor(ctx context.Context, analyses []memory.Analysis, mem memory.Store) []memory.CompetitorProfile {
	if mem == nil {
		return nil
	}
	out := make([]memory.CompetitorProfile, 0, len(analyses))
	for _, a := range analyses {
		if p, err := memory.LoadCompetitor(ctx, mem, a.Competitor); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func (s *Strategist) finalize(ctx context.Context, st *workflow.State, req workflow.Request) error {
	d := st.LatestDraft()
	if d == nil {
		return fmt.Errorf("no strategy draft to finalize")
	}
	recs := append(append([]string(nil), d.Opportunities...), d.PositioningSuggestions...)
	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}
	st.Insights = &workflow.Insights{
		CompanyName:     st.CompanyName,
		Summary:         d.Summary,
		Recommendations: recs,
		CompetitorCount: len(st.Analyses),
		DraftVersion:    d.Version,
		GeneratedAt:     s.opts.now(),
	}
	st.Say(fmt.Sprintf("Strategy approved. Final insights for %s are ready.", st.CompanyName))

	if req.Memory == nil {
		return nil
	}
	sum := memory.SessionSummary{
		SessionID:          st.SessionID,
		Query:              st.Query,
		CompanyName:        st.CompanyName,
		Phase:              "completed",
		KeyFindings:        keyFindings(st),
		CompetitorCount:    len(st.Analyses),
		Decisions:          decisions(st),
		FeatureGapsCount:   len(d.FeatureGaps),
		OpportunitiesCount: len(d.Opportunities),
		CompletedAt:        s.opts.now(),
	}
	if err := memory.SaveSessionSummary(ctx, req.Memory, sum); err != nil {
		return fmt.Errorf("failed to save session summary: %w", err)
	}
	return nil
}

func companyProfile(st *workflow.State) memory.CompetitorProfile {
	if st.Research != nil && st.Research.CompanyProfile != nil {
		return *st.Research.CompanyProfile
	}
	return memory.CompetitorProfile{Name: st.CompanyName, Website: st.CompanyURL}
}

// strategyGuidance is every strategy directive so far plus standing
// constraints, oldest first.
func strategyGuidance(st *workflow.State) []string {
	var out []string
	for _, d := range st.Directives {
		if d.Stage == workflow.StageStrategy && d.Raw != "" {
			out = append(out, d.Raw)
		}
	}
	for _, c := range st.Scope.Constraints {
		if !containsString(out, c) {
			out = append(out, c)
		}
	}
	return out
}

func keyFindings(st *workflow.State) []string {
	var out []string
	if d := st.LatestDraft(); d != nil && d.Summary != "" {
		out = append(out, truncate(d.Summary, 300))
	}
	threats := append([]memory.Analysis(nil), st.Analyses...)
	sort.SliceStable(threats, func(i, j int) bool { return threatRank(threats[i].ThreatLevel) < threatRank(threats[j].ThreatLevel) })
	for _, a := range threats {
		if len(out) >= maxKeyFindings {
			break
		}
		out = append(out, fmt.Sprintf("%s: %s threat, %s", a.Competitor, a.ThreatLevel, joinOr(a.Strengths, "no notable strengths")))
	}
	return out
}

func decisions(st *workflow.State) []string {
	out := make([]string, 0, len(st.Directives)+1)
	for _, d := range st.Directives {
		out = append(out, fmt.Sprintf("%s: %s", d.Stage, d.Raw))
	}
	if d := st.LatestDraft(); d != nil {
		out = append(out, fmt.Sprintf("approved strategy draft %d", d.Version))
	}
	return out
}

func nextDraftVersion(drafts []workflow.StrategyDraft) int {
	v := 0
	for _, d := range drafts {
		if d.Version > v {
			v = d.Version
		}
	}
	return v + 1
}

func normalizeThreat(level string) string {
	switch l := strings.ToLower(strings.TrimSpace(level)); l {
	case "high", "medium", "low":
		return l
	default:
		return "medium"
	}
}

func threatRank(level string) int {
	switch level {
	case "high":
		return 0
	case "medium":
		return 1
	default:
		return 2
	}
}

func toJSON(v any) string {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
