package stage

import (
	"fmt"
	"strings"

	"github.com/PipeOpsHQ/rivalscope/memory"
	"github.com/PipeOpsHQ/rivalscope/workflow"
)

// fallbackAnalysis derives an assessment from profile fields alone.
func fallbackAnalysis(p, company memory.CompetitorProfile) memory.Analysis {
	a := memory.Analysis{
		Competitor:     p.Name,
		MarketPosition: p.Market,
		ThreatLevel:    "low",
	}
	if a.MarketPosition == "" {
		a.MarketPosition = "unknown"
	}
	for _, f := range p.KeyFeatures {
		if !containsFoldString(company.KeyFeatures, f) {
			a.Strengths = append(a.Strengths, f)
		}
	}
	if p.PricingModel != "" {
		a.Strengths = append(a.Strengths, "pricing: "+p.PricingModel)
	}
	if len(p.Products) == 0 {
		a.Weaknesses = append(a.Weaknesses, "no clear product lineup found")
	}
	if p.Description == "" {
		a.Weaknesses = append(a.Weaknesses, "limited public information")
	}
	switch {
	case len(a.Strengths) >= 3:
		a.ThreatLevel = "high"
	case len(a.Strengths) > 0:
		a.ThreatLevel = "medium"
	}
	return a
}

// fallbackDraft fills d from the analyses without a model.
func fallbackDraft(d *workflow.StrategyDraft, st *workflow.State, analyses []memory.Analysis, profiles []memory.CompetitorProfile) {
	company := companyProfile(st)
	for _, p := range profiles {
		for _, f := range p.KeyFeatures {
			gap := fmt.Sprintf("%s (offered by %s)", f, p.Name)
			if !containsFoldString(company.KeyFeatures, f) && !containsString(d.FeatureGaps, gap) {
				d.FeatureGaps = append(d.FeatureGaps, gap)
			}
		}
		if p.Funding != "" && !strings.EqualFold(p.Funding, "unknown") {
			d.FundraisingIntel = append(d.FundraisingIntel, fmt.Sprintf("%s: %s", p.Name, p.Funding))
		}
	}
	for _, a := range analyses {
		for _, w := range a.Weaknesses {
			d.Opportunities = append(d.Opportunities, fmt.Sprintf("%s shows %s", a.Competitor, w))
		}
	}
	for _, area := range st.Scope.FocusAreas {
		d.PositioningSuggestions = append(d.PositioningSuggestions, fmt.Sprintf("Lead messaging on %s against %d tracked competitors", area, len(analyses)))
	}
	for _, c := range strategyGuidance(st) {
		d.PositioningSuggestions = append(d.PositioningSuggestions, "Reviewer guidance: "+c)
	}

	high := 0
	for _, a := range analyses {
		if a.ThreatLevel == "high" {
			high++
		}
	}
	d.Summary = fmt.Sprintf("%s faces %d tracked competitors, %d of them rated high threat. %d feature gaps and %d opportunities were identified from research data.",
		st.CompanyName, len(analyses), high, len(d.FeatureGaps), len(d.Opportunities))
	d.LLMGenerated = false
}

func containsFoldString(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), strings.TrimSpace(v)) {
			return true
		}
	}
	return false
}
