package stage

import (
	"strings"

	"github.com/PipeOpsHQ/rivalscope/memory"
	"github.com/PipeOpsHQ/rivalscope/workflow"
)

type resultKey struct {
	target string
	source string
}

func keyOf(r workflow.ResearchResult) resultKey {
	return resultKey{target: memory.NormalizeID(r.Target), source: strings.TrimSpace(r.Source)}
}

// Merge folds incoming into existing keyed on (target, source). A later
// result replaces an earlier one in place; new keys are appended in arrival
// order. Merging the same batch twice is a no-op.
func Merge(existing, incoming []workflow.ResearchResult) []workflow.ResearchResult {
	out := make([]workflow.ResearchResult, 0, len(existing)+len(incoming))
	index := map[resultKey]int{}
	for _, batch := range [][]workflow.ResearchResult{existing, incoming} {
		for _, r := range batch {
			k := keyOf(r)
			if i, ok := index[k]; ok {
				out[i] = r
				continue
			}
			index[k] = len(out)
			out = append(out, r)
		}
	}
	return out
}

// dropTargets removes results whose target is excluded.
func dropTargets(results []workflow.ResearchResult, excluded func(string) bool) []workflow.ResearchResult {
	out := results[:0:0]
	for _, r := range results {
		if excluded(r.Target) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func mergeCompetitors(existing, incoming []workflow.Competitor) []workflow.Competitor {
	out := make([]workflow.Competitor, 0, len(existing)+len(incoming))
	index := map[string]int{}
	for _, batch := range [][]workflow.Competitor{existing, incoming} {
		for _, c := range batch {
			k := memory.NormalizeID(c.Name)
			if k == "" {
				continue
			}
			if i, ok := index[k]; ok {
				out[i] = c
				continue
			}
			index[k] = len(out)
			out = append(out, c)
		}
	}
	return out
}
