package stage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/PipeOpsHQ/rivalscope/guardrail"
	"github.com/PipeOpsHQ/rivalscope/internal/chunk"
	"github.com/PipeOpsHQ/rivalscope/memory"
	"github.com/PipeOpsHQ/rivalscope/prompt"
	"github.com/PipeOpsHQ/rivalscope/tools"
	"github.com/PipeOpsHQ/rivalscope/workflow"
)

const (
	maxDiscoveryHits = 10
	maxCompetitors   = 5
	deepDiveHits     = 3
	fallbackSummary  = 280
)

var deepDivePages = []string{"/", "/pricing"}

// Researcher runs plan tasks concurrently and folds their results into the
// session's research aggregate. Every task is cache-aside against memory:
// fresh cached output is reused, misses call search and scrape and write
// back.
type Researcher struct {
	opts     options
	searcher tools.Searcher
	fetcher  tools.Fetcher
}

func NewResearcher(searcher tools.Searcher, fetcher tools.Fetcher, opts ...Option) (*Researcher, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	o := newOptions(opts)
	return &Researcher{
		opts:     o,
		searcher: tools.ObservedSearcher(searcher, o.observer),
		fetcher:  tools.ObservedFetcher(fetcher, o.observer),
	}, nil
}

func (r *Researcher) Name() workflow.StageName { return workflow.StageResearch }

// taskOutcome is both what a task returns and what is cached for it.
type taskOutcome struct {
	Results     []workflow.ResearchResult `json:"results"`
	Profile     *memory.CompetitorProfile `json:"profile,omitempty"`
	Competitors []workflow.Competitor     `json:"competitors,omitempty"`
	Failures    []workflow.Failure        `json:"-"`
}

func cacheKey(t workflow.TaskType) string { return "research." + string(t) }

func (r *Researcher) Run(ctx context.Context, st *workflow.State, req workflow.Request) error {
	if st == nil {
		return fmt.Errorf("state is required")
	}
	if st.Plan == nil {
		return fmt.Errorf("research requires a plan")
	}

	agg := workflow.Research{Version: 1, Results: []workflow.ResearchResult{}, CreatedAt: r.opts.now()}
	if req.Op == workflow.OpRevise && st.Research != nil {
		agg.Version = st.Research.Version + 1
		agg.Results = dropTargets(st.Research.Results, st.Scope.IsExcluded)
		agg.CompanyProfile = st.Research.CompanyProfile
		for _, c := range st.Research.Competitors {
			if !st.Scope.IsExcluded(c.Name) {
				agg.Competitors = append(agg.Competitors, c)
			}
		}
	} else if st.Research != nil {
		agg.Version = st.Research.Version + 1
	}

	tasks, refresh := r.selectTasks(st, req)
	outcomes := r.runTasks(ctx, tasks, refresh, st.Scope, req.Memory)

	for i, task := range tasks {
		o := outcomes[i]
		agg.Results = Merge(agg.Results, o.Results)
		if task.Type == workflow.TaskCompanyProfile && o.Profile != nil {
			agg.CompanyProfile = o.Profile
		}
		var found []workflow.Competitor
		for _, c := range o.Competitors {
			if !st.Scope.IsExcluded(c.Name) && !strings.EqualFold(c.Name, st.CompanyName) {
				found = append(found, c)
			}
		}
		agg.Competitors = mergeCompetitors(agg.Competitors, found)
		for _, f := range o.Failures {
			agg.Failures = append(agg.Failures, f)
			st.AddFailure(f)
		}
	}
	st.Research = &agg

	st.Say(fmt.Sprintf("Research ran %d of %d tasks: %d results, %d competitors identified, %d failures.",
		len(tasks), len(st.Plan.Tasks), len(agg.Results), len(agg.Competitors), len(agg.Failures)))
	r.opts.logger.Info("research aggregated",
		"session_id", st.SessionID,
		"tasks", len(tasks),
		"results", len(agg.Results),
		"failures", len(agg.Failures),
		"version", agg.Version,
	)
	return nil
}

// selectTasks picks what to run. A plain run covers the whole plan. A
// revision adds deep dives for newly named competitors, drops excluded ones
// and re-runs only the tasks the directive refers to; a focus change
// re-runs everything. refresh bypasses cached output.
func (r *Researcher) selectTasks(st *workflow.State, req workflow.Request) ([]workflow.Task, bool) {
	kept := st.Plan.Tasks[:0:0]
	for _, t := range st.Plan.Tasks {
		if t.Type == workflow.TaskCompetitorDeepDive && st.Scope.IsExcluded(t.Target) {
			continue
		}
		kept = append(kept, t)
	}
	st.Plan.Tasks = kept

	if req.Op != workflow.OpRevise || req.Directive == nil {
		return append([]workflow.Task(nil), st.Plan.Tasks...), false
	}
	d := req.Directive

	selected := map[string]bool{}
	for _, name := range d.Add {
		id := workflow.TaskID(workflow.TaskCompetitorDeepDive, name)
		if !hasTask(st.Plan.Tasks, id) {
			st.Plan.Tasks = append(st.Plan.Tasks, workflow.Task{
				ID:         id,
				Type:       workflow.TaskCompetitorDeepDive,
				Target:     name,
				FocusAreas: append([]string(nil), st.Scope.FocusAreas...),
			})
		}
		selected[id] = true
	}

	if len(d.Focus) > 0 {
		for i := range st.Plan.Tasks {
			if st.Plan.Tasks[i].Type != workflow.TaskCompetitorDiscovery {
				st.Plan.Tasks[i].FocusAreas = append([]string(nil), st.Scope.FocusAreas...)
			}
			selected[st.Plan.Tasks[i].ID] = true
		}
	}

	text := strings.ToLower(strings.Join(d.Constraints, " "))
	for _, t := range st.Plan.Tasks {
		if text != "" && strings.Contains(text, strings.ToLower(t.Target)) {
			selected[t.ID] = true
		}
	}

	var out []workflow.Task
	for _, t := range st.Plan.Tasks {
		if selected[t.ID] {
			out = append(out, t)
		}
	}
	return out, true
}

func hasTask(tasks []workflow.Task, id string) bool {
	for _, t := range tasks {
		if t.ID == id {
			return true
		}
	}
	return false
}

// runTasks fans tasks out over a bounded pool and waits for all of them.
// Task errors never cancel siblings; they come back as failures.
func (r *Researcher) runTasks(ctx context.Context, tasks []workflow.Task, refresh bool, scope workflow.Scope, mem memory.Store) []taskOutcome {
	outcomes := make([]taskOutcome, len(tasks))
	var g errgroup.Group
	g.SetLimit(r.opts.workers)
	for i, task := range tasks {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					outcomes[i] = taskOutcome{Failures: []workflow.Failure{r.failure(task, fmt.Errorf("task panicked: %v", p))}}
				}
			}()
			outcomes[i] = r.runTask(ctx, task, refresh, scope, mem)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (r *Researcher) runTask(ctx context.Context, task workflow.Task, refresh bool, scope workflow.Scope, mem memory.Store) taskOutcome {
	ns := memory.NS(memory.CategoryCompetitors, memory.NormalizeID(task.Target))
	key := cacheKey(task.Type)

	if mem != nil && !refresh {
		var cached taskOutcome
		at, err := memory.GetJSON(ctx, mem, ns, key, &cached)
		switch {
		case err == nil && r.opts.now().Sub(at) < r.opts.freshness:
			r.opts.emitCache(ctx, true, task.Target, key)
			for i := range cached.Results {
				cached.Results[i].Cached = true
			}
			return cached
		case err != nil && !errors.Is(err, memory.ErrNotFound):
			r.opts.logger.Warn("memory read failed", "target", task.Target, "key", key, "error", err)
		}
	}
	r.opts.emitCache(ctx, false, task.Target, key)

	var (
		out taskOutcome
		err error
	)
	switch task.Type {
	case workflow.TaskCompanyProfile:
		out, err = r.profile(ctx, task)
	case workflow.TaskCompetitorDiscovery:
		out, err = r.discover(ctx, task, scope)
	case workflow.TaskCompetitorDeepDive:
		out, err = r.deepDive(ctx, task)
	default:
		err = fmt.Errorf("unknown task type %q", task.Type)
	}
	if err != nil {
		out.Failures = append(out.Failures, r.failure(task, err))
		r.opts.logger.Warn("research task failed", "task", task.ID, "error", err)
	}
	if len(out.Results) == 0 && out.Profile == nil && len(out.Competitors) == 0 {
		return out
	}

	if mem != nil {
		if err := memory.PutJSON(ctx, mem, ns, key, out); err != nil {
			r.opts.logger.Warn("memory write failed", "target", task.Target, "key", key, "error", err)
		}
		if out.Profile != nil {
			if err := memory.SaveCompetitor(ctx, mem, *out.Profile); err != nil {
				r.opts.logger.Warn("competitor profile write failed", "target", task.Target, "error", err)
			}
		}
	}
	return out
}

func (r *Researcher) failure(task workflow.Task, err error) workflow.Failure {
	return workflow.Failure{
		Stage:  workflow.StageResearch,
		TaskID: task.ID,
		Target: task.Target,
		Reason: err.Error(),
		At:     r.opts.now(),
	}
}

func (r *Researcher) profile(ctx context.Context, task workflow.Task) (taskOutcome, error) {
	paths := r.opts.subpages
	if len(paths) == 0 {
		paths = tools.DefaultSubpages
	}
	urls, err := tools.SubpageURLs(task.URL, paths)
	if err != nil {
		return taskOutcome{}, err
	}
	pages, err := r.fetchAll(ctx, urls)
	if len(pages) == 0 {
		return taskOutcome{}, err
	}

	var out taskOutcome
	for _, page := range pages {
		res, fails := r.summarizePage(ctx, task, page)
		out.Results = append(out.Results, res)
		out.Failures = append(out.Failures, fails...)
	}
	profile, perr := r.extractProfile(ctx, task, task.URL, pages)
	if perr != nil {
		out.Failures = append(out.Failures, r.failure(task, perr))
	}
	out.Profile = &profile
	return out, nil
}

func (r *Researcher) discover(ctx context.Context, task workflow.Task, scope workflow.Scope) (taskOutcome, error) {
	queries := []string{
		fmt.Sprintf("%s competitors", task.Target),
		fmt.Sprintf("%s alternatives", task.Target),
	}
	var (
		hits []tools.SearchResult
		errs []error
	)
	seen := map[string]bool{}
	for _, q := range queries {
		found, err := r.searcher.Search(ctx, q)
		if err != nil {
			errs = append(errs, fmt.Errorf("search %q: %w", q, err))
			continue
		}
		for _, h := range found {
			if h.URL == "" || seen[h.URL] || len(hits) >= maxDiscoveryHits {
				continue
			}
			seen[h.URL] = true
			hits = append(hits, h)
		}
	}
	if len(hits) == 0 {
		if len(errs) == 0 {
			errs = append(errs, fmt.Errorf("no search results"))
		}
		return taskOutcome{}, errors.Join(errs...)
	}

	out := taskOutcome{}
	for _, h := range hits {
		out.Results = append(out.Results, workflow.ResearchResult{
			Target:    task.Target,
			Source:    h.URL,
			TaskID:    task.ID,
			TaskType:  task.Type,
			Title:     h.Title,
			Summary:   h.Snippet,
			FetchedAt: r.opts.now(),
		})
	}

	var ranked struct {
		Competitors []struct {
			Name      string `json:"name"`
			URL       string `json:"url"`
			Relevance string `json:"relevance"`
			Priority  int    `json:"priority"`
		} `json:"competitors"`
	}
	ok, err := r.opts.synthesize(ctx, prompt.RankCompetitors, map[string]string{
		"company_name":   task.Target,
		"excluded":       joinOr(scope.Excluded, "none"),
		"search_results": formatHits(hits),
	}, &ranked)
	if err != nil {
		out.Failures = append(out.Failures, r.failure(task, fmt.Errorf("rank competitors: %w", err)))
	}
	if ok {
		for _, c := range ranked.Competitors {
			out.Competitors = append(out.Competitors, workflow.Competitor{
				Name: strings.TrimSpace(c.Name), URL: c.URL, Relevance: c.Relevance, Priority: c.Priority,
			})
		}
	} else {
		out.Competitors = competitorsFromHits(hits, task.URL)
	}
	if len(out.Competitors) > maxCompetitors {
		out.Competitors = out.Competitors[:maxCompetitors]
	}
	return out, nil
}

func (r *Researcher) deepDive(ctx context.Context, task workflow.Task) (taskOutcome, error) {
	var (
		out  taskOutcome
		errs []error
	)
	hits, err := r.searcher.Search(ctx, fmt.Sprintf("%s company", task.Target))
	if err != nil {
		errs = append(errs, fmt.Errorf("search: %w", err))
	}
	if len(hits) > deepDiveHits {
		hits = hits[:deepDiveHits]
	}
	for _, h := range hits {
		out.Results = append(out.Results, workflow.ResearchResult{
			Target:    task.Target,
			Source:    h.URL,
			TaskID:    task.ID,
			TaskType:  task.Type,
			Title:     h.Title,
			Summary:   h.Snippet,
			FetchedAt: r.opts.now(),
		})
	}

	site := task.URL
	if site == "" && len(hits) > 0 {
		site = hits[0].URL
	}
	if site == "" {
		errs = append(errs, fmt.Errorf("no website found for %s", task.Target))
		return out, errors.Join(errs...)
	}

	urls, err := tools.SubpageURLs(site, deepDivePages)
	if err != nil {
		errs = append(errs, err)
		return out, errors.Join(errs...)
	}
	pages, ferr := r.fetchAll(ctx, urls)
	if len(pages) == 0 {
		errs = append(errs, ferr)
		return out, errors.Join(errs...)
	}
	for _, page := range pages {
		res, fails := r.summarizePage(ctx, task, page)
		out.Results = Merge(out.Results, []workflow.ResearchResult{res})
		out.Failures = append(out.Failures, fails...)
	}
	profile, perr := r.extractProfile(ctx, task, site, pages)
	if perr != nil {
		out.Failures = append(out.Failures, r.failure(task, perr))
	}
	out.Profile = &profile
	return out, nil
}

// fetchAll returns the pages that loaded and the joined errors of the rest.
func (r *Researcher) fetchAll(ctx context.Context, urls []string) ([]tools.Page, error) {
	var (
		pages []tools.Page
		errs  []error
	)
	for _, u := range urls {
		page, err := r.fetcher.Fetch(ctx, u)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if strings.TrimSpace(page.Content) == "" {
			continue
		}
		pages = append(pages, page)
	}
	if len(pages) == 0 && len(errs) == 0 {
		errs = append(errs, fmt.Errorf("no readable pages"))
	}
	return pages, errors.Join(errs...)
}

type chunkSummary struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
}

// summarizePage condenses one page window by window.
func (r *Researcher) summarizePage(ctx context.Context, task workflow.Task, page tools.Page) (workflow.ResearchResult, []workflow.Failure) {
	res := workflow.ResearchResult{
		Target:    task.Target,
		Source:    page.URL,
		TaskID:    task.ID,
		TaskType:  task.Type,
		Title:     page.Title,
		FetchedAt: page.FetchedAt,
	}
	if res.FetchedAt.IsZero() {
		res.FetchedAt = r.opts.now()
	}
	var fails []workflow.Failure
	content, redactions, err := r.screen(ctx, page.Content)
	if err != nil {
		fails = append(fails, r.failure(task, fmt.Errorf("screen %s: %w", page.URL, err)))
	}
	windows := chunk.SplitDefault(content)

	var (
		summaries []string
		llmCount  int
	)
	for _, w := range windows {
		var cs chunkSummary
		ok, err := r.opts.synthesize(ctx, prompt.SummarizeChunk, map[string]string{
			"url":           page.URL,
			"chunk_index":   strconv.Itoa(w.Index + 1),
			"total_chunks":  strconv.Itoa(len(windows)),
			"chunk_content": w.Text,
		}, &cs)
		if err != nil {
			fails = append(fails, r.failure(task, fmt.Errorf("summarize %s chunk %d: %w", page.URL, w.Index+1, err)))
		}
		if ok && strings.TrimSpace(cs.Summary) != "" {
			llmCount++
			summaries = append(summaries, strings.TrimSpace(cs.Summary))
			res.KeyPoints = append(res.KeyPoints, cs.KeyPoints...)
			continue
		}
		summaries = append(summaries, truncate(w.Text, fallbackSummary))
	}
	if len(summaries) == 0 && page.Description != "" {
		summaries = append(summaries, page.Description)
	}
	res.Summary = strings.Join(summaries, " ")
	res.LLMGenerated = len(windows) > 0 && llmCount == len(windows)
	res.Data = map[string]any{"chunks": len(windows), "bytes": len(page.Content)}
	if redactions > 0 {
		res.Data["redactions"] = redactions
	}
	return res, fails
}

// screen runs the content guard. A failing guard drops the page text rather
// than letting unscreened content through.
func (r *Researcher) screen(ctx context.Context, text string) (string, int, error) {
	clean, fired, err := r.opts.guard.Apply(ctx, text)
	if err != nil {
		return "", 0, err
	}
	n := 0
	for _, f := range fired {
		n += f.Matches
	}
	if n > 0 {
		r.opts.logger.Debug("page content redacted", "redactions", n, "checks", guardrail.Summary(fired))
	}
	return clean, n, nil
}

type extractedProfile struct {
	Name         string   `json:"name"`
	Website      string   `json:"website"`
	Description  string   `json:"description"`
	Products     []string `json:"products"`
	PricingModel string   `json:"pricing_model"`
	TargetMarket string   `json:"target_market"`
	KeyFeatures  []string `json:"key_features"`
	TeamSize     string   `json:"team_size"`
	Funding      string   `json:"funding"`
}

// extractProfile always returns a usable profile; the error only reports a
// failed model call that was replaced by the fallback.
func (r *Researcher) extractProfile(ctx context.Context, task workflow.Task, site string, pages []tools.Page) (memory.CompetitorProfile, error) {
	profile := memory.CompetitorProfile{
		Name:      task.Target,
		Website:   site,
		FetchedAt: r.opts.now(),
	}

	var b strings.Builder
	for _, p := range pages {
		fmt.Fprintf(&b, "[%s]\n%s\n\n", p.URL, p.Content)
	}
	var ex extractedProfile
	ok, err := r.opts.synthesize(ctx, prompt.ExtractProfile, map[string]string{
		"url":         site,
		"focus_areas": joinOr(task.FocusAreas, "general"),
		"content":     truncate(b.String(), chunk.DefaultSize),
	}, &ex)
	if ok {
		profile.Description = ex.Description
		profile.Products = ex.Products
		profile.PricingModel = ex.PricingModel
		profile.Market = ex.TargetMarket
		profile.KeyFeatures = ex.KeyFeatures
		profile.TeamSize = ex.TeamSize
		profile.Funding = ex.Funding
		if ex.Website != "" {
			profile.Website = ex.Website
		}
		profile.LLMGenerated = true
		return profile, nil
	}

	first := pages[0]
	profile.Description = first.Description
	if profile.Description == "" {
		profile.Description = truncate(first.Content, 200)
	}
	for _, p := range pages {
		if p.Title != "" && p.URL != first.URL {
			profile.KeyFeatures = append(profile.KeyFeatures, p.Title)
		}
	}
	if err != nil {
		return profile, fmt.Errorf("extract profile: %w", err)
	}
	return profile, nil
}

func formatHits(hits []tools.SearchResult) string {
	var b strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&b, "- %s (%s): %s\n", h.Title, h.URL, h.Snippet)
	}
	return b.String()
}

// competitorsFromHits names candidates after the host of each result,
// skipping the company's own site.
func competitorsFromHits(hits []tools.SearchResult, companyURL string) []workflow.Competitor {
	own := workflow.Domain(companyURL)
	var out []workflow.Competitor
	seen := map[string]bool{}
	for _, h := range hits {
		d := workflow.Domain(h.URL)
		if d == "" || d == own || seen[d] {
			continue
		}
		seen[d] = true
		site := h.URL
		if u, err := tools.SubpageURLs(h.URL, []string{"/"}); err == nil && len(u) == 1 {
			site = u[0]
		}
		out = append(out, workflow.Competitor{
			Name:      workflow.InferCompanyName(h.URL),
			URL:       site,
			Relevance: "appears in search results: " + h.Title,
			Priority:  len(out) + 1,
		})
	}
	return out
}
