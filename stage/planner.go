package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PipeOpsHQ/rivalscope/memory"
	"github.com/PipeOpsHQ/rivalscope/workflow"
)

// discoveryFocus is what competitor discovery always looks for.
var discoveryFocus = []string{"direct_competitors", "indirect_competitors"}

// Planner turns the session scope into an ordered task list. It only reads
// memory and makes no outside calls, so identical state and scope always
// give the same tasks.
type Planner struct {
	opts options
}

func NewPlanner(opts ...Option) *Planner {
	return &Planner{opts: newOptions(opts)}
}

func (p *Planner) Name() workflow.StageName { return workflow.StagePlan }

func (p *Planner) Run(ctx context.Context, st *workflow.State, req workflow.Request) error {
	if st == nil {
		return fmt.Errorf("state is required")
	}
	var errs []error

	if req.Memory != nil && st.UserID != "" {
		profile, err := memory.LoadUserProfile(ctx, req.Memory, st.UserID)
		switch {
		case err == nil:
			st.UserProfile = &profile
		case !errors.Is(err, memory.ErrNotFound):
			errs = append(errs, fmt.Errorf("failed to load user profile: %w", err))
		}
	}

	var cached []memory.CompetitorProfile
	if req.Memory != nil {
		found, err := memory.SearchCompetitors(ctx, req.Memory, workflow.Domain(st.CompanyURL), 0)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to search cached competitors: %w", err))
		}
		for _, c := range found {
			if strings.EqualFold(c.Name, st.CompanyName) {
				continue
			}
			cached = append(cached, c)
		}
	}

	st.Plan = &workflow.Plan{Tasks: p.tasks(st, cached), CreatedAt: p.opts.now()}
	st.Say(planMessage(st, len(cached)))
	p.opts.logger.Info("plan ready", "session_id", st.SessionID, "tasks", len(st.Plan.Tasks), "op", req.Op)
	return errors.Join(errs...)
}

func (p *Planner) tasks(st *workflow.State, cached []memory.CompetitorProfile) []workflow.Task {
	focus := append([]string(nil), st.Scope.FocusAreas...)
	tasks := []workflow.Task{
		{
			ID:         workflow.TaskID(workflow.TaskCompanyProfile, st.CompanyName),
			Type:       workflow.TaskCompanyProfile,
			Target:     st.CompanyName,
			URL:        st.CompanyURL,
			FocusAreas: focus,
		},
		{
			ID:         workflow.TaskID(workflow.TaskCompetitorDiscovery, st.CompanyName),
			Type:       workflow.TaskCompetitorDiscovery,
			Target:     st.CompanyName,
			URL:        st.CompanyURL,
			FocusAreas: append([]string(nil), discoveryFocus...),
		},
	}

	seen := map[string]bool{}
	add := func(name, url string) {
		id := workflow.TaskID(workflow.TaskCompetitorDeepDive, name)
		if name == "" || seen[id] || st.Scope.IsExcluded(name) {
			return
		}
		seen[id] = true
		tasks = append(tasks, workflow.Task{
			ID:         id,
			Type:       workflow.TaskCompetitorDeepDive,
			Target:     name,
			URL:        url,
			FocusAreas: append([]string(nil), focus...),
		})
	}
	for _, name := range st.Scope.Competitors {
		add(name, "")
	}
	for _, c := range cached {
		add(c.Name, c.Website)
	}
	return tasks
}

func planMessage(st *workflow.State, cached int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research plan for %s with %d tasks", st.CompanyName, len(st.Plan.Tasks))
	if cached > 0 {
		fmt.Fprintf(&b, " (%d competitors known from earlier sessions)", cached)
	}
	fmt.Fprintf(&b, ". Focus: %s.", joinOr(st.Scope.FocusAreas, "general"))
	if len(st.Scope.Excluded) > 0 {
		fmt.Fprintf(&b, " Excluding: %s.", strings.Join(st.Scope.Excluded, ", "))
	}
	if len(st.Scope.Constraints) > 0 {
		fmt.Fprintf(&b, " Constraints: %s.", strings.Join(st.Scope.Constraints, "; "))
	}
	return b.String()
}
