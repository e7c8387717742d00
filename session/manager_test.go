package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/PipeOpsHQ/rivalscope/memory"
	meminmem "github.com/PipeOpsHQ/rivalscope/memory/inmem"
	"github.com/PipeOpsHQ/rivalscope/stage"
	"github.com/PipeOpsHQ/rivalscope/state/inmem"
	"github.com/PipeOpsHQ/rivalscope/tools"
	"github.com/PipeOpsHQ/rivalscope/workflow"
)

type stubSearcher struct{}

func (stubSearcher) Name() string { return "stub" }

func (stubSearcher) Search(_ context.Context, query string) ([]tools.SearchResult, error) {
	name := strings.Fields(query)[0]
	if strings.HasSuffix(query, " company") {
		host := strings.ToLower(name) + ".com"
		return []tools.SearchResult{{Title: name, URL: "https://" + host, Snippet: name + " homepage"}}, nil
	}
	return []tools.SearchResult{
		{Title: "Rival", URL: "https://rival.io/", Snippet: "an alternative to " + name},
		{Title: "Other", URL: "https://other.com/", Snippet: "another alternative"},
	}, nil
}

type stubFetcher struct{}

func (stubFetcher) Fetch(_ context.Context, raw string) (tools.Page, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return tools.Page{}, err
	}
	if strings.HasSuffix(u.Path, "blog") {
		return tools.Page{URL: raw, StatusCode: 404}, fmt.Errorf("fetch %s failed with HTTP 404", raw)
	}
	return tools.Page{
		URL:       raw,
		Title:     u.Host,
		Content:   fmt.Sprintf("%s offers products and pricing for teams (%s)", u.Host, u.Path),
		FetchedAt: time.Now().UTC(),
	}, nil
}

type fixture struct {
	manager *Manager
	store   *inmem.Store
	memory  memory.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := inmem.New()
	mem := meminmem.New()
	researcher, err := stage.NewResearcher(stubSearcher{}, stubFetcher{}, stage.WithWorkers(2))
	if err != nil {
		t.Fatalf("new researcher: %v", err)
	}
	engine, err := workflow.New(store, mem, []workflow.Stage{
		stage.NewPlanner(),
		researcher,
		stage.NewStrategist(),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	n := 0
	m, err := NewManager(engine, store, WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("sess-%d", n)
	}))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return fixture{manager: m, store: store, memory: mem}
}

func send(t *testing.T, m *Manager, id, action, content string) MessageResponse {
	t.Helper()
	resp, err := m.SendMessage(context.Background(), MessageRequest{SessionID: id, Action: action, Content: content})
	if err != nil {
		t.Fatalf("send %s: %v", action, err)
	}
	return resp
}

func TestScenarios(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A: create pauses at the plan gate.
	created, err := f.manager.Create(ctx, CreateRequest{UserID: "u1", TargetReference: "https://example.com", Query: "analyze"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != StatusProcessing || created.ApprovalStatus != "pending_plan_approval" || created.Stage != "plan" {
		t.Fatalf("scenario A: unexpected response %+v", created)
	}
	id := created.SessionID

	// B: approving the plan runs research.
	resp := send(t, f.manager, id, "approve", "")
	if resp.Stage != "research" || resp.Status != "pending_research_approval" {
		t.Fatalf("scenario B: unexpected response %+v", resp)
	}
	before, err := f.manager.GetState(ctx, id)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	prior := before.PartialResults.Research.Results

	// C: modify adds CompetitorX and keeps what was there.
	resp = send(t, f.manager, id, "modify", "add CompetitorX")
	if resp.Status != "pending_research_approval" {
		t.Fatalf("scenario C: unexpected response %+v", resp)
	}
	after, err := f.manager.GetState(ctx, id)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	results := after.PartialResults.Research.Results
	sources := map[string]bool{}
	var added bool
	for _, r := range results {
		sources[r.Target+"|"+r.Source] = true
		if r.Target == "CompetitorX" {
			added = true
		}
	}
	if !added {
		t.Fatalf("scenario C: no CompetitorX result in %+v", results)
	}
	for _, r := range prior {
		if !sources[r.Target+"|"+r.Source] {
			t.Fatalf("scenario C: prior result lost %+v", r)
		}
	}

	// D: reject at the strategy gate goes back one draft, not to the first.
	resp = send(t, f.manager, id, "approve", "")
	if resp.Stage != "strategy" || resp.Status != "pending_strategy_approval" {
		t.Fatalf("unexpected response %+v", resp)
	}
	send(t, f.manager, id, "modify", "focus on enterprise buyers")
	send(t, f.manager, id, "modify", "keep it short")
	resp = send(t, f.manager, id, "reject", "")
	if resp.Status != "pending_strategy_approval" || resp.Stage != "strategy" {
		t.Fatalf("scenario D: unexpected response %+v", resp)
	}
	got, err := f.manager.GetState(ctx, id)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if d := got.PartialResults.Draft; d == nil || d.Version != 2 {
		t.Fatalf("scenario D: expected draft 2, got %+v", d)
	}

	resp = send(t, f.manager, id, "approve", "")
	if resp.Stage != StageCompleted || resp.Status != "approved_strategy" {
		t.Fatalf("finalize: unexpected response %+v", resp)
	}
	sum, err := memory.LoadSessionSummary(ctx, f.memory, id)
	if err != nil {
		t.Fatalf("expected session summary in memory: %v", err)
	}
	if sum.CompanyName != "Example" {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if _, err := memory.LoadCompetitor(ctx, f.memory, "CompetitorX"); err != nil {
		t.Fatalf("expected CompetitorX profile cached: %v", err)
	}

	if _, err := f.manager.SendMessage(ctx, MessageRequest{SessionID: id, Action: "approve"}); Code(err) != CodeInvalidInput {
		t.Fatalf("expected invalid_input on finished session, got %v", err)
	}
}

func TestErrorCodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Create(ctx, CreateRequest{UserID: "u1"})
	if Code(err) != CodeInvalidInput {
		t.Fatalf("missing target: got %v", err)
	}
	_, err = f.manager.Create(ctx, CreateRequest{TargetReference: "not a host"})
	if Code(err) != CodeInvalidInput {
		t.Fatalf("bad target: got %v", err)
	}
	_, err = f.manager.SendMessage(ctx, MessageRequest{SessionID: "nope", Action: "approve"})
	if Code(err) != CodeUnknownSession {
		t.Fatalf("unknown session: got %v", err)
	}
	_, err = f.manager.SendMessage(ctx, MessageRequest{SessionID: "nope", Action: "later"})
	if Code(err) != CodeInvalidInput {
		t.Fatalf("bad action: got %v", err)
	}
	_, err = f.manager.GetState(ctx, "nope")
	if Code(err) != CodeUnknownSession {
		t.Fatalf("get state: got %v", err)
	}
	_, err = f.manager.Create(ctx, CreateRequest{TargetReference: "example.com", Query: strings.Repeat("q", DefaultInputLimit+1)})
	if Code(err) != CodeInvalidInput {
		t.Fatalf("oversized query: got %v", err)
	}
	_, err = f.manager.SendMessage(ctx, MessageRequest{SessionID: "nope", Action: "modify", Content: strings.Repeat("x", DefaultInputLimit+1)})
	if Code(err) != CodeInvalidInput {
		t.Fatalf("oversized content: got %v", err)
	}

	cases := map[error]ErrorCode{
		nil:                                             "",
		fmt.Errorf("x: %w", workflow.ErrNoCheckpoint):   CodeNoCheckpoint,
		fmt.Errorf("x: %w", workflow.ErrConflict):       CodeConflict,
		errors.New("disk on fire"):                      CodeInternal,
		fmt.Errorf("x: %w", workflow.ErrInvalidInput):   CodeInvalidInput,
		fmt.Errorf("x: %w", workflow.ErrUnknownSession): CodeUnknownSession,
	}
	for err, want := range cases {
		if got := Code(err); got != want {
			t.Errorf("Code(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestListSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, user := range []string{"u1", "u1", "u2"} {
		if _, err := f.manager.Create(ctx, CreateRequest{UserID: user, TargetReference: "example.com"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	send(t, f.manager, "sess-1", "approve", "")

	all, err := f.manager.List(ctx, ListQuery{UserID: "u1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 sessions for u1, got %+v", all)
	}
	pending, err := f.manager.List(ctx, ListQuery{Status: "pending_research_approval"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 || pending[0].SessionID != "sess-1" || pending[0].Stage != "research" {
		t.Fatalf("unexpected filtered list %+v", pending)
	}
	if _, err := f.manager.List(ctx, ListQuery{Status: "done"}); Code(err) != CodeInvalidInput {
		t.Fatalf("expected invalid_input for unknown status, got %v", err)
	}
}
