package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/PipeOpsHQ/rivalscope/internal/config"
	meminmem "github.com/PipeOpsHQ/rivalscope/memory/inmem"
	"github.com/PipeOpsHQ/rivalscope/session"
	"github.com/PipeOpsHQ/rivalscope/state/inmem"
	"github.com/PipeOpsHQ/rivalscope/workflow"
)

func testManager(t *testing.T) *session.Manager {
	t.Helper()
	store := inmem.New()
	stages := []workflow.Stage{
		workflow.StageFunc{StageName: workflow.StagePlan, Fn: func(_ context.Context, st *workflow.State, _ workflow.Request) error {
			st.Plan = &workflow.Plan{}
			return nil
		}},
		workflow.StageFunc{StageName: workflow.StageResearch, Fn: func(_ context.Context, st *workflow.State, _ workflow.Request) error {
			st.Research = &workflow.Research{Version: 1}
			return nil
		}},
		workflow.StageFunc{StageName: workflow.StageStrategy, Fn: func(_ context.Context, st *workflow.State, req workflow.Request) error {
			if req.Op == workflow.OpFinalize {
				st.Insights = &workflow.Insights{CompanyName: st.CompanyName}
				return nil
			}
			st.Drafts = append(st.Drafts, workflow.StrategyDraft{Version: len(st.Drafts) + 1})
			return nil
		}},
	}
	engine, err := workflow.New(store, meminmem.New(), stages, workflow.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	m, err := session.NewManager(engine, store)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestRunInteractiveWalksGates(t *testing.T) {
	m := testManager(t)
	in := strings.NewReader("\nbogus\napprove\nmodify focus on pricing\napprove\napprove\n")
	var out bytes.Buffer
	if err := runInteractive(context.Background(), m, []string{"--user=u1", "acme.io", "--", "who", "competes"}, in, &out); err != nil {
		t.Fatalf("run: %v\n%s", err, out.String())
	}
	text := out.String()
	for _, want := range []string{
		"[plan] pending_plan_approval",
		"error: ",
		"[research] pending_research_approval",
		"[strategy] pending_strategy_approval",
		"[completed] approved_strategy",
		`"company_name": "Acme"`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
}

func TestRunInteractivePausesOnEOF(t *testing.T) {
	m := testManager(t)
	var out bytes.Buffer
	if err := runInteractive(context.Background(), m, []string{"acme.io"}, strings.NewReader("approve\n"), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "paused") {
		t.Fatalf("expected pause notice:\n%s", out.String())
	}

	var list bytes.Buffer
	if err := listSessions(context.Background(), m, []string{"--status=pending_research_approval"}, &list); err != nil {
		t.Fatalf("list: %v", err)
	}
	if lines := strings.Count(list.String(), "\n"); lines != 1 {
		t.Fatalf("expected one pending session, got:\n%s", list.String())
	}
}

func TestRunInteractiveRequiresTarget(t *testing.T) {
	if err := runInteractive(context.Background(), testManager(t), nil, strings.NewReader(""), io.Discard); err == nil {
		t.Fatal("expected usage error")
	}
}

func TestParseArgs(t *testing.T) {
	opts, pos := parseArgs([]string{"--user=u1", "--limit=5", "--status=approved_strategy", "acme.io", "--", "--user=literal"})
	if opts.userID != "u1" || opts.limit != 5 || opts.status != "approved_strategy" {
		t.Fatalf("unexpected opts %+v", opts)
	}
	if len(pos) != 2 || pos[0] != "acme.io" || pos[1] != "--user=literal" {
		t.Fatalf("unexpected positional %v", pos)
	}
	action, content := parseReply("  Modify  add CompetitorX ")
	if action != "modify" || content != "add CompetitorX" {
		t.Fatalf("parseReply = %q %q", action, content)
	}
}

func TestBuildRuntimeDefaults(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.OTelEnabled = true
	rt, err := buildRuntime(context.Background(), &cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("build runtime: %v", err)
	}
	defer rt.Close()
	if rt.manager == nil || rt.tracer == nil || len(rt.prompts.Names()) == 0 {
		t.Fatalf("runtime incomplete: %+v", rt)
	}

	var out bytes.Buffer
	if err := listPrompts(rt.prompts, &out); err != nil {
		t.Fatalf("list prompts: %v", err)
	}
	if !strings.Contains(out.String(), "@") {
		t.Fatalf("unexpected prompt listing %q", out.String())
	}
}

func TestBuildRuntimeRejectsProviderWithoutKey(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Provider = "gemini"
	if _, err := buildRuntime(context.Background(), &cfg, slog.Default()); err == nil {
		t.Fatal("expected missing GEMINI_API_KEY to fail")
	}
}

func TestRunUsage(t *testing.T) {
	var out bytes.Buffer
	if code := run(context.Background(), nil, strings.NewReader(""), &out); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(out.String(), "Usage:") {
		t.Fatalf("usage not printed: %q", out.String())
	}
}
