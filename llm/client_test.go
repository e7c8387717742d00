package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PipeOpsHQ/rivalscope/observe"
	"github.com/PipeOpsHQ/rivalscope/types"
)

type scriptedProvider struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   int
	lastReq types.Request
}

func (p *scriptedProvider) Name() string               { return "scripted" }
func (p *scriptedProvider) Capabilities() Capabilities { return Capabilities{StructuredOutput: true} }
func (p *scriptedProvider) Generate(_ context.Context, req types.Request) (types.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	p.calls++
	p.lastReq = req
	if idx < len(p.errs) && p.errs[idx] != nil {
		return types.Response{}, p.errs[idx]
	}
	reply := ""
	if idx < len(p.replies) {
		reply = p.replies[idx]
	}
	return types.Response{Message: types.Message{Role: types.RoleAssistant, Content: reply}}, nil
}

type summaryShape struct {
	Summary   string   `json:"summary" jsonschema:"required"`
	KeyPoints []string `json:"key_points,omitempty"`
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestGenerateStructuredStripsFences(t *testing.T) {
	p := &scriptedProvider{replies: []string{"```json\n{\"summary\": \"Acme sells anvils\", \"key_points\": [\"pricing\"]}\n```"}}
	c := NewClient(p)

	var out summaryShape
	if err := c.GenerateStructured(context.Background(), "sys", "prompt", &out); err != nil {
		t.Fatalf("GenerateStructured failed: %v", err)
	}
	if out.Summary != "Acme sells anvils" || len(out.KeyPoints) != 1 {
		t.Fatalf("unexpected output: %+v", out)
	}
	if p.lastReq.ResponseSchema == nil {
		t.Fatalf("expected response schema on request")
	}
	if _, ok := p.lastReq.ResponseSchema["$schema"]; ok {
		t.Fatalf("expected $schema stripped from provider schema")
	}
}

func TestGenerateStructuredRejectsSchemaViolation(t *testing.T) {
	p := &scriptedProvider{replies: []string{`{"key_points": ["x"]}`}}
	c := NewClient(p)

	var out summaryShape
	err := c.GenerateStructured(context.Background(), "", "prompt", &out)
	if !errors.Is(err, ErrInvalidOutput) {
		t.Fatalf("expected ErrInvalidOutput, got %v", err)
	}
}

func TestGenerateRetriesThenSucceeds(t *testing.T) {
	p := &scriptedProvider{
		errs:    []error{errors.New("boom"), nil},
		replies: []string{"", "ok"},
	}
	var events []observe.Event
	c := NewClient(p,
		WithRetryPolicy(RetryPolicy{MaxAttempts: 3}),
		WithObserver(observe.SinkFunc(func(_ context.Context, e observe.Event) error {
			events = append(events, e)
			return nil
		})),
	)
	c.sleep = noSleep

	text, err := c.Generate(observe.WithSessionID(context.Background(), "s1"), "", "hi")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text != "ok" || p.calls != 2 {
		t.Fatalf("unexpected result text=%q calls=%d", text, p.calls)
	}
	if len(events) != 2 || events[0].Status != observe.StatusFailed || events[1].Status != observe.StatusCompleted {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[1].SessionID != "s1" {
		t.Fatalf("expected session id on provider event, got %q", events[1].SessionID)
	}
}

func TestGenerateWithoutProvider(t *testing.T) {
	c := NewClient(nil)
	if c.Configured() {
		t.Fatalf("expected unconfigured client")
	}
	if _, err := c.Generate(context.Background(), "", "x"); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                               `{"a":1}`,
		"```json\n{\"a\":1}\n```":               `{"a":1}`,
		"Here you go: {\"a\":{\"b\":2}} thanks": `{"a":{"b":2}}`,
	}
	for in, want := range cases {
		got, err := ExtractJSON(in)
		if err != nil {
			t.Fatalf("ExtractJSON(%q) failed: %v", in, err)
		}
		if got != want {
			t.Fatalf("ExtractJSON(%q)=%q want %q", in, got, want)
		}
	}
	if _, err := ExtractJSON("no json here"); !errors.Is(err, ErrInvalidOutput) {
		t.Fatalf("expected ErrInvalidOutput, got %v", err)
	}
}

func TestRetryDelayDoublesToCap(t *testing.T) {
	p := normalizeRetryPolicy(RetryPolicy{MaxAttempts: 5, BaseBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond})
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for i, w := range want {
		if got := p.delay(i + 1); got != w {
			t.Fatalf("retry %d: got %v want %v", i+1, got, w)
		}
	}
	if got := p.delay(64); got != 300*time.Millisecond {
		t.Fatalf("large retry count should cap, got %v", got)
	}
}

func TestGenerateStopsOnPermanentError(t *testing.T) {
	p := &scriptedProvider{errs: []error{ErrNotSupported, nil}, replies: []string{"", "late"}}
	c := NewClient(p, WithRetryPolicy(RetryPolicy{MaxAttempts: 3}))
	c.sleep = noSleep

	if _, err := c.Generate(context.Background(), "", "hi"); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
	if p.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", p.calls)
	}
}
