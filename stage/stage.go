// Package stage holds the plan, research and strategy stages the workflow
// engine runs between gates.
package stage

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/PipeOpsHQ/rivalscope/guardrail"
	"github.com/PipeOpsHQ/rivalscope/llm"
	"github.com/PipeOpsHQ/rivalscope/observe"
	"github.com/PipeOpsHQ/rivalscope/prompt"
)

const (
	defaultWorkers   = 4
	defaultFreshness = 24 * time.Hour
)

type options struct {
	logger    *slog.Logger
	observer  observe.Sink
	synth     llm.Synthesizer
	prompts   *prompt.Registry
	workers   int
	freshness time.Duration
	subpages  []string
	guard     *guardrail.Pipeline
	now       func() time.Time
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithObserver(sink observe.Sink) Option {
	return func(o *options) {
		if sink != nil {
			o.observer = sink
		}
	}
}

// WithSynthesizer enables model-backed synthesis. Without one every stage
// produces deterministic output flagged llm_generated=false.
func WithSynthesizer(s llm.Synthesizer) Option {
	return func(o *options) { o.synth = s }
}

func WithPrompts(r *prompt.Registry) Option {
	return func(o *options) {
		if r != nil {
			o.prompts = r
		}
	}
}

// WithWorkers bounds the research fan-out.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithFreshness sets how long cached research is reused.
func WithFreshness(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.freshness = d
		}
	}
}

// WithSubpages overrides the company pages scraped for a profile.
func WithSubpages(paths ...string) Option {
	return func(o *options) {
		if len(paths) > 0 {
			o.subpages = append([]string(nil), paths...)
		}
	}
}

// WithContentGuard replaces the screening applied to scraped page text
// before it reaches synthesis. Nil disables screening.
func WithContentGuard(p *guardrail.Pipeline) Option {
	return func(o *options) { o.guard = p }
}

func withClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func newOptions(opts []Option) options {
	o := options{
		logger:    slog.Default(),
		observer:  observe.NoopSink{},
		prompts:   prompt.Default(),
		workers:   defaultWorkers,
		freshness: defaultFreshness,
		guard:     guardrail.WebContent(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// synthesize renders ref and asks the model for structured output. ok is
// false when no model is configured; callers then fall back to
// deterministic output.
func (o options) synthesize(ctx context.Context, ref string, vars map[string]string, out any) (ok bool, err error) {
	if !o.llmEnabled() {
		return false, nil
	}
	system, user, err := o.prompts.Render(ref, vars)
	if err != nil {
		return false, err
	}
	if err := o.synth.GenerateStructured(ctx, system, user, out); err != nil {
		return false, err
	}
	return true, nil
}

func (o options) llmEnabled() bool {
	if o.synth == nil {
		return false
	}
	if c, ok := o.synth.(interface{ Configured() bool }); ok {
		return c.Configured()
	}
	return true
}

func (o options) emitCache(ctx context.Context, hit bool, target, key string) {
	status := "miss"
	if hit {
		status = "hit"
	}
	_ = o.observer.Emit(ctx, observe.Event{
		Kind:       observe.KindCache,
		Status:     observe.StatusCompleted,
		SessionID:  observe.SessionIDFrom(ctx),
		Name:       key,
		Timestamp:  o.now(),
		Attributes: map[string]any{"target": target, "result": status},
	})
	o.logger.Debug("memory cache "+status, "target", target, "key", key)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut]) + "..."
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}
