// Package guardrail screens text crossing a trust boundary: scraped pages on
// their way into synthesis prompts, and reviewer replies on their way into
// the workflow.
package guardrail

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrBlocked is returned by Pipeline.Apply when a check refuses the text.
var ErrBlocked = errors.New("guardrail: text blocked")

type Action string

const (
	// ActionBlock refuses the text.
	ActionBlock Action = "block"
	// ActionRedact replaces the offending spans and continues.
	ActionRedact Action = "redact"
)

type Result struct {
	Triggered bool   `json:"triggered"`
	Action    Action `json:"action,omitempty"`
	Name      string `json:"name"`
	Message   string `json:"message,omitempty"`
	// Text is the sanitized text when Action is ActionRedact.
	Text string `json:"text,omitempty"`
	// Matches counts redacted spans.
	Matches int `json:"matches,omitempty"`
}

type Check interface {
	Name() string
	Check(ctx context.Context, text string) (Result, error)
}

// Pipeline runs checks in order, feeding each redaction into the next.
type Pipeline struct {
	checks []Check
}

func NewPipeline(checks ...Check) *Pipeline {
	p := &Pipeline{}
	for _, c := range checks {
		if c != nil {
			p.checks = append(p.checks, c)
		}
	}
	return p
}

// Apply returns the sanitized text and every check that fired. A block
// stops the pipeline and wraps ErrBlocked.
func (p *Pipeline) Apply(ctx context.Context, text string) (string, []Result, error) {
	if p == nil {
		return text, nil, nil
	}
	var fired []Result
	for _, c := range p.checks {
		res, err := c.Check(ctx, text)
		if err != nil {
			return "", fired, fmt.Errorf("guardrail %q failed: %w", c.Name(), err)
		}
		if !res.Triggered {
			continue
		}
		fired = append(fired, res)
		switch res.Action {
		case ActionBlock:
			return "", fired, fmt.Errorf("%w by %s: %s", ErrBlocked, res.Name, res.Message)
		case ActionRedact:
			text = res.Text
		}
	}
	return text, fired, nil
}

func (p *Pipeline) Names() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.checks))
	for _, c := range p.checks {
		out = append(out, c.Name())
	}
	return out
}

// Summary renders fired results as "name: message; ...".
func Summary(results []Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if r.Triggered {
			parts = append(parts, r.Name+": "+r.Message)
		}
	}
	if len(parts) == 0 {
		return "clean"
	}
	return strings.Join(parts, "; ")
}

// WebContent is the pipeline applied to scraped page text.
func WebContent() *Pipeline {
	return NewPipeline(&InjectionRedactor{}, &SecretRedactor{}, &PIIRedactor{})
}

// ReviewerInput is the pipeline applied to reviewer replies.
func ReviewerInput(limit int) *Pipeline {
	return NewPipeline(&MaxLength{Limit: limit})
}

func pass(name string) Result { return Result{Name: name} }
