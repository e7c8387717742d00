package guardrail

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"
)

// MaxLength blocks text longer than Limit runes. A zero limit disables it.
type MaxLength struct {
	Limit int
}

func (g *MaxLength) Name() string { return "max_length" }

func (g *MaxLength) Check(_ context.Context, text string) (Result, error) {
	if g.Limit <= 0 {
		return pass(g.Name()), nil
	}
	if n := utf8.RuneCountInString(text); n > g.Limit {
		return Result{
			Triggered: true,
			Action:    ActionBlock,
			Name:      g.Name(),
			Message:   fmt.Sprintf("%d characters exceeds the limit of %d", n, g.Limit),
		}, nil
	}
	return pass(g.Name()), nil
}

type pattern struct {
	re      *regexp.Regexp
	replace string
}

// redact applies every pattern and counts what it replaced.
func redact(name, message, text string, patterns []pattern) Result {
	matches := 0
	for _, p := range patterns {
		found := p.re.FindAllStringIndex(text, -1)
		if len(found) == 0 {
			continue
		}
		matches += len(found)
		text = p.re.ReplaceAllString(text, p.replace)
	}
	if matches == 0 {
		return pass(name)
	}
	return Result{Triggered: true, Action: ActionRedact, Name: name, Message: message, Text: text, Matches: matches}
}

// InjectionRedactor strips instructions aimed at the model out of page text
// so a competitor's site cannot steer synthesis.
type InjectionRedactor struct{}

const removed = "[removed]"

var injectionPatterns = []pattern{
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions`), removed},
	{regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)[^.\n]*`), removed},
	{regexp.MustCompile(`(?i)forget\s+(all\s+)?(your\s+)?instructions`), removed},
	{regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an)\s+[^.\n]*`), removed},
	{regexp.MustCompile(`(?i)new\s+instructions?\s*:[^\n]*`), removed},
	{regexp.MustCompile(`(?i)system\s*:\s*you\s+are[^\n]*`), removed},
}

func (g *InjectionRedactor) Name() string { return "prompt_injection" }

func (g *InjectionRedactor) Check(_ context.Context, text string) (Result, error) {
	return redact(g.Name(), "instructions to the model removed", text, injectionPatterns), nil
}

// SecretRedactor masks credentials that pages sometimes leak.
type SecretRedactor struct{}

var secretPatterns = []pattern{
	{regexp.MustCompile(`(AKIA|ABIA|ACCA|ASIA)[0-9A-Z]{16}`), "[SECRET_REDACTED]"},
	{regexp.MustCompile(`(ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9_]{36,255}`), "[SECRET_REDACTED]"},
	{regexp.MustCompile(`eyJ[A-Za-z0-9\-_]+\.eyJ[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+`), "[SECRET_REDACTED]"},
	{regexp.MustCompile(`-----BEGIN\s+(RSA|DSA|EC|OPENSSH|PGP|ENCRYPTED)?\s*PRIVATE KEY-----`), "[SECRET_REDACTED]"},
	{regexp.MustCompile(`(?i)(secret|token|api[_\-]?key)\s*[=:]\s*["']?[A-Za-z0-9\-_]{16,}["']?`), "[SECRET_REDACTED]"},
}

func (g *SecretRedactor) Name() string { return "secret_guard" }

func (g *SecretRedactor) Check(_ context.Context, text string) (Result, error) {
	return redact(g.Name(), "credentials redacted", text, secretPatterns), nil
}

// PIIRedactor masks personal contact details. Company research has no use
// for them and they should not land in the memory store.
type PIIRedactor struct{}

var piiPatterns = []pattern{
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN_REDACTED]"},
	{regexp.MustCompile(`\b(?:\d{4}[\s\-]?){3}\d{4}\b`), "[CC_REDACTED]"},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`), "[EMAIL_REDACTED]"},
	{regexp.MustCompile(`(?:\+?1[\s\-]?)?\(\d{3}\)[\s\-]?\d{3}[\s\-]?\d{4}\b|\b\d{3}[\s\-]\d{3}[\s\-]\d{4}\b`), "[PHONE_REDACTED]"},
}

func (g *PIIRedactor) Name() string { return "pii_filter" }

func (g *PIIRedactor) Check(_ context.Context, text string) (Result, error) {
	return redact(g.Name(), "personal data redacted", text, piiPatterns), nil
}
