package llm

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy controls how often a synthesis call is attempted. Delays double
// from BaseBackoff and are capped at MaxBackoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// Retryable reports whether a failed attempt is worth repeating. Nil
	// retries everything except missing providers, unsupported calls and
	// permanent provider errors.
	Retryable func(error) bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, BaseBackoff: 250 * time.Millisecond, MaxBackoff: 4 * time.Second}
}

func normalizeRetryPolicy(p RetryPolicy) RetryPolicy {
	def := DefaultRetryPolicy()
	p.MaxAttempts = max(p.MaxAttempts, 1)
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = def.BaseBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	p.MaxBackoff = max(p.MaxBackoff, p.BaseBackoff)
	return p
}

// delay is the wait before the n-th retry (1-based).
func (p RetryPolicy) delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	if n > 30 {
		return p.MaxBackoff
	}
	return min(p.BaseBackoff<<(n-1), p.MaxBackoff)
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return !errors.Is(err, ErrNoProvider) && !errors.Is(err, ErrNotSupported) && !errors.Is(err, ErrPermanent)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
