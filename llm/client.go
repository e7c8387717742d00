package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"

	"github.com/PipeOpsHQ/rivalscope/observe"
	"github.com/PipeOpsHQ/rivalscope/types"
)

const defaultCallTimeout = 60 * time.Second

// Client adapts a Provider to the Synthesizer contract with per-call
// timeouts, retries, and schema-checked structured output.
type Client struct {
	provider Provider
	retry    RetryPolicy
	timeout  time.Duration
	observer observe.Sink
	logger   *slog.Logger
	sleep    func(context.Context, time.Duration) error
}

type ClientOption func(*Client)

func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) { c.retry = normalizeRetryPolicy(p) }
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithObserver(sink observe.Sink) ClientOption {
	return func(c *Client) {
		if sink != nil {
			c.observer = sink
		}
	}
}

func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(provider Provider, opts ...ClientOption) *Client {
	c := &Client{
		provider: provider,
		retry:    DefaultRetryPolicy(),
		timeout:  defaultCallTimeout,
		observer: observe.NoopSink{},
		logger:   slog.Default(),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether calls will reach a real provider.
func (c *Client) Configured() bool {
	return c != nil && c.provider != nil
}

func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.call(ctx, types.UserText(system, prompt))
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// GenerateStructured asks the provider for JSON matching the shape of out,
// validates the reply against the reflected schema, then decodes into out.
func (c *Client) GenerateStructured(ctx context.Context, system, prompt string, out any) error {
	if out == nil || reflect.TypeOf(out).Kind() != reflect.Pointer {
		return fmt.Errorf("structured output target must be a non-nil pointer")
	}
	schemaJSON, schemaMap, err := schemaFor(out)
	if err != nil {
		return err
	}

	req := types.UserText(system, prompt)
	req.ResponseSchema = schemaMap
	resp, err := c.call(ctx, req)
	if err != nil {
		return err
	}

	doc, err := ExtractJSON(resp.Message.Content)
	if err != nil {
		return err
	}
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaJSON), gojsonschema.NewStringLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidOutput, strings.Join(msgs, "; "))
	}
	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, req types.Request) (types.Response, error) {
	if !c.Configured() {
		return types.Response{}, ErrNoProvider
	}
	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.retry.delay(attempt-1)); err != nil {
				return types.Response{}, err
			}
		}
		started := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.provider.Generate(callCtx, req)
		cancel()
		c.emit(ctx, started, attempt, err)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil || !c.retry.retryable(err) {
			break
		}
		c.logger.Warn("synthesis attempt failed", "provider", c.provider.Name(), "attempt", attempt, "error", err)
	}
	return types.Response{}, fmt.Errorf("%s generation failed: %w", c.provider.Name(), lastErr)
}

func (c *Client) emit(ctx context.Context, started time.Time, attempt int, err error) {
	event := observe.Event{
		Kind:       observe.KindProvider,
		Status:     observe.StatusCompleted,
		SessionID:  observe.SessionIDFrom(ctx),
		Provider:   c.provider.Name(),
		DurationMs: time.Since(started).Milliseconds(),
		Attributes: map[string]any{"attempt": attempt},
	}
	if err != nil {
		event.Status = observe.StatusFailed
		event.Error = err.Error()
	}
	_ = c.observer.Emit(ctx, event)
}

func schemaFor(out any) ([]byte, map[string]any, error) {
	r := &jsonschema.Reflector{
		DoNotReference:             true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := r.Reflect(out)
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal response schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("failed to decode response schema: %w", err)
	}
	delete(m, "$schema")
	delete(m, "$id")
	return raw, m, nil
}
