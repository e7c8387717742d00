// Package openai talks to OpenAI-compatible chat completion endpoints,
// including the OVH AI Endpoints deployment used by default.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PipeOpsHQ/rivalscope/llm"
	"github.com/PipeOpsHQ/rivalscope/types"
)

const (
	defaultModel       = "Mistral-Nemo-Instruct-2407"
	defaultTemperature = 0.7
	defaultMaxTokens   = 1024
	maxErrorBody       = 512
)

type Client struct {
	token       string
	model       string
	endpoint    string
	temperature float64
	maxTokens   int
	http        *http.Client
}

type Option func(*Client)

func WithModel(model string) Option {
	return func(c *Client) {
		if m := strings.TrimSpace(model); m != "" {
			c.model = m
		}
	}
}

// WithBaseURL accepts the endpoint root with or without a trailing /v1.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
		if base == "" {
			c.endpoint = ""
			return
		}
		c.endpoint = strings.TrimSuffix(base, "/v1") + "/v1/chat/completions"
	}
}

func WithTemperature(v float64) Option {
	return func(c *Client) { c.temperature = v }
}

func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func New(token string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("OVH_AI_ENDPOINTS_ACCESS_TOKEN is required")
	}
	c := &Client{
		token:       token,
		model:       defaultModel,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
		http:        &http.Client{Timeout: 90 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.endpoint == "" {
		return nil, fmt.Errorf("OVH_LLM_BASE_URL is required")
	}
	return c, nil
}

func (c *Client) Name() string { return "openai" }

func (c *Client) Capabilities() llm.Capabilities {
	return llm.Capabilities{StructuredOutput: true}
}

// APIError is a non-2xx reply from the endpoint. 4xx replies other than
// 408 and 429 also match llm.ErrPermanent.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openai API error (%d): %s", e.Status, e.Body)
}

func (e *APIError) Is(target error) bool {
	if target != llm.ErrPermanent {
		return false
	}
	return e.Status >= 400 && e.Status < 500 &&
		e.Status != http.StatusRequestTimeout && e.Status != http.StatusTooManyRequests
}

func (c *Client) Generate(ctx context.Context, req types.Request) (types.Response, error) {
	raw, err := json.Marshal(c.payload(req))
	if err != nil {
		return types.Response{}, fmt.Errorf("failed to marshal openai request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(raw))
	if err != nil {
		return types.Response{}, fmt.Errorf("failed to create openai request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return types.Response{}, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return types.Response{}, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	var out completion
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.Response{}, fmt.Errorf("failed to decode openai response: %w", err)
	}
	return out.response()
}

func (c *Client) payload(req types.Request) chatRequest {
	p := chatRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages:    make([]promptMessage, 0, len(req.Messages)+1),
	}
	if req.Model != "" {
		p.Model = req.Model
	}
	if req.MaxOutputTokens > 0 {
		p.MaxTokens = req.MaxOutputTokens
	}
	if req.Temperature != nil {
		p.Temperature = *req.Temperature
	}
	// OVH endpoints accept json_object but not json_schema; the client
	// validates against the schema after the fact.
	if len(req.ResponseSchema) > 0 {
		p.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	if req.SystemPrompt != "" {
		p.Messages = append(p.Messages, promptMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		p.Messages = append(p.Messages, promptMessage{Role: string(m.Role), Content: m.Content})
	}
	return p
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []promptMessage `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type promptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type completion struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

var errNoChoices = errors.New("openai response had no choices")

func (c completion) response() (types.Response, error) {
	if len(c.Choices) == 0 {
		return types.Response{}, errNoChoices
	}
	out := types.Response{Message: types.Message{
		Role:    types.RoleAssistant,
		Content: contentText(c.Choices[0].Message.Content),
	}}
	if u := c.Usage; u.TotalTokens > 0 {
		out.Usage = &types.Usage{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
	}
	return out, nil
}

// contentText accepts the plain string form and the list-of-parts form some
// compatible servers return.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		var b strings.Builder
		for _, p := range parts {
			if p.Type == "" || p.Type == "text" {
				b.WriteString(p.Text)
			}
		}
		return b.String()
	}
	return string(raw)
}
