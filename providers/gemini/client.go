// Package gemini adapts the Google Gen AI SDK to the llm.Provider contract.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/genai"

	"github.com/PipeOpsHQ/rivalscope/llm"
	"github.com/PipeOpsHQ/rivalscope/types"
)

const defaultModel = "gemini-2.5-flash"

var errEmpty = errors.New("gemini: empty response")

type Client struct {
	models *genai.Models
	model  string
}

type Option func(*Client)

func WithModel(model string) Option {
	return func(c *Client) {
		if m := strings.TrimSpace(model); m != "" {
			c.model = m
		}
	}
}

func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	c := &Client{model: defaultModel}
	for _, opt := range opts {
		opt(c)
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	c.models = gc.Models
	return c, nil
}

func (c *Client) Name() string { return "gemini" }

func (c *Client) Capabilities() llm.Capabilities {
	return llm.Capabilities{StructuredOutput: true}
}

func (c *Client) Generate(ctx context.Context, req types.Request) (types.Response, error) {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}
	resp, err := c.models.GenerateContent(ctx, model, contents(req.Messages), buildConfig(req))
	if err != nil {
		return types.Response{}, fmt.Errorf("gemini generation failed: %w", err)
	}
	return parseGeminiResponse(resp)
}

func buildConfig(req types.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{MaxOutputTokens: tokens(req.MaxOutputTokens)}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if t := req.Temperature; t != nil {
		cfg.Temperature = genai.Ptr(float32(*t))
	}
	if len(req.ResponseSchema) > 0 {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseJsonSchema = req.ResponseSchema
	}
	return cfg
}

// parseGeminiResponse joins the visible text of the first candidate. Thought
// parts are skipped.
func parseGeminiResponse(resp *genai.GenerateContentResponse) (types.Response, error) {
	if resp == nil {
		return types.Response{}, errEmpty
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		if fb := resp.PromptFeedback; fb != nil && strings.TrimSpace(fb.BlockReasonMessage) != "" {
			return types.Response{}, fmt.Errorf("%w: prompt blocked: %s", errEmpty, strings.TrimSpace(fb.BlockReasonMessage))
		}
		return types.Response{}, fmt.Errorf("%w: no candidates", errEmpty)
	}
	cand := resp.Candidates[0]

	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil && !part.Thought {
			b.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" && cand.FinishReason == genai.FinishReasonSafety {
		return types.Response{}, fmt.Errorf("%w: candidate stopped by safety filter", errEmpty)
	}

	out := types.Response{Message: types.Message{Role: types.RoleAssistant, Content: text}}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = &types.Usage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
			TotalTokens:  int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func tokens(v int) int32 {
	return int32(min(max(v, 0), math.MaxInt32))
}

// contents keeps user turns and non-empty model turns. Synthesis calls are
// single-turn, so this is usually one user message.
func contents(messages []types.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch {
		case m.Role == types.RoleUser:
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleUser))
		case m.Role == types.RoleAssistant && m.Content != "":
			out = append(out, genai.NewContentFromText(m.Content, genai.RoleModel))
		}
	}
	return out
}
