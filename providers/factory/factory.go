package factory

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/PipeOpsHQ/rivalscope/llm"
	geminiprov "github.com/PipeOpsHQ/rivalscope/providers/gemini"
	openaiprov "github.com/PipeOpsHQ/rivalscope/providers/openai"
)

// Settings selects and configures a synthesis provider.
type Settings struct {
	Provider     string
	OVHBaseURL   string
	OVHToken     string
	OVHModel     string
	GeminiAPIKey string
	GeminiModel  string
}

// New returns nil with no error when no provider is selected; callers fall
// back to deterministic synthesis in that case.
func New(ctx context.Context, s Settings) (llm.Provider, error) {
	provider := strings.ToLower(strings.TrimSpace(s.Provider))
	switch provider {
	case "", "none":
		return nil, nil

	case "openai", "ovh":
		token := strings.TrimSpace(s.OVHToken)
		if token == "" {
			return nil, fmt.Errorf("OVH_AI_ENDPOINTS_ACCESS_TOKEN is required when provider=%s", provider)
		}
		if strings.TrimSpace(s.OVHBaseURL) == "" {
			return nil, fmt.Errorf("OVH_LLM_BASE_URL is required when provider=%s", provider)
		}
		return openaiprov.New(token,
			openaiprov.WithBaseURL(s.OVHBaseURL),
			openaiprov.WithModel(s.OVHModel),
		)

	case "gemini":
		key := strings.TrimSpace(s.GeminiAPIKey)
		if key == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required when provider=gemini")
		}
		return geminiprov.New(ctx, key, geminiprov.WithModel(s.GeminiModel))
	}

	return nil, fmt.Errorf("unsupported provider %q (use openai or gemini)", provider)
}

// FromEnv reads Settings from the process environment.
func FromEnv(ctx context.Context) (llm.Provider, error) {
	return New(ctx, Settings{
		Provider:     getenv("RIVALSCOPE_PROVIDER", ""),
		OVHBaseURL:   getenv("OVH_LLM_BASE_URL", ""),
		OVHToken:     getenv("OVH_AI_ENDPOINTS_ACCESS_TOKEN", ""),
		OVHModel:     getenv("OVH_LLM_MODEL", "Mistral-Nemo-Instruct-2407"),
		GeminiAPIKey: getenv("GEMINI_API_KEY", ""),
		GeminiModel:  getenv("GEMINI_MODEL", "gemini-2.5-flash"),
	})
}

func getenv(key, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}
