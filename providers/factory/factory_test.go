package factory

import (
	"context"
	"testing"
)

func TestFromEnvNoProvider(t *testing.T) {
	t.Setenv("RIVALSCOPE_PROVIDER", "")
	p, err := FromEnv(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil provider, got %T", p)
	}
}

func TestFromEnvOpenAI(t *testing.T) {
	t.Setenv("RIVALSCOPE_PROVIDER", "openai")
	t.Setenv("OVH_LLM_BASE_URL", "http://127.0.0.1:9/v1")
	t.Setenv("OVH_AI_ENDPOINTS_ACCESS_TOKEN", "tok")
	p, err := FromEnv(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || p.Name() != "openai" {
		t.Fatalf("expected openai provider, got %#v", p)
	}
}

func TestNewValidation(t *testing.T) {
	cases := []Settings{
		{Provider: "openai", OVHBaseURL: "http://x"},
		{Provider: "openai", OVHToken: "tok"},
		{Provider: "gemini"},
		{Provider: "unknown"},
	}
	for _, s := range cases {
		if _, err := New(context.Background(), s); err == nil {
			t.Fatalf("expected error for %+v", s)
		}
	}
}
