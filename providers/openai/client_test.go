package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PipeOpsHQ/rivalscope/llm"
	"github.com/PipeOpsHQ/rivalscope/types"
)

func TestClientGenerate_OVHRoundTrip(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Fatalf("expected bearer auth header")
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req["model"] != defaultModel {
			t.Fatalf("unexpected model: %#v", req["model"])
		}
		format, ok := req["response_format"].(map[string]any)
		if !ok || format["type"] != "json_object" {
			t.Fatalf("expected json response format, got %#v", req["response_format"])
		}
		msgs, _ := req["messages"].([]any)
		if len(msgs) != 2 {
			t.Fatalf("expected system + user messages, got %d", len(msgs))
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "{\"ok\":true}"}}],
			"usage": {"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10}
		}`))
	}))
	defer ts.Close()

	client, err := New("test-token", WithBaseURL(ts.URL+"/v1"), WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	req := types.UserText("system", "hello")
	req.ResponseSchema = map[string]any{"type": "object"}
	resp, err := client.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Message.Content != `{"ok":true}` {
		t.Fatalf("unexpected content: %q", resp.Message.Content)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 10 {
		t.Fatalf("unexpected usage: %#v", resp.Usage)
	}
}

func TestClientGenerate_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer ts.Close()

	client, err := New("k", WithBaseURL(ts.URL), WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_, err = client.Generate(context.Background(), types.UserText("", "hi"))
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New("k"); err == nil {
		t.Fatalf("expected error without base url")
	}
	if _, err := New("", WithBaseURL("http://x")); err == nil {
		t.Fatalf("expected error without token")
	}
}

func TestAPIErrorClassifiesPermanentStatuses(t *testing.T) {
	for status, permanent := range map[int]bool{
		http.StatusUnauthorized:        true,
		http.StatusNotFound:            true,
		http.StatusTooManyRequests:     false,
		http.StatusRequestTimeout:      false,
		http.StatusInternalServerError: false,
	} {
		err := error(&APIError{Status: status})
		if got := errors.Is(err, llm.ErrPermanent); got != permanent {
			t.Errorf("status %d: permanent=%v, want %v", status, got, permanent)
		}
	}
}

func TestClientGenerate_ContentParts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": [
			{"type": "text", "text": "{\"a\":"},
			{"type": "image_url", "text": "ignored"},
			{"type": "text", "text": "1}"}
		]}}]}`))
	}))
	defer ts.Close()

	client, err := New("k", WithBaseURL(ts.URL+"/"), WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	resp, err := client.Generate(context.Background(), types.UserText("", "hi"))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Message.Content != `{"a":1}` || resp.Usage != nil {
		t.Fatalf("unexpected response %+v", resp)
	}
}
