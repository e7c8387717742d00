package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTavilyEndpoint = "https://api.tavily.com/search"

// Tavily calls the Tavily search API. A 429 is retried with a growing pause.
type Tavily struct {
	apiKey      string
	endpoint    string
	maxResults  int
	searchDepth string
	maxAttempts int
	backoff     time.Duration
	client      *http.Client
}

type TavilyOption func(*Tavily)

func WithTavilyEndpoint(endpoint string) TavilyOption {
	return func(t *Tavily) {
		if strings.TrimSpace(endpoint) != "" {
			t.endpoint = endpoint
		}
	}
}

func WithTavilyMaxResults(n int) TavilyOption {
	return func(t *Tavily) {
		if n > 0 {
			t.maxResults = n
		}
	}
}

// WithTavilyDepth selects "basic" or "advanced".
func WithTavilyDepth(depth string) TavilyOption {
	return func(t *Tavily) {
		if depth == "basic" || depth == "advanced" {
			t.searchDepth = depth
		}
	}
}

func WithTavilyBackoff(base time.Duration, attempts int) TavilyOption {
	return func(t *Tavily) {
		if base >= 0 {
			t.backoff = base
		}
		if attempts > 0 {
			t.maxAttempts = attempts
		}
	}
}

func WithTavilyHTTPClient(c *http.Client) TavilyOption {
	return func(t *Tavily) {
		if c != nil {
			t.client = c
		}
	}
}

func NewTavily(apiKey string, opts ...TavilyOption) (*Tavily, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("tavily api key is required")
	}
	t := &Tavily{
		apiKey:      apiKey,
		endpoint:    defaultTavilyEndpoint,
		maxResults:  5,
		searchDepth: "basic",
		maxAttempts: 3,
		backoff:     2 * time.Second,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Tavily) Name() string { return "tavily" }

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (t *Tavily) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	payload, err := json.Marshal(tavilyRequest{
		APIKey:      t.apiKey,
		Query:       query,
		MaxResults:  t.maxResults,
		SearchDepth: t.searchDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode tavily request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		results, retry, err := t.do(ctx, payload)
		if err == nil {
			return results, nil
		}
		lastErr = err
		if !retry || attempt == t.maxAttempts {
			break
		}
		pause := t.backoff * time.Duration(attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pause):
		}
	}
	return nil, lastErr
}

func (t *Tavily) do(ctx context.Context, payload []byte) ([]SearchResult, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("tavily request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, fmt.Errorf("tavily rate limited (HTTP 429)")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("tavily search failed with HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded tavilyResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, false, fmt.Errorf("failed to decode tavily response: %w", err)
	}
	out := make([]SearchResult, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		out = append(out, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return out, false, nil
}
