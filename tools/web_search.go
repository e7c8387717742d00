package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const defaultDuckEndpoint = "https://duckduckgo.com/html/"

// DuckDuckGo scrapes the HTML results page. It needs no API key.
type DuckDuckGo struct {
	endpoint   string
	maxResults int
	client     *http.Client
}

type DuckOption func(*DuckDuckGo)

func WithDuckEndpoint(endpoint string) DuckOption {
	return func(d *DuckDuckGo) {
		if strings.TrimSpace(endpoint) != "" {
			d.endpoint = endpoint
		}
	}
}

func WithDuckMaxResults(n int) DuckOption {
	return func(d *DuckDuckGo) {
		if n > 0 && n <= 10 {
			d.maxResults = n
		}
	}
}

func WithDuckHTTPClient(c *http.Client) DuckOption {
	return func(d *DuckDuckGo) {
		if c != nil {
			d.client = c
		}
	}
}

func NewDuckDuckGo(opts ...DuckOption) *DuckDuckGo {
	d := &DuckDuckGo{
		endpoint:   defaultDuckEndpoint,
		maxResults: 5,
		client:     &http.Client{Timeout: 25 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	endpoint := d.endpoint + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed with HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 3*1024*1024))
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	return parseDuckResults(doc, d.maxResults), nil
}

func parseDuckResults(doc *html.Node, maxResults int) []SearchResult {
	results := make([]SearchResult, 0, maxResults)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n == nil || len(results) >= maxResults {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			title := strings.TrimSpace(nodeText(n))
			resolved := resolveDuckResultURL(attrValue(n, "href"))
			if title != "" && resolved != "" {
				results = append(results, SearchResult{Title: title, URL: resolved, Snippet: resultSnippet(n)})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results
}

func resultSnippet(anchor *html.Node) string {
	for p := anchor.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && (hasClass(p, "result") || hasClass(p, "result__body")) {
			if snippet := findByClassText(p, "result__snippet"); snippet != "" {
				return snippet
			}
		}
	}
	return ""
}

func findByClassText(root *html.Node, className string) string {
	if root.Type == html.ElementNode && hasClass(root, className) {
		return strings.TrimSpace(nodeText(root))
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if text := findByClassText(c, className); text != "" {
			return text
		}
	}
	return ""
}

func hasClass(n *html.Node, className string) bool {
	for _, c := range strings.Fields(attrValue(n, "class")) {
		if c == className {
			return true
		}
	}
	return false
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
		b.WriteString(" ")
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// resolveDuckResultURL unwraps /l/?uddg= redirect links.
func resolveDuckResultURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if q := u.Query().Get("uddg"); q != "" {
		return q
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return raw
	}
	if _, err := strconv.Atoi(raw); err == nil {
		return ""
	}
	if strings.HasPrefix(raw, "/") {
		return "https://duckduckgo.com" + raw
	}
	return ""
}
