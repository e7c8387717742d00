package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const maxPageBytes = 5 * 1024 * 1024

var whitespace = regexp.MustCompile(`\s+`)

// HTTPFetcher downloads a page and reduces it to readable text. Chrome
// elements (nav, header, footer) and scripts are dropped.
type HTTPFetcher struct {
	client *http.Client
	now    func() time.Time
}

type FetcherOption func(*HTTPFetcher)

func WithFetchHTTPClient(c *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		if c != nil {
			f.client = c
		}
	}
}

func NewHTTPFetcher(opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	if strings.TrimSpace(rawURL) == "" {
		return Page{}, fmt.Errorf("url is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	page := Page{URL: rawURL, StatusCode: resp.StatusCode, FetchedAt: f.now()}
	if resp.StatusCode != http.StatusOK {
		return page, fmt.Errorf("fetch %s failed with HTTP %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return page, err
	}
	// Invalid UTF-8 becomes U+FFFD.
	doc, err := html.Parse(strings.NewReader(strings.ToValidUTF8(string(body), "\uFFFD")))
	if err != nil {
		return page, err
	}

	page.Title = extractTitle(doc)
	page.Description = extractMeta(doc)["description"]
	page.Content = extractText(doc)
	return page, nil
}

// SubpageURLs joins paths onto the scheme and host of base, in order and
// without duplicates.
func SubpageURLs(base string, paths []string) ([]string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", base, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid url %q: missing host", base)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	root := &url.URL{Scheme: u.Scheme, Host: u.Host}

	seen := map[string]bool{}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		ref, err := url.Parse(p)
		if err != nil {
			continue
		}
		full := root.ResolveReference(ref).String()
		if seen[full] {
			continue
		}
		seen[full] = true
		out = append(out, full)
	}
	return out, nil
}

func extractTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		if n.FirstChild != nil {
			return strings.TrimSpace(n.FirstChild.Data)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := extractTitle(c); title != "" {
			return title
		}
	}
	return ""
}

func extractText(n *html.Node) string {
	var sb strings.Builder
	extractTextRecursive(n, &sb)
	return strings.TrimSpace(whitespace.ReplaceAllString(sb.String(), " "))
}

func extractTextRecursive(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "nav", "footer", "header":
			return
		}
	}
	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractTextRecursive(c, sb)
	}
}

func extractMeta(n *html.Node) map[string]string {
	meta := make(map[string]string)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var name, content string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "name", "property":
					name = attr.Val
				case "content":
					content = attr.Val
				}
			}
			if name != "" && content != "" {
				meta[name] = content
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return meta
}
