// Package tools holds the search and scrape collaborators the research
// stage calls. Failures are returned to the caller, which records them.
package tools

import (
	"context"
	"time"
)

const userAgent = "Mozilla/5.0 (compatible; rivalscope/1.0)"

type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Searcher returns results in relevance order.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

type Page struct {
	URL         string    `json:"url"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content"`
	StatusCode  int       `json:"statusCode,omitempty"`
	FetchedAt   time.Time `json:"fetchedAt"`
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// DefaultSubpages are the paths scraped for a company site.
var DefaultSubpages = []string{"/", "/about", "/pricing", "/product", "/products", "/blog"}
