package tools

import (
	"context"
	"time"

	"github.com/PipeOpsHQ/rivalscope/observe"
)

// ObservedSearcher reports every search as a tool event.
func ObservedSearcher(s Searcher, sink observe.Sink) Searcher {
	if sink == nil {
		return s
	}
	return &observedSearcher{next: s, sink: sink}
}

// ObservedFetcher reports every fetch as a tool event.
func ObservedFetcher(f Fetcher, sink observe.Sink) Fetcher {
	if sink == nil {
		return f
	}
	return &observedFetcher{next: f, sink: sink}
}

type observedSearcher struct {
	next Searcher
	sink observe.Sink
}

func (o *observedSearcher) Name() string { return o.next.Name() }

func (o *observedSearcher) Search(ctx context.Context, query string) ([]SearchResult, error) {
	started := time.Now()
	results, err := o.next.Search(ctx, query)
	emitTool(ctx, o.sink, "search."+o.next.Name(), started, err, map[string]any{
		"query":   query,
		"results": len(results),
	})
	return results, err
}

type observedFetcher struct {
	next Fetcher
	sink observe.Sink
}

func (o *observedFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	started := time.Now()
	page, err := o.next.Fetch(ctx, url)
	emitTool(ctx, o.sink, "fetch", started, err, map[string]any{
		"url":   url,
		"bytes": len(page.Content),
	})
	return page, err
}

func emitTool(ctx context.Context, sink observe.Sink, name string, started time.Time, err error, attrs map[string]any) {
	event := observe.Event{
		Kind:       observe.KindTool,
		Status:     observe.StatusCompleted,
		SessionID:  observe.SessionIDFrom(ctx),
		ToolName:   name,
		DurationMs: time.Since(started).Milliseconds(),
		Attributes: attrs,
	}
	if err != nil {
		event.Status = observe.StatusFailed
		event.Error = err.Error()
	}
	_ = sink.Emit(ctx, event)
}
