// Package websearch provides the google_search tool. The default backend is
// a placeholder that answers with a canned result after a short delay; a
// SearXNG instance can be configured for real results.
package websearch

import "context"

// SearchResult is one hit shown to the model.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// SearchAdapter queries a search backend. Implementations return at most
// maxResults hits and honor ctx cancellation.
type SearchAdapter interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// SearchFunc adapts a plain function to SearchAdapter.
type SearchFunc func(ctx context.Context, query string, maxResults int) ([]SearchResult, error)

func (f SearchFunc) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	return f(ctx, query, maxResults)
}
