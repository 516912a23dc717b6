package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rhuss/datagem/pkg/observability"
	"github.com/rhuss/datagem/pkg/tools"
)

const (
	// BackendPlaceholder returns a canned answer.
	BackendPlaceholder = "placeholder"

	// BackendSearXNG queries a SearXNG instance.
	BackendSearXNG = "searxng"

	// DefaultDelay is the simulated latency of the placeholder backend.
	DefaultDelay = time.Second
)

// toolParametersJSON is the JSON Schema for the google_search parameters.
var toolParametersJSON = json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Search query"}},"required":["query"]}`)

// Config selects and configures the search backend.
type Config struct {
	// Backend is "placeholder" (default) or "searxng".
	Backend string

	// URL is the SearXNG base URL. Required for the searxng backend.
	URL string

	// MaxResults caps the number of results (default 5).
	MaxResults int

	// Delay is the placeholder latency. Zero uses DefaultDelay; a negative
	// value disables the delay.
	Delay time.Duration

	// Adapter, when set, replaces the backend chosen by Backend and URL.
	Adapter SearchAdapter
}

// Provider implements tools.Provider for google_search.
type Provider struct {
	adapter    SearchAdapter
	backend    string
	maxResults int
	delay      time.Duration
}

var _ tools.Provider = (*Provider)(nil)

// New creates a search Provider.
func New(cfg Config) (*Provider, error) {
	p := &Provider{
		backend:    cfg.Backend,
		maxResults: cfg.MaxResults,
		delay:      cfg.Delay,
	}
	if p.backend == "" {
		p.backend = BackendPlaceholder
	}
	if p.maxResults <= 0 {
		p.maxResults = 5
	}
	if p.delay == 0 {
		p.delay = DefaultDelay
	}

	switch {
	case cfg.Adapter != nil:
		p.adapter = cfg.Adapter
		if cfg.Backend == "" {
			p.backend = "custom"
		}
		return p, nil
	case p.backend == BackendPlaceholder:
	case p.backend == BackendSearXNG:
		if cfg.URL == "" {
			return nil, fmt.Errorf("google_search: 'url' is required for searxng backend")
		}
		p.adapter = NewSearXNG(cfg.URL)
	default:
		return nil, fmt.Errorf("google_search: unknown backend %q", p.backend)
	}
	return p, nil
}

// Definition returns the tool description handed to the model.
func (p *Provider) Definition() tools.Definition {
	return tools.Definition{
		Name:        tools.GoogleSearch,
		Description: "Search the web for current information",
		Parameters:  toolParametersJSON,
	}
}

// Execute runs the search and returns the formatted results.
func (p *Provider) Execute(ctx context.Context, arguments string) (string, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := tools.DecodeArguments(arguments, &args); err != nil {
		observability.SearchQueriesTotal.WithLabelValues(p.backend, "error").Inc()
		return "", err
	}
	if strings.TrimSpace(args.Query) == "" {
		observability.SearchQueriesTotal.WithLabelValues(p.backend, "error").Inc()
		return "", fmt.Errorf("%w: query must not be empty", tools.ErrInvalidArguments)
	}

	if p.adapter == nil {
		if err := p.wait(ctx); err != nil {
			observability.SearchQueriesTotal.WithLabelValues(p.backend, "cancelled").Inc()
			return "", err
		}
		observability.SearchQueriesTotal.WithLabelValues(p.backend, "success").Inc()
		return fmt.Sprintf("Search results for '%s': Found 3 articles about data analytics.", args.Query), nil
	}

	results, err := p.adapter.Search(ctx, args.Query, p.maxResults)
	if err != nil {
		observability.SearchQueriesTotal.WithLabelValues(p.backend, "error").Inc()
		return fmt.Sprintf("search failed: %v", err), nil
	}
	observability.SearchQueriesTotal.WithLabelValues(p.backend, "success").Inc()
	return formatResults(args.Query, results), nil
}

func (p *Provider) wait(ctx context.Context) error {
	if p.delay < 0 {
		return nil
	}
	t := time.NewTimer(p.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// formatResults builds a human-readable text block from search results.
func formatResults(query string, results []SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search results for %q:\n", query)

	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. %s\n   URL: %s\n   %s\n", i+1, r.Title, r.URL, r.Snippet)
	}

	return b.String()
}
