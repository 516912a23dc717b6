package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// SearXNGAdapter queries the JSON API of a SearXNG instance.
type SearXNGAdapter struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSearXNG returns an adapter for the instance at baseURL.
func NewSearXNG(baseURL string) *SearXNGAdapter {
	return &SearXNGAdapter{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type searxngPage struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search returns up to maxResults general results for query. Results that
// point to an already seen URL are skipped.
func (s *SearXNGAdapter) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	u, err := url.Parse(s.BaseURL + "/search")
	if err != nil {
		return nil, fmt.Errorf("searxng url: %w", err)
	}
	u.RawQuery = url.Values{
		"q":          {query},
		"format":     {"json"},
		"categories": {"general"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searxng request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("searxng returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var page searxngPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding searxng response: %w", err)
	}

	seen := make(map[string]bool, len(page.Results))
	var out []SearchResult
	for _, r := range page.Results {
		if len(out) == maxResults {
			break
		}
		if r.URL == "" || seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		out = append(out, SearchResult{
			Title:   plainText(r.Title),
			URL:     r.URL,
			Snippet: plainText(r.Content),
		})
	}
	return out, nil
}

// plainText strips markup and entities from a SearXNG field.
func plainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(tagPattern.ReplaceAllString(s, "")))
}
