package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	searchDefaultCount = 5
	searchMaxCount     = 10
	searchTimeout      = 30 * time.Second
	braveEndpoint      = "https://api.search.brave.com/res/v1/web/search"
)

// SearchProvider abstracts a web search backend. Providers are tried in
// order; the first success wins.
type SearchProvider interface {
	Name() string
	Search(ctx context.Context, query string, count int) ([]searchHit, error)
}

type searchHit struct {
	Title       string
	URL         string
	Description string
}

// --- Brave ---

type braveProvider struct {
	apiKey string
	client *http.Client
}

func (p *braveProvider) Name() string { return "brave" }

func (p *braveProvider) Search(ctx context.Context, query string, count int) ([]searchHit, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("count", fmt.Sprintf("%d", count))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, braveEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave API returned %d: %s", resp.StatusCode, truncateStr(string(body), 200))
	}

	var parsed struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	hits := make([]searchHit, 0, len(parsed.Web.Results))
	for _, r := range parsed.Web.Results {
		hits = append(hits, searchHit{Title: r.Title, URL: r.URL, Description: r.Description})
	}
	return hits, nil
}

// --- DuckDuckGo (keyless fallback, scrapes the HTML endpoint) ---

type ddgProvider struct {
	client *http.Client
}

func (p *ddgProvider) Name() string { return "duckduckgo" }

func (p *ddgProvider) Search(ctx context.Context, query string, count int) ([]searchHit, error) {
	searchURL := "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseDDG(string(body), count), nil
}

var (
	ddgLinkRe    = regexp.MustCompile(`<a[^>]*class="[^"]*result__a[^"]*"[^>]*href="([^"]+)"[^>]*>([\s\S]*?)</a>`)
	ddgSnippetRe = regexp.MustCompile(`<a class="result__snippet[^"]*".*?>([\s\S]*?)</a>`)
)

func parseDDG(html string, count int) []searchHit {
	links := ddgLinkRe.FindAllStringSubmatch(html, count+5)
	snippets := ddgSnippetRe.FindAllStringSubmatch(html, count+5)

	var hits []searchHit
	for i := 0; i < len(links) && i < count; i++ {
		rawURL := unwrapDDGRedirect(links[i][1])
		title := strings.TrimSpace(reTag.ReplaceAllString(links[i][2], ""))
		desc := ""
		if i < len(snippets) {
			desc = strings.TrimSpace(reTag.ReplaceAllString(snippets[i][1], ""))
		}
		hits = append(hits, searchHit{Title: title, URL: rawURL, Description: desc})
	}
	return hits
}

// DDG result links go through a redirect with the real URL in uddg=.
func unwrapDDGRedirect(rawURL string) string {
	if !strings.Contains(rawURL, "uddg=") {
		return rawURL
	}
	u, err := url.QueryUnescape(rawURL)
	if err != nil {
		return rawURL
	}
	idx := strings.Index(u, "uddg=")
	if idx == -1 {
		return rawURL
	}
	target := u[idx+5:]
	if amp := strings.Index(target, "&"); amp != -1 {
		target = target[:amp]
	}
	return target
}

// --- tool ---

// WebSearchTool queries configured search providers and returns titles,
// URLs, and snippets. Results are cached briefly per query.
type WebSearchTool struct {
	providers []SearchProvider
	cache     *expirable.LRU[string, string]
}

// NewWebSearchTool builds the tool; Brave is preferred when an API key is
// present, DuckDuckGo is the keyless fallback. Returns nil when neither is
// available.
func NewWebSearchTool(braveAPIKey string, ddgEnabled bool, cacheTTL time.Duration) *WebSearchTool {
	client := &http.Client{Timeout: searchTimeout}
	var providers []SearchProvider
	if braveAPIKey != "" {
		providers = append(providers, &braveProvider{apiKey: braveAPIKey, client: client})
	}
	if ddgEnabled {
		providers = append(providers, &ddgProvider{client: client})
	}
	if len(providers) == 0 {
		return nil
	}
	return &WebSearchTool{
		providers: providers,
		cache:     newWebCache(cacheTTL),
	}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the web for current information. Returns titles, URLs, and snippets."
}

func (t *WebSearchTool) Sensitive() bool { return false }

func (t *WebSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Search query string.",
			},
			"count": map[string]interface{}{
				"type":        "number",
				"description": "Number of results to return (1-10).",
			},
		},
		"required": []string{"query"},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	query, _ := args["query"].(string)
	if query == "" {
		return ErrorResult("query is required")
	}
	count := searchDefaultCount
	if c, ok := args["count"].(float64); ok && int(c) >= 1 && int(c) <= searchMaxCount {
		count = int(c)
	}

	key := cacheKey("search", query, fmt.Sprintf("%d", count))
	if cached, ok := t.cache.Get(key); ok {
		slog.Debug("web_search cache hit", "query", query)
		return NewResult(cached)
	}

	var lastErr error
	for _, p := range t.providers {
		hits, err := p.Search(ctx, query, count)
		if err != nil {
			slog.Warn("search provider failed", "provider", p.Name(), "error", err)
			lastErr = err
			continue
		}
		out := wrapExternal(formatHits(query, hits, p.Name()), "web_search")
		t.cache.Add(key, out)
		return NewResult(out)
	}
	if lastErr != nil {
		return ErrorResult(fmt.Sprintf("all search providers failed: %v", lastErr)).WithError(lastErr)
	}
	return ErrorResult("no search providers configured")
}

func formatHits(query string, hits []searchHit, provider string) string {
	if len(hits) == 0 {
		return "No results found for: " + query
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for: %s (via %s)\n\n", query, provider)
	for i, h := range hits {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, h.Title, h.URL)
		if h.Description != "" {
			fmt.Fprintf(&sb, "   %s\n", h.Description)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
