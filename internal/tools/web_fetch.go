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
	fetchMaxChars     = 50000
	fetchMaxRedirects = 3
	fetchTimeout      = 30 * time.Second
)

// WebFetchTool retrieves a URL, extracts readable text, and returns it
// inside an untrusted-content boundary. Responses are cached per
// (url, maxChars) for a short TTL.
type WebFetchTool struct {
	maxChars int
	cache    *expirable.LRU[string, string]
}

func NewWebFetchTool(maxChars int, cacheTTL time.Duration) *WebFetchTool {
	if maxChars <= 0 {
		maxChars = fetchMaxChars
	}
	return &WebFetchTool{
		maxChars: maxChars,
		cache:    newWebCache(cacheTTL),
	}
}

func (t *WebFetchTool) Name() string { return "web_fetch" }

func (t *WebFetchTool) Description() string {
	return "Fetch an http(s) URL and return its readable content. HTML is reduced to text, JSON is pretty-printed."
}

func (t *WebFetchTool) Sensitive() bool { return false }

func (t *WebFetchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "HTTP or HTTPS URL to fetch.",
			},
			"max_chars": map[string]interface{}{
				"type":        "number",
				"description": "Maximum characters to return; output is truncated beyond this.",
			},
		},
		"required": []string{"url"},
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return ErrorResult("url is required")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ErrorResult(fmt.Sprintf("invalid URL: %v", err))
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ErrorResult("only http and https URLs are supported")
	}
	if err := checkSSRF(rawURL); err != nil {
		return ErrorResult(fmt.Sprintf("blocked: %v", err))
	}

	maxChars := t.maxChars
	if mc, ok := args["max_chars"].(float64); ok && int(mc) >= 100 {
		maxChars = int(mc)
	}

	key := cacheKey("fetch", rawURL, fmt.Sprintf("%d", maxChars))
	if cached, ok := t.cache.Get(key); ok {
		slog.Debug("web_fetch cache hit", "url", rawURL)
		return NewResult(cached)
	}

	body, err := t.fetch(ctx, rawURL, maxChars)
	if err != nil {
		return ErrorResult(fmt.Sprintf("fetch failed: %s", truncateStr(err.Error(), 2000))).WithError(err)
	}

	wrapped := wrapExternal(body, "web_fetch "+rawURL)
	t.cache.Add(key, wrapped)
	return NewResult(wrapped)
}

func (t *WebFetchTool) fetch(ctx context.Context, rawURL string, maxChars int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")

	redirects := 0
	client := &http.Client{
		Timeout: fetchTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			redirects++
			if redirects > fetchMaxRedirects {
				return fmt.Errorf("stopped after %d redirects", fetchMaxRedirects)
			}
			// Redirect targets get the same SSRF treatment as the origin.
			return checkSSRF(req.URL.String())
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxChars*4)))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	var text string
	switch {
	case strings.Contains(contentType, "application/json"):
		text = prettyJSON(raw)
	case strings.Contains(contentType, "text/html"),
		strings.Contains(contentType, "application/xhtml"):
		text = htmlToText(string(raw))
	default:
		text = string(raw)
	}

	truncated := false
	if len(text) > maxChars {
		text = text[:maxChars]
		truncated = true
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "URL: %s\nStatus: %d\n", resp.Request.URL, resp.StatusCode)
	if truncated {
		fmt.Fprintf(&sb, "Truncated: true (limit %d chars)\n", maxChars)
	}
	sb.WriteByte('\n')
	sb.WriteString(text)
	return sb.String(), nil
}

func prettyJSON(raw []byte) string {
	var data interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return string(raw)
	}
	formatted, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(formatted)
}

var (
	reScript  = regexp.MustCompile(`(?is)<script[\s\S]*?</script>`)
	reStyle   = regexp.MustCompile(`(?is)<style[\s\S]*?</style>`)
	reComment = regexp.MustCompile(`<!--[\s\S]*?-->`)
	reBlock   = regexp.MustCompile(`(?i)</(?:p|div|h[1-6]|li|tr|section|article)>|<br\s*/?>`)
	reTag     = regexp.MustCompile(`<[^>]+>`)
	reMultiNL = regexp.MustCompile(`\n{3,}`)
	reMultiSP = regexp.MustCompile(`[ \t]{2,}`)
)

// htmlToText is a rough extraction, not a Readability port. It is good
// enough for the model to answer questions about a page.
func htmlToText(html string) string {
	s := reScript.ReplaceAllString(html, "")
	s = reStyle.ReplaceAllString(s, "")
	s = reComment.ReplaceAllString(s, "")
	s = reBlock.ReplaceAllString(s, "\n")
	s = reTag.ReplaceAllString(s, "")
	s = decodeEntities(s)
	s = reMultiSP.ReplaceAllString(s, " ")
	s = reMultiNL.ReplaceAllString(s, "\n\n")

	lines := strings.Split(s, "\n")
	clean := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			clean = append(clean, line)
		}
	}
	return strings.Join(clean, "\n")
}

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
	"&nbsp;", " ",
	"&hellip;", "...",
)

func decodeEntities(s string) string {
	return entityReplacer.Replace(s)
}
