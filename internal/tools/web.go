package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	bravesearch "github.com/cnosuke/go-brave-search"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultResultCount = 5
	maxResultCount     = 20
	maxFetchBytes      = 100 * 1024
)

var htmlTagRe = regexp.MustCompile(`(?s)<script.*?</script>|<style.*?</style>|<[^>]*>`)

// Web searches the web through Brave and fetches pages as plain text.
type Web struct {
	brave *bravesearch.Client
	http  *http.Client
}

func NewWeb(braveAPIKey string) (*Web, error) {
	client, err := bravesearch.NewClient(braveAPIKey)
	if err != nil {
		return nil, fmt.Errorf("brave client: %w", err)
	}
	return &Web{
		brave: client,
		http: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

func (w *Web) Name() string { return "web" }
func (w *Web) Description() string {
	return "Search the web or fetch the text content of a URL"
}

func (w *Web) InputSchema() any {
	return object(map[string]any{
		"action": map[string]any{
			"type":        "string",
			"enum":        []string{"search", "fetch"},
			"description": "search the web or fetch a URL",
		},
		"query": map[string]any{
			"type":        "string",
			"description": "Search query; empty string for fetch",
		},
		"url": map[string]any{
			"type":        "string",
			"description": "URL to fetch; empty string for search",
		},
		"count": map[string]any{
			"type":        "number",
			"description": "Number of search results (default 5, max 20)",
		},
	})
}

func (w *Web) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Action string `json:"action"`
		Query  string `json:"query"`
		URL    string `json:"url"`
		Count  int    `json:"count"`
	}
	if err := decodeArgs(w.Name(), input, &args); err != nil {
		return "", err
	}

	switch args.Action {
	case "search":
		return w.webSearch(ctx, args.Query, args.Count)
	case "fetch":
		return w.fetch(ctx, args.URL)
	default:
		return "", fmt.Errorf("unknown action: %s", args.Action)
	}
}

func (w *Web) webSearch(ctx context.Context, query string, count int) (string, error) {
	if query == "" {
		return "", fmt.Errorf("query is required for search")
	}
	count = min(max(count, 0), maxResultCount)
	if count == 0 {
		count = defaultResultCount
	}

	resp, err := w.brave.WebSearch(ctx, query, &bravesearch.WebSearchParams{Count: count})
	if err != nil {
		return "", fmt.Errorf("brave search: %w", err)
	}

	results := resp.GetWebResults()
	slog.Debug("web: search done", "query", query, "results", len(results))
	if len(results) == 0 {
		return "No results found.", nil
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		fmt.Fprintf(&b, "%s\n%s\n%s", r.Title, r.URL, r.Description)
	}
	return truncate([]byte(b.String())), nil
}

func (w *Web) fetch(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("url is required for fetch")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "manus/1.0")

	resp, err := w.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	text := strings.Join(strings.Fields(htmlTagRe.ReplaceAllString(string(body), " ")), " ")
	slog.Debug("web: fetch done", "url", url, "bytes", len(text))
	return truncate([]byte(text)), nil
}

// Close releases idle connections held by the fetch client.
func (w *Web) Close() error {
	w.http.CloseIdleConnections()
	return nil
}
