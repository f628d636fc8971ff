package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// WebSearchTool is the ability id for web search.
const WebSearchTool = "web_search"

const webSearchSchema = `{
	"type": "object",
	"properties": {
		"query": {
			"type": "string",
			"description": "The search query"
		}
	},
	"required": ["query"]
}`

type webSearchArgs struct {
	Query string `json:"query"`
}

// NewWebSearchAdapter returns an adapter that offers web search against the
// configured search endpoint. An empty endpoint disables the tool entirely.
func NewWebSearchAdapter(endpoint string, client *http.Client) Adapter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return func(tc *Context) []*Definition {
		if endpoint == "" || !tc.IsEnabled(WebSearchTool) {
			return nil
		}
		return []*Definition{{
			Name:        WebSearchTool,
			Description: "Search the web for current information. Use for questions about recent events or facts outside your knowledge.",
			Parameters:  json.RawMessage(webSearchSchema),
			Execute: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
				var parsed webSearchArgs
				if err := json.Unmarshal(args, &parsed); err != nil {
					return nil, fmt.Errorf("invalid search arguments: %w", err)
				}
				if parsed.Query == "" {
					return nil, fmt.Errorf("empty search query")
				}
				return search(ctx, client, endpoint, parsed.Query)
			},
		}}
	}
}

func search(ctx context.Context, client *http.Client, endpoint, query string) (json.RawMessage, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid search endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("search endpoint returned non-JSON response")
	}

	return json.RawMessage(body), nil
}
