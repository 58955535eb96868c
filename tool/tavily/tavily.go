//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

// Package tavily provides a web search tool backed by the Tavily search API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"trpc.group/trpc-go/trpc-chatgraph-go/tool"
	"trpc.group/trpc-go/trpc-chatgraph-go/tool/function"
)

// ToolName is the name the model uses to call this tool.
const ToolName = "tavily_search_results_json"

const (
	defaultBaseURL    = "https://api.tavily.com"
	defaultMaxResults = 2
	defaultTimeout    = 30 * time.Second
	searchPath        = "/search"
)

// Option configures the Tavily tool.
type Option func(*config)

type config struct {
	apiKey     string
	baseURL    string
	maxResults int
	httpClient *http.Client
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *config) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithMaxResults sets how many results one search returns.
func WithMaxResults(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// WithHTTPClient sets the HTTP client to use.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *config) {
		c.httpClient = httpClient
	}
}

// Result is one search hit as presented to the model.
type Result struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

type searchRequest struct {
	Query string `json:"query" jsonschema:"description=search query to look up"`
}

type apiRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type apiResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

type tavilyTool struct {
	cfg *config
}

// NewTool creates the Tavily search tool. apiKey is sent with every request.
func NewTool(apiKey string, opts ...Option) tool.CallableTool {
	cfg := &config{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		maxResults: defaultMaxResults,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	t := &tavilyTool{cfg: cfg}
	return function.NewFunctionTool(
		t.search,
		function.WithName(ToolName),
		function.WithDescription("A search engine optimized for comprehensive, accurate, "+
			"and trusted results. Useful for when you need to answer questions about "+
			"current events. Input should be a search query."),
	)
}

func (t *tavilyTool) search(ctx context.Context, req searchRequest) ([]Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.New("tavily: empty search query")
	}
	body, err := json.Marshal(apiRequest{
		APIKey:      t.cfg.apiKey,
		Query:       req.Query,
		MaxResults:  t.cfg.maxResults,
		SearchDepth: "advanced",
	})
	if err != nil {
		return nil, fmt.Errorf("tavily: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.baseURL+searchPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tavily: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.cfg.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tavily: request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tavily: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily: API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("tavily: parse response: %w", err)
	}

	results := make([]Result, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if len(results) >= t.cfg.maxResults {
			break
		}
		results = append(results, Result{URL: r.URL, Content: r.Content})
	}
	return results, nil
}
