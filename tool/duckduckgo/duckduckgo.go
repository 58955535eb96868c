//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

// Package duckduckgo provides a DuckDuckGo Instant Answer search tool.
// The Instant Answer API serves encyclopedic facts and definitions, not
// live data such as weather or news.
package duckduckgo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"trpc.group/trpc-go/trpc-chatgraph-go/tool"
	"trpc.group/trpc-go/trpc-chatgraph-go/tool/function"
)

// ToolName is the name the model uses to call this tool.
const ToolName = "duckduckgo_search"

const (
	defaultMaxResults = 2
	maxTitleLength    = 50
	defaultBaseURL    = "https://api.duckduckgo.com"
	defaultUserAgent  = "trpc-chatgraph-go-duckduckgo/1.0"
	defaultTimeout    = 30 * time.Second
)

// Option is a functional option for configuring the DuckDuckGo tool.
type Option func(*config)

type config struct {
	baseURL    string
	userAgent  string
	maxResults int
	httpClient *http.Client
}

// WithBaseURL sets the base URL for the DuckDuckGo API.
func WithBaseURL(baseURL string) Option {
	return func(c *config) {
		c.baseURL = baseURL
	}
}

// WithUserAgent sets the user agent for HTTP requests.
func WithUserAgent(userAgent string) Option {
	return func(c *config) {
		c.userAgent = userAgent
	}
}

// WithMaxResults caps the number of related topics returned.
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

type searchRequest struct {
	Query string `json:"query" jsonschema:"description=The search query to execute on DuckDuckGo"`
}

type searchResponse struct {
	Query   string       `json:"query"`
	Results []resultItem `json:"results"`
	Summary string       `json:"summary"`
}

type resultItem struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

type ddgTool struct {
	cfg *config
}

// NewTool creates a new DuckDuckGo search tool with the provided options.
func NewTool(opts ...Option) tool.CallableTool {
	cfg := &config{
		baseURL:    defaultBaseURL,
		userAgent:  defaultUserAgent,
		maxResults: defaultMaxResults,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	t := &ddgTool{cfg: cfg}
	return function.NewFunctionTool(
		t.search,
		function.WithName(ToolName),
		function.WithDescription("Search DuckDuckGo's Instant Answer API for "+
			"factual, encyclopedic information: entities, definitions, "+
			"calculations and historical facts. Not suitable for real-time data."),
	)
}

func (t *ddgTool) search(ctx context.Context, req searchRequest) (searchResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return searchResponse{}, errors.New("duckduckgo: empty search query")
	}
	response, err := t.fetch(ctx, req.Query)
	if err != nil {
		return searchResponse{}, err
	}

	var results []resultItem
	var summaryParts []string
	if response.Answer != "" {
		summaryParts = append(summaryParts, "Answer: "+response.Answer)
	}
	if response.AbstractText != "" {
		summaryParts = append(summaryParts, "Abstract: "+response.AbstractText)
		if response.AbstractSource != "" {
			summaryParts = append(summaryParts, "Source: "+response.AbstractSource)
		}
	}
	if response.Definition != "" {
		summaryParts = append(summaryParts, "Definition: "+response.Definition)
	}
	for _, topic := range response.RelatedTopics {
		if len(results) >= t.cfg.maxResults {
			break
		}
		if topic.Text != "" && topic.FirstURL != "" {
			results = append(results, resultItem{
				Title:       extractTitle(topic.Text),
				URL:         topic.FirstURL,
				Description: topic.Text,
			})
		}
	}
	if len(results) == 0 && len(summaryParts) > 0 {
		results = append(results, resultItem{
			Title:       "DuckDuckGo search: " + req.Query,
			URL:         "https://duckduckgo.com/?q=" + url.QueryEscape(req.Query),
			Description: strings.Join(summaryParts, " | "),
		})
	}

	summary := fmt.Sprintf("Found %d results for query '%s'", len(results), req.Query)
	if len(summaryParts) > 0 {
		summary = strings.Join(summaryParts, " | ")
	}
	return searchResponse{Query: req.Query, Results: results, Summary: summary}, nil
}

// apiResponse is the subset of the Instant Answer payload the tool reads.
type apiResponse struct {
	Heading        string         `json:"Heading"`
	AbstractText   string         `json:"AbstractText"`
	AbstractSource string         `json:"AbstractSource"`
	Answer         string         `json:"Answer"`
	Definition     string         `json:"Definition"`
	RelatedTopics  []relatedTopic `json:"RelatedTopics"`
}

type relatedTopic struct {
	Text     string `json:"Text"`
	FirstURL string `json:"FirstURL"`
}

func (t *ddgTool) fetch(ctx context.Context, query string) (*apiResponse, error) {
	reqURL := fmt.Sprintf("%s/?q=%s&format=json&no_html=1&skip_disambig=1",
		t.cfg.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", t.cfg.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := t.cfg.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: failed to perform request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo: API returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: failed to read response body: %w", err)
	}
	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("duckduckgo: failed to parse response: %w", err)
	}
	return &out, nil
}

func extractTitle(text string) string {
	title := strings.TrimSpace(text)
	if before, _, ok := strings.Cut(text, " - "); ok && before != "" {
		title = strings.TrimSpace(before)
	}
	if len(title) > maxTitleLength {
		return title[:maxTitleLength-3] + "..."
	}
	return title
}
