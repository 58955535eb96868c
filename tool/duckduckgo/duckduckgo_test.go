//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

package duckduckgo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const relatedTopicsPayload = `{
	"AbstractText": "Beijing is the capital of China.",
	"AbstractSource": "Wikipedia",
	"RelatedTopics": [
		{"Text": "Beijing Capital International Airport - The main airport.", "FirstURL": "https://duckduckgo.com/a"},
		{"Text": "Weather in Beijing - Current conditions.", "FirstURL": "https://duckduckgo.com/b"},
		{"Text": "Forbidden City - Palace complex.", "FirstURL": "https://duckduckgo.com/c"}
	]
}`

func newServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTool_ReturnsCappedResults(t *testing.T) {
	srv := newServer(t, http.StatusOK, relatedTopicsPayload)
	ddg := NewTool(WithBaseURL(srv.URL), WithMaxResults(2))

	assert.Equal(t, ToolName, ddg.Declaration().Name)
	out, err := ddg.Call(context.Background(), []byte(`{"query":"Beijing"}`))
	require.NoError(t, err)

	rsp := out.(searchResponse)
	require.Len(t, rsp.Results, 2)
	assert.Equal(t, "Beijing Capital International Airport", rsp.Results[0].Title)
	assert.Contains(t, rsp.Summary, "Abstract: Beijing is the capital of China.")
}

func TestTool_SummaryOnlyAnswer(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"Answer": "4"}`)
	out, err := NewTool(WithBaseURL(srv.URL)).Call(context.Background(), []byte(`{"query":"2+2"}`))
	require.NoError(t, err)

	rsp := out.(searchResponse)
	require.Len(t, rsp.Results, 1)
	assert.Equal(t, "Answer: 4", rsp.Results[0].Description)
}

func TestTool_ErrorsSurface(t *testing.T) {
	srv := newServer(t, http.StatusInternalServerError, "")
	_, err := NewTool(WithBaseURL(srv.URL)).Call(context.Background(), []byte(`{"query":"x"}`))
	assert.ErrorContains(t, err, "status 500")

	_, err = NewTool(WithBaseURL(srv.URL)).Call(context.Background(), []byte(`{"query":"  "}`))
	assert.ErrorContains(t, err, "empty search query")
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "Go", extractTitle("Go - a language"))
	long := strings.Repeat("x", 80)
	assert.Len(t, extractTitle(long), maxTitleLength)
}
