//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

package tavily

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTool_Declaration(t *testing.T) {
	tv := NewTool("tvly-key")
	decl := tv.Declaration()
	assert.Equal(t, ToolName, decl.Name)
	require.NotNil(t, decl.InputSchema)
	assert.Equal(t, []string{"query"}, decl.InputSchema.Required)
	require.NotNil(t, decl.OutputSchema)
	assert.Equal(t, "array", decl.OutputSchema.Type)
}

func TestTool_Search(t *testing.T) {
	var got apiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, searchPath, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"results":[
			{"url":"https://a.example","content":"sunny, 20C"},
			{"url":"https://b.example","content":"light breeze"},
			{"url":"https://c.example","content":"extra"}
		]}`))
	}))
	defer srv.Close()

	tv := NewTool("tvly-key", WithBaseURL(srv.URL))
	assert.Equal(t, ToolName, tv.Declaration().Name)
	assert.Contains(t, tv.Declaration().InputSchema.Properties, "query")

	out, err := tv.Call(context.Background(), []byte(`{"query":"weather in SF"}`))
	require.NoError(t, err)

	assert.Equal(t, "tvly-key", got.APIKey)
	assert.Equal(t, "weather in SF", got.Query)
	assert.Equal(t, defaultMaxResults, got.MaxResults)

	results := out.([]Result)
	require.Len(t, results, 2)
	assert.Equal(t, Result{URL: "https://a.example", Content: "sunny, 20C"}, results[0])
}

func TestTool_MaxResultsOption(t *testing.T) {
	var got apiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	_, err := NewTool("k", WithBaseURL(srv.URL), WithMaxResults(5)).
		Call(context.Background(), []byte(`{"query":"q"}`))
	require.NoError(t, err)
	assert.Equal(t, 5, got.MaxResults)
}

func TestTool_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"invalid api key"}`))
	}))
	defer srv.Close()

	tv := NewTool("bad", WithBaseURL(srv.URL))
	_, err := tv.Call(context.Background(), []byte(`{"query":"q"}`))
	assert.ErrorContains(t, err, "status 401")

	_, err = tv.Call(context.Background(), []byte(`{"query":""}`))
	assert.ErrorContains(t, err, "empty search query")
}
