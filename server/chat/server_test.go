//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-chatgraph-go/chatbot"
	"trpc.group/trpc-go/trpc-chatgraph-go/graph"
	"trpc.group/trpc-go/trpc-chatgraph-go/graph/checkpoint/inmemory"
	"trpc.group/trpc-go/trpc-chatgraph-go/model"
	"trpc.group/trpc-go/trpc-chatgraph-go/model/modeltest"
	"trpc.group/trpc-go/trpc-chatgraph-go/runner"
	"trpc.group/trpc-go/trpc-chatgraph-go/tool/escalate"
	"trpc.group/trpc-go/trpc-chatgraph-go/tool/function"
)

type queryArgs struct {
	Query string `json:"query"`
}

func newTestServer(t *testing.T, steps ...modeltest.ScriptStep) *httptest.Server {
	t.Helper()
	search := function.NewFunctionTool(func(ctx context.Context, in queryArgs) (string, error) {
		return "found " + in.Query, nil
	}, function.WithName("web_search"))
	g, err := chatbot.NewGraph(modeltest.NewScriptedModel(steps...), search)
	require.NoError(t, err)
	exec, err := graph.NewExecutor(g, graph.WithCheckpointSaver(inmemory.NewSaver()))
	require.NoError(t, err)
	r := runner.NewRunner(exec)
	t.Cleanup(func() { r.Close() })
	srv := httptest.NewServer(New(r).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	rsp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { rsp.Body.Close() })
	return rsp
}

func readEvents(t *testing.T, rsp *http.Response) []graph.Event {
	t.Helper()
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	assert.Equal(t, "text/event-stream", rsp.Header.Get("Content-Type"))
	var events []graph.Event
	scanner := bufio.NewScanner(rsp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var e graph.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e))
		events = append(events, e)
	}
	require.NoError(t, scanner.Err())
	return events
}

func getSnapshot(t *testing.T, url string) graph.Snapshot {
	t.Helper()
	rsp, err := http.Get(url)
	require.NoError(t, err)
	defer rsp.Body.Close()
	require.Equal(t, http.StatusOK, rsp.StatusCode)
	var snap graph.Snapshot
	require.NoError(t, json.NewDecoder(rsp.Body).Decode(&snap))
	return snap
}

func TestServer_TurnStreamsEvents(t *testing.T) {
	srv := newTestServer(t,
		modeltest.Call("s1", "web_search", queryArgs{Query: "go"}),
		modeltest.Say("Go is a language."),
	)

	events := readEvents(t, post(t, srv.URL+"/threads/t1/turns", `{"message":"what is go?"}`))
	require.Len(t, events, 4)
	assert.Equal(t, graph.EventTypeNodeComplete, events[0].Type)
	assert.Equal(t, chatbot.NodeChatbot, events[0].NodeID)
	assert.Equal(t, chatbot.NodeTools, events[1].NodeID)
	assert.Equal(t, "found go", events[1].NewMessages[0].Content)
	assert.Equal(t, graph.EventTypeDone, events[3].Type)

	snap := getSnapshot(t, srv.URL+"/threads/t1/state")
	assert.Equal(t, graph.StatusAwaitingInput, snap.Status)
	require.Len(t, snap.State.Messages, 4)
	assert.Equal(t, "Go is a language.", snap.State.Messages[3].Content)

	rsp, err := http.Get(srv.URL + "/threads/t1/history?limit=2")
	require.NoError(t, err)
	defer rsp.Body.Close()
	var history []graph.Snapshot
	require.NoError(t, json.NewDecoder(rsp.Body).Decode(&history))
	require.Len(t, history, 2)
	assert.Equal(t, 3, history[0].Step)
}

func TestServer_EscalationAnswer(t *testing.T) {
	srv := newTestServer(t,
		modeltest.Call("h1", escalate.ToolName, escalate.Request{Request: "expert"}),
		modeltest.Say("Noted."),
	)

	events := readEvents(t, post(t, srv.URL+"/threads/t1/turns", `{"message":"get me an expert"}`))
	last := events[len(events)-1]
	assert.Equal(t, graph.EventTypeInterrupt, last.Type)
	assert.Equal(t, chatbot.NodeHuman, last.Next)

	events = readEvents(t, post(t, srv.URL+"/threads/t1/answer", `{"message":"use the docs"}`))
	assert.Equal(t, graph.EventTypeDone, events[len(events)-1].Type)

	snap := getSnapshot(t, srv.URL+"/threads/t1/state")
	assert.Equal(t, "use the docs", snap.State.Messages[2].Content)
	assert.Equal(t, model.RoleTool, snap.State.Messages[2].Role)
}

func TestServer_Errors(t *testing.T) {
	srv := newTestServer(t, modeltest.Say("hi"))

	rsp := post(t, srv.URL+"/threads/t1/turns", `{"message":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rsp.StatusCode)

	rsp = post(t, srv.URL+"/threads/t1/turns", `not json`)
	assert.Equal(t, http.StatusBadRequest, rsp.StatusCode)

	rsp = post(t, srv.URL+"/threads/t1/answer", `{"message":"nobody asked"}`)
	assert.Equal(t, http.StatusConflict, rsp.StatusCode)

	rsp = post(t, srv.URL+"/threads/t1/resume", ``)
	assert.Equal(t, http.StatusConflict, rsp.StatusCode)

	getRsp, err := http.Get(srv.URL + "/threads/t1/history?limit=x")
	require.NoError(t, err)
	getRsp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, getRsp.StatusCode)
}

func TestServer_DeleteThread(t *testing.T) {
	srv := newTestServer(t, modeltest.Say("hi"))
	readEvents(t, post(t, srv.URL+"/threads/t1/turns", `{"message":"hello"}`))

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/threads/t1", nil)
	require.NoError(t, err)
	rsp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	rsp.Body.Close()
	assert.Equal(t, http.StatusNoContent, rsp.StatusCode)

	snap := getSnapshot(t, srv.URL+"/threads/t1/state")
	assert.Equal(t, graph.StatusIdle, snap.Status)
}

func TestServer_CORSPreflight(t *testing.T) {
	srv := newTestServer(t)
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/threads/t1/turns", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rsp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	rsp.Body.Close()
	assert.Equal(t, "*", rsp.Header.Get("Access-Control-Allow-Origin"))
}
