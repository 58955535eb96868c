//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

package main

import (
	"bytes"
	"context"
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

func newTestRunner(t *testing.T, steps ...modeltest.ScriptStep) runner.Runner {
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
	return r
}

func runREPL(t *testing.T, r runner.Runner, input string) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, newREPL(strings.NewReader(input), &out, r, plainRender).run(context.Background()))
	return out.String()
}

func TestREPL_QuitWords(t *testing.T) {
	for _, word := range []string{"quit", "EXIT", "q"} {
		out := runREPL(t, newTestRunner(t), word+"\n")
		assert.Contains(t, out, "Goodbye!")
		assert.NotContains(t, out, "Thread")
	}
}

func TestREPL_TurnOnDefaultThread(t *testing.T) {
	r := newTestRunner(t,
		modeltest.Call("s1", "web_search", queryArgs{Query: "weather"}),
		modeltest.Say("It is **sunny**."),
	)
	out := runREPL(t, r, "how is the weather?\n\nquit\n")

	assert.Contains(t, out, messageTitle(model.RoleUser))
	assert.Contains(t, out, "Tool Calls:\n  web_search (s1)")
	assert.Contains(t, out, "Name: web_search")
	assert.Contains(t, out, "found weather")
	assert.Contains(t, out, "It is **sunny**.")
	assert.Contains(t, out, "Goodbye!")

	snap, err := r.State(context.Background(), runner.DefaultThreadID)
	require.NoError(t, err)
	assert.Len(t, snap.State.Messages, 4)
}

func TestREPL_EscalationAndAnswer(t *testing.T) {
	r := newTestRunner(t,
		modeltest.Call("h1", escalate.ToolName, escalate.Request{Request: "expert"}),
		modeltest.Say("The expert says hi."),
	)
	out := runREPL(t, r, "I need an expert\nsupport\n/answer hello from the expert\nsupport\nq\n")

	assert.Contains(t, out, `[paused before human]`)
	assert.Contains(t, out, "The expert says hi.")

	snap, err := r.State(context.Background(), "support")
	require.NoError(t, err)
	assert.Equal(t, "hello from the expert", snap.State.Messages[2].Content)
}

func TestREPL_ReportsErrorsAndContinues(t *testing.T) {
	r := newTestRunner(t)
	out := runREPL(t, r, "/resume\nt1\nq\n")
	assert.Contains(t, out, "Error: ")
	assert.Contains(t, out, "Goodbye!")
}

func TestMessageTitle(t *testing.T) {
	title := messageTitle(model.RoleAssistant)
	assert.Len(t, title, titleWidth)
	assert.Contains(t, title, " Ai Message ")
	assert.True(t, strings.HasPrefix(title, "="))
}
