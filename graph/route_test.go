//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"trpc.group/trpc-go/trpc-chatgraph-go/model"
)

func TestRoute(t *testing.T) {
	assert.True(t, Terminal().IsTerminal())
	assert.Equal(t, End, Terminal().Node())
	assert.True(t, Goto(End).IsTerminal())

	r := Goto("tools")
	assert.False(t, r.IsTerminal())
	assert.Equal(t, "tools", r.Node())
	assert.Equal(t, "Goto(tools)", r.String())
	assert.Equal(t, "End", Terminal().String())
}

func TestEscalationRouter(t *testing.T) {
	router := EscalationRouter("tools", "human")
	tests := []struct {
		name  string
		state State
		want  Route
	}{
		{
			name:  "empty history ends",
			state: State{AskHuman: true},
			want:  Terminal(),
		},
		{
			name: "escalation wins over tool calls",
			state: State{
				Messages: []model.Message{assistantWithCalls("a")},
				AskHuman: true,
			},
			want: Goto("human"),
		},
		{
			name:  "pending tool calls go to tools",
			state: State{Messages: []model.Message{assistantWithCalls("a")}},
			want:  Goto("tools"),
		},
		{
			name:  "plain answer ends",
			state: State{Messages: []model.Message{model.NewAssistantMessage("done")}},
			want:  Terminal(),
		},
		{
			name: "answered calls end",
			state: State{Messages: []model.Message{
				assistantWithCalls("a"),
				model.NewToolMessage("a", "search", "x"),
			}},
			want: Terminal(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := router(tt.state)
			assert.Equal(t, tt.want.IsTerminal(), got.IsTerminal())
			assert.Equal(t, tt.want.Node(), got.Node())
		})
	}
}
