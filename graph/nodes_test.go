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
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-chatgraph-go/model"
	"trpc.group/trpc-go/trpc-chatgraph-go/model/modeltest"
	"trpc.group/trpc-go/trpc-chatgraph-go/tool"
	"trpc.group/trpc-go/trpc-chatgraph-go/tool/function"
)

type weatherArgs struct {
	City string `json:"city"`
}

type weatherReport struct {
	City string `json:"city"`
	Sky  string `json:"sky"`
}

func weatherTool() tool.Tool {
	return function.NewFunctionTool(func(ctx context.Context, in weatherArgs) (weatherReport, error) {
		return weatherReport{City: in.City, Sky: "sunny"}, nil
	}, function.WithName("weather"), function.WithDescription("Reports the weather."))
}

type declarationOnly struct{ name string }

func (d declarationOnly) Declaration() *tool.Declaration {
	return &tool.Declaration{Name: d.name}
}

func TestAgentNode(t *testing.T) {
	m := modeltest.NewScriptedModel(modeltest.Call("c1", "RequestAssistance", map[string]string{"request": "help"}))
	node := NewAgentNodeFunc(AgentConfig{
		Model:          m,
		Instruction:    "be brief",
		Tools:          map[string]tool.Tool{"weather": weatherTool()},
		EscalationTool: "RequestAssistance",
	})
	state := State{Messages: []model.Message{model.NewUserMessage("I need a human")}}

	update, err := node(context.Background(), state)
	require.NoError(t, err)
	require.Len(t, update.Messages, 1)
	assert.Equal(t, model.RoleAssistant, update.Messages[0].Role)
	assert.Equal(t, "c1", update.Messages[0].ToolCalls[0].ID)
	require.NotNil(t, update.AskHuman)
	assert.True(t, *update.AskHuman)

	require.Len(t, m.Requests, 1)
	req := m.Requests[0]
	require.Len(t, req.Messages, 2)
	assert.Equal(t, model.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "I need a human", req.Messages[1].Content)
	assert.Contains(t, req.Tools, "weather")
}

func TestAgentNode_ClearsFlagWithoutEscalation(t *testing.T) {
	node := NewAgentNodeFunc(AgentConfig{Model: modeltest.NewScriptedModel(modeltest.Say("hi")), EscalationTool: "RequestAssistance"})
	update, err := node(context.Background(), State{Messages: []model.Message{model.NewUserMessage("hi")}})
	require.NoError(t, err)
	require.NotNil(t, update.AskHuman)
	assert.False(t, *update.AskHuman)
	assert.Equal(t, "hi", update.Messages[0].Content)
}

func TestAgentNode_Failures(t *testing.T) {
	state := State{Messages: []model.Message{model.NewUserMessage("hi")}}
	tests := []struct {
		name    string
		step    modeltest.ScriptStep
		wantErr string
	}{
		{"generate error", modeltest.ScriptStep{Err: errors.New("dial tcp: refused")}, "dial tcp: refused"},
		{"api error", modeltest.ScriptStep{APIError: &model.ResponseError{Type: model.ErrorTypeAPIError, Message: "overloaded"}}, "overloaded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := NewAgentNodeFunc(AgentConfig{Model: modeltest.NewScriptedModel(tt.step)})
			_, err := node(context.Background(), state)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		node := NewAgentNodeFunc(AgentConfig{Model: modeltest.NewScriptedModel(modeltest.ScriptStep{Block: true})})
		_, err := node(ctx, state)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("no model", func(t *testing.T) {
		_, err := NewAgentNodeFunc(AgentConfig{})(context.Background(), state)
		assert.Error(t, err)
	})
}

func TestToolsNode(t *testing.T) {
	echo := function.NewFunctionTool(func(ctx context.Context, in weatherArgs) (string, error) {
		return "plain " + in.City, nil
	}, function.WithName("echo"))
	node := NewToolsNodeFunc(map[string]tool.Tool{"weather": weatherTool(), "echo": echo})

	assistant := model.NewAssistantMessage("")
	assistant.ToolCalls = []model.ToolCall{
		{Type: "function", ID: "1", Function: model.FunctionDefinitionParam{Name: "weather", Arguments: []byte(`{"city":"sf"}`)}},
		{Type: "function", ID: "2", Function: model.FunctionDefinitionParam{Name: "echo", Arguments: []byte(`{"city":"la"}`)}},
	}
	update, err := node(context.Background(), State{Messages: []model.Message{assistant}})
	require.NoError(t, err)
	require.Len(t, update.Messages, 2)
	assert.Equal(t, "1", update.Messages[0].ToolID)
	assert.Equal(t, "weather", update.Messages[0].ToolName)
	assert.JSONEq(t, `{"city":"sf","sky":"sunny"}`, update.Messages[0].Content)
	assert.Equal(t, "2", update.Messages[1].ToolID)
	assert.Equal(t, "plain la", update.Messages[1].Content)
	assert.Nil(t, update.AskHuman)
}

func TestToolsNode_Failures(t *testing.T) {
	failing := function.NewFunctionTool(func(ctx context.Context, in weatherArgs) (string, error) {
		return "", errors.New("backend down")
	}, function.WithName("failing"))
	node := NewToolsNodeFunc(map[string]tool.Tool{
		"failing":  failing,
		"escalate": declarationOnly{name: "escalate"},
	})

	_, err := node(context.Background(), State{Messages: []model.Message{model.NewAssistantMessage("done")}})
	assert.ErrorIs(t, err, ErrNoPendingToolCalls)

	_, err = node(context.Background(), State{Messages: []model.Message{
		modeltest.Call("x", "nosuch", map[string]string{}).Message,
	}})
	assert.ErrorIs(t, err, ErrUnknownTool)
	assert.Contains(t, err.Error(), "nosuch")

	_, err = node(context.Background(), State{Messages: []model.Message{
		modeltest.Call("x", "escalate", map[string]string{}).Message,
	}})
	assert.ErrorIs(t, err, ErrUnknownTool)
	assert.Contains(t, err.Error(), "not callable")

	_, err = node(context.Background(), State{Messages: []model.Message{
		modeltest.Call("x", "failing", map[string]string{"city": "sf"}).Message,
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")
}

func TestHumanNode(t *testing.T) {
	node := NewHumanNodeFunc("")
	assistant := model.NewAssistantMessage("")
	assistant.ToolCalls = []model.ToolCall{
		{Type: "function", ID: "h1", Function: model.FunctionDefinitionParam{Name: "RequestAssistance"}},
		{Type: "function", ID: "h2", Function: model.FunctionDefinitionParam{Name: "weather"}},
	}

	t.Run("placeholder for every unanswered call", func(t *testing.T) {
		update, err := node(context.Background(), State{Messages: []model.Message{assistant}, AskHuman: true})
		require.NoError(t, err)
		require.Len(t, update.Messages, 2)
		for i, id := range []string{"h1", "h2"} {
			assert.Equal(t, model.RoleTool, update.Messages[i].Role)
			assert.Equal(t, id, update.Messages[i].ToolID)
			assert.Equal(t, DefaultHumanPlaceholder, update.Messages[i].Content)
		}
		require.NotNil(t, update.AskHuman)
		assert.False(t, *update.AskHuman)
	})

	t.Run("answered by the human", func(t *testing.T) {
		update, err := node(context.Background(), State{Messages: []model.Message{
			assistant,
			model.NewToolMessage("h1", "RequestAssistance", "use the docs"),
			model.NewToolMessage("h2", "weather", "sunny"),
		}, AskHuman: true})
		require.NoError(t, err)
		assert.Empty(t, update.Messages)
		require.NotNil(t, update.AskHuman)
		assert.False(t, *update.AskHuman)
	})
}
