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
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-chatgraph-go/model"
)

func assistantWithCalls(ids ...string) model.Message {
	msg := model.NewAssistantMessage("")
	for _, id := range ids {
		msg.ToolCalls = append(msg.ToolCalls, model.ToolCall{
			Type:     "function",
			ID:       id,
			Function: model.FunctionDefinitionParam{Name: "search", Arguments: []byte(`{}`)},
		})
	}
	return msg
}

func TestState_ApplyAppendsAndOverwrites(t *testing.T) {
	s := State{Messages: []model.Message{model.NewUserMessage("hi")}, AskHuman: true}

	next, err := s.Apply(Update{Messages: []model.Message{model.NewAssistantMessage("hello")}})
	require.NoError(t, err)
	assert.Len(t, next.Messages, 2)
	assert.True(t, next.AskHuman, "flag is kept when the update leaves it unset")
	assert.Len(t, s.Messages, 1, "receiver must not change")

	next, err = next.Apply(Update{AskHuman: Bool(false)})
	require.NoError(t, err)
	assert.False(t, next.AskHuman)
	assert.Len(t, next.Messages, 2)
}

func TestState_ApplyToolResults(t *testing.T) {
	s := State{Messages: []model.Message{
		model.NewUserMessage("weather?"),
		assistantWithCalls("a", "b"),
	}}
	assert.Len(t, s.PendingToolCalls(), 2)

	next, err := s.Apply(Update{Messages: []model.Message{
		model.NewToolMessage("a", "search", "sunny"),
	}})
	require.NoError(t, err)
	pending := next.PendingToolCalls()
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].ID)

	tests := []struct {
		name string
		msg  model.Message
	}{
		{"answered twice", model.NewToolMessage("a", "search", "again")},
		{"unknown id", model.NewToolMessage("zzz", "search", "x")},
		{"missing id", model.NewToolMessage("", "search", "x")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := next.Apply(Update{Messages: []model.Message{tt.msg}})
			assert.ErrorIs(t, err, ErrProtocolViolation)
		})
	}
}

func TestState_ToolResultAfterUserMessageIsOrphan(t *testing.T) {
	s := State{Messages: []model.Message{
		assistantWithCalls("a"),
		model.NewUserMessage("never mind"),
	}}
	assert.Empty(t, s.PendingToolCalls())
	_, err := s.Apply(Update{Messages: []model.Message{model.NewToolMessage("a", "search", "x")}})
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestState_AssistantToolCallIDs(t *testing.T) {
	_, err := State{}.Apply(Update{Messages: []model.Message{assistantWithCalls("a", "a")}})
	assert.ErrorIs(t, err, ErrProtocolViolation)
	_, err = State{}.Apply(Update{Messages: []model.Message{assistantWithCalls("")}})
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestState_ApplyRejectsUnknownRole(t *testing.T) {
	_, err := State{}.Apply(Update{Messages: []model.Message{{Role: "narrator", Content: "x"}}})
	assert.ErrorIs(t, err, ErrProtocolViolation)
	_, err = State{}.Apply(Update{Messages: []model.Message{{Content: "x"}}})
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestState_ApplyIsAllOrNothing(t *testing.T) {
	s := State{Messages: []model.Message{assistantWithCalls("a")}}
	got, err := s.Apply(Update{Messages: []model.Message{
		model.NewToolMessage("a", "search", "ok"),
		model.NewToolMessage("b", "search", "bad"),
	}})
	require.Error(t, err)
	assert.Len(t, got.Messages, 1)
}

func TestState_CloneIsDeep(t *testing.T) {
	s := State{Messages: []model.Message{assistantWithCalls("a")}}
	c := s.Clone()
	c.Messages[0].ToolCalls[0].Function.Arguments[0] = 'X'
	c.Messages[0].Content = "changed"
	assert.Equal(t, byte('{'), s.Messages[0].ToolCalls[0].Function.Arguments[0])
	assert.Empty(t, s.Messages[0].Content)
}

func TestState_LastMessage(t *testing.T) {
	_, ok := State{}.LastMessage()
	assert.False(t, ok)
	last, ok := State{Messages: []model.Message{model.NewUserMessage("a"), model.NewUserMessage("b")}}.LastMessage()
	require.True(t, ok)
	assert.Equal(t, "b", last.Content)
}

func TestUpdate_IsEmpty(t *testing.T) {
	assert.True(t, Update{}.IsEmpty())
	assert.False(t, Update{AskHuman: Bool(false)}.IsEmpty())
	assert.False(t, Update{Messages: []model.Message{model.NewUserMessage("x")}}.IsEmpty())
}
