//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRole_IsValid(t *testing.T) {
	for _, r := range []Role{RoleSystem, RoleUser, RoleAssistant, RoleTool} {
		assert.True(t, r.IsValid(), r.String())
	}
	assert.False(t, Role("narrator").IsValid())
}

func TestNewToolMessage(t *testing.T) {
	msg := NewToolMessage("call_1", "tavily_search", "sunny")
	assert.Equal(t, RoleTool, msg.Role)
	assert.Equal(t, "call_1", msg.ToolID)
	assert.Equal(t, "tavily_search", msg.ToolName)
	assert.Equal(t, "sunny", msg.Content)
}

func TestMessage_CloneDoesNotShare(t *testing.T) {
	orig := Message{
		Role: RoleAssistant,
		ToolCalls: []ToolCall{{
			ID:       "a",
			Function: FunctionDefinitionParam{Name: "f", Arguments: []byte(`{"q":1}`)},
		}},
	}
	c := orig.Clone()
	c.ToolCalls[0].ID = "b"
	c.ToolCalls[0].Function.Arguments[2] = 'x'

	assert.Equal(t, "a", orig.ToolCalls[0].ID)
	assert.Equal(t, `{"q":1}`, string(orig.ToolCalls[0].Function.Arguments))
}

func TestResponse_AssistantMessage(t *testing.T) {
	var nilRsp *Response
	_, ok := nilRsp.AssistantMessage()
	assert.False(t, ok)
	assert.False(t, nilRsp.CallsTool("search"))

	rsp := &Response{Choices: []Choice{{Message: Message{
		Content: "checking",
		ToolCalls: []ToolCall{
			{ID: "1", Function: FunctionDefinitionParam{Name: "search"}},
			{ID: "2", Function: FunctionDefinitionParam{Name: "request_assistance"}},
		},
	}}}}
	msg, ok := rsp.AssistantMessage()
	require.True(t, ok)
	assert.Equal(t, RoleAssistant, msg.Role)
	assert.Equal(t, "checking", msg.Content)
	assert.True(t, rsp.CallsTool("request_assistance"))
	assert.False(t, rsp.CallsTool("other"))
	assert.False(t, rsp.CallsTool(""))
}

func TestResponseError_Error(t *testing.T) {
	assert.Equal(t, "api_error: boom", (&ResponseError{Type: ErrorTypeAPIError, Message: "boom"}).Error())
	assert.Equal(t, "boom", (&ResponseError{Message: "boom"}).Error())
}
