//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-chatgraph-go/model"
	"trpc.group/trpc-go/trpc-chatgraph-go/tool"
	"trpc.group/trpc-go/trpc-chatgraph-go/tool/escalate"
)

func newServer(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		handler(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newModel(srv *httptest.Server) *Model {
	return New("",
		WithAPIKey("test-key"),
		WithBaseURL(srv.URL),
		WithRequestOptions(option.WithMaxRetries(0)),
	)
}

func drain(ch <-chan *model.Response) []*model.Response {
	var out []*model.Response
	for rsp := range ch {
		out = append(out, rsp)
	}
	return out
}

func TestGenerateContent_ToolUse(t *testing.T) {
	var captured map[string]any
	srv := newServer(t, func(w http.ResponseWriter, body map[string]any) {
		captured = body
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-3-5-sonnet-20240620",
			"content": [
				{"type": "text", "text": "Let me get someone."},
				{"type": "tool_use", "id": "toolu_1", "name": "RequestAssistance", "input": {"request": "human"}}
			],
			"stop_reason": "tool_use", "stop_sequence": null,
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`)
	})

	assistant := model.NewAssistantMessage("")
	assistant.ToolCalls = []model.ToolCall{{
		Type:     "function",
		ID:       "call_1",
		Function: model.FunctionDefinitionParam{Name: "weather", Arguments: []byte(`{"city":"SF"}`)},
	}}
	ch, err := newModel(srv).GenerateContent(context.Background(), &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage("be brief"),
			model.NewUserMessage("weather?"),
			assistant,
			model.NewToolMessage("call_1", "weather", "sunny"),
			model.NewUserMessage("and tomorrow?"),
		},
		Tools: map[string]tool.Tool{escalate.ToolName: escalate.NewTool()},
	})
	require.NoError(t, err)
	rsps := drain(ch)
	require.Len(t, rsps, 1)
	rsp := rsps[0]
	require.Nil(t, rsp.Error)
	assert.True(t, rsp.Done)
	msg := rsp.Choices[0].Message
	assert.Equal(t, "Let me get someone.", msg.Content)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "toolu_1", msg.ToolCalls[0].ID)
	assert.Equal(t, escalate.ToolName, msg.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"request":"human"}`, string(msg.ToolCalls[0].Function.Arguments))
	assert.Equal(t, "tool_use", *rsp.Choices[0].FinishReason)
	assert.Equal(t, 15, rsp.Usage.TotalTokens)

	assert.Equal(t, DefaultModel, captured["model"])
	system := captured["system"].([]any)
	require.Len(t, system, 1)
	assert.Equal(t, "be brief", system[0].(map[string]any)["text"])

	msgs := captured["messages"].([]any)
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
	toolUse := msgs[1].(map[string]any)["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "tool_use", toolUse["type"])
	assert.Equal(t, "call_1", toolUse["id"])
	last := msgs[2].(map[string]any)["content"].([]any)
	require.Len(t, last, 2)
	assert.Equal(t, "tool_result", last[0].(map[string]any)["type"])
	assert.Equal(t, "call_1", last[0].(map[string]any)["tool_use_id"])
	assert.Equal(t, "text", last[1].(map[string]any)["type"])

	tools := captured["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, escalate.ToolName, tools[0].(map[string]any)["name"])
	assert.NotEmpty(t, tools[0].(map[string]any)["description"])
}

func TestGenerateContent_APIError(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, body map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"type": "error", "error": {"type": "invalid_request_error", "message": "bad model"}}`)
	})
	ch, err := newModel(srv).GenerateContent(context.Background(), &model.Request{
		Messages: []model.Message{model.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	rsps := drain(ch)
	require.Len(t, rsps, 1)
	require.NotNil(t, rsps[0].Error)
	assert.Equal(t, model.ErrorTypeAPIError, rsps[0].Error.Type)
	assert.Contains(t, rsps[0].Error.Message, "400")
}

func TestGenerateContent_Streaming(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, body map[string]any) {
		assert.Equal(t, true, body["stream"])
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range []struct{ name, data string }{
			{"message_start", `{"type":"message_start","message":{"id":"msg_2","type":"message","role":"assistant","model":"m","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":3,"output_tokens":0}}}`},
			{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}`},
			{"content_block_stop", `{"type":"content_block_stop","index":0}`},
			{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":2}}`},
			{"message_stop", `{"type":"message_stop"}`},
		} {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data)
		}
	})
	ch, err := newModel(srv).GenerateContent(context.Background(), &model.Request{
		Messages:         []model.Message{model.NewUserMessage("hi")},
		GenerationConfig: model.GenerationConfig{Stream: true},
	})
	require.NoError(t, err)
	rsps := drain(ch)
	require.Len(t, rsps, 3)
	assert.True(t, rsps[0].IsPartial)
	assert.Equal(t, "Hel", rsps[0].Choices[0].Message.Content)
	assert.Equal(t, "lo", rsps[1].Choices[0].Message.Content)
	final := rsps[2]
	assert.True(t, final.Done)
	assert.False(t, final.IsPartial)
	assert.Equal(t, "Hello", final.Choices[0].Message.Content)
	assert.Equal(t, "end_turn", *final.Choices[0].FinishReason)
}

func TestNew_Defaults(t *testing.T) {
	assert.Equal(t, DefaultModel, New("").Info().Name)
	assert.Equal(t, "claude-x", New("claude-x").Info().Name)
	_, err := New("").GenerateContent(context.Background(), nil)
	assert.Error(t, err)
}
