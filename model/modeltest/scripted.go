//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

// Package modeltest provides scripted models for tests of code that drives
// a model.Model.
package modeltest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"trpc.group/trpc-go/trpc-chatgraph-go/model"
)

// ScriptedModel answers each request with the next scripted step.
type ScriptedModel struct {
	mu       sync.Mutex
	steps    []ScriptStep
	Requests []*model.Request
}

// ScriptStep is one scripted model answer.
type ScriptStep struct {
	Message model.Message
	// Err fails GenerateContent.
	Err error
	// APIError is delivered as Response.Error.
	APIError *model.ResponseError
	// Block waits for ctx to be cancelled.
	Block bool
}

// NewScriptedModel creates a model answering with steps in order.
func NewScriptedModel(steps ...ScriptStep) *ScriptedModel {
	return &ScriptedModel{steps: steps}
}

// Say scripts a plain assistant answer.
func Say(content string) ScriptStep {
	return ScriptStep{Message: model.NewAssistantMessage(content)}
}

// Call scripts an assistant answer requesting one tool call.
func Call(id, name string, args any) ScriptStep {
	raw, _ := json.Marshal(args)
	msg := model.NewAssistantMessage("")
	msg.ToolCalls = []model.ToolCall{{
		Type:     "function",
		ID:       id,
		Function: model.FunctionDefinitionParam{Name: name, Arguments: raw},
	}}
	return ScriptStep{Message: msg}
}

// GenerateContent implements model.Model.
func (m *ScriptedModel) GenerateContent(ctx context.Context, req *model.Request) (<-chan *model.Response, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	n := len(m.Requests)
	if len(m.steps) == 0 {
		m.mu.Unlock()
		return nil, errors.New("script exhausted")
	}
	step := m.steps[0]
	m.steps = m.steps[1:]
	m.mu.Unlock()

	if step.Err != nil {
		return nil, step.Err
	}
	ch := make(chan *model.Response, 2)
	go func() {
		defer close(ch)
		if step.Block {
			<-ctx.Done()
			return
		}
		if step.APIError != nil {
			ch <- &model.Response{Error: step.APIError, Done: true}
			return
		}
		ch <- &model.Response{
			IsPartial: true,
			Choices:   []model.Choice{{Message: model.Message{Role: model.RoleAssistant, Content: "partial"}}},
		}
		ch <- &model.Response{
			ID:      fmt.Sprintf("rsp-%d", n),
			Object:  model.ObjectTypeChatCompletion,
			Done:    true,
			Choices: []model.Choice{{Message: step.Message.Clone()}},
		}
	}()
	return ch, nil
}

// Info implements model.Model.
func (m *ScriptedModel) Info() model.Info {
	return model.Info{Name: "scripted"}
}

// RequestCount returns how many requests the model received.
func (m *ScriptedModel) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}
