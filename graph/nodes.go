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
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	itelemetry "trpc.group/trpc-go/trpc-chatgraph-go/internal/telemetry"
	"trpc.group/trpc-go/trpc-chatgraph-go/model"
	"trpc.group/trpc-go/trpc-chatgraph-go/telemetry/trace"
	"trpc.group/trpc-go/trpc-chatgraph-go/tool"
)

// DefaultHumanPlaceholder answers tool calls the human left unanswered.
const DefaultHumanPlaceholder = "No response from human"

// AbandonedToolResult answers tool calls left pending by a failed turn when
// the thread receives new input.
const AbandonedToolResult = "Tool call did not complete"

// AgentConfig configures an agent node.
type AgentConfig struct {
	// Model is the inference service.
	Model model.Model
	// Instruction is prepended as a system message when non-empty.
	Instruction string
	// Tools are declared to the model. They are not invoked by the agent.
	Tools map[string]tool.Tool
	// EscalationTool names the tool whose call sets State.AskHuman.
	EscalationTool string
	// GenerationConfig is forwarded with every request.
	GenerationConfig model.GenerationConfig
}

// NewAgentNodeFunc creates a NodeFunc that sends the full history to the
// model and appends the single assistant message it answers with.
func NewAgentNodeFunc(cfg AgentConfig) NodeFunc {
	return func(ctx context.Context, state State) (Update, error) {
		if cfg.Model == nil {
			return Update{}, errors.New("agent node has no model")
		}
		request := &model.Request{
			Messages:         buildMessages(state, cfg.Instruction),
			Tools:            cfg.Tools,
			GenerationConfig: cfg.GenerationConfig,
		}
		response, err := runModel(ctx, cfg.Model, request)
		if err != nil {
			return Update{}, err
		}
		msg, _ := response.AssistantMessage()
		askHuman := response.CallsTool(cfg.EscalationTool)
		return Update{
			Messages: []model.Message{msg},
			AskHuman: Bool(askHuman),
		}, nil
	}
}

func buildMessages(state State, instruction string) []model.Message {
	messages := make([]model.Message, 0, len(state.Messages)+1)
	if instruction != "" {
		messages = append(messages, model.NewSystemMessage(instruction))
	}
	return append(messages, state.Messages...)
}

// runModel drains the response channel and returns the final complete
// response. Partial responses only carry streaming deltas.
func runModel(ctx context.Context, m model.Model, request *model.Request) (*model.Response, error) {
	ctx, span := trace.Tracer.Start(ctx, itelemetry.SpanNameRunModel)
	defer span.End()
	modelName := m.Info().Name
	span.SetAttributes(attribute.String(itelemetry.KeyModelName, modelName))

	responseChan, err := m.GenerateContent(ctx, request)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	var final *model.Response
	for response := range responseChan {
		if response == nil {
			continue
		}
		if response.Error != nil {
			recordSpanError(span, response.Error)
			return nil, fmt.Errorf("model API error: %w", response.Error)
		}
		if response.IsPartial {
			continue
		}
		final = response
	}
	if err := ctx.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if final == nil || len(final.Choices) == 0 {
		err := errors.New("no response received from model")
		recordSpanError(span, err)
		return nil, err
	}
	itelemetry.TraceCallLLM(span, modelName, request.Messages, final)
	return final, nil
}

// NewToolsNodeFunc creates a NodeFunc that runs every unanswered tool call
// of the latest assistant message, in request order, and returns the
// results as one batch.
func NewToolsNodeFunc(tools map[string]tool.Tool) NodeFunc {
	return func(ctx context.Context, state State) (Update, error) {
		pending := state.PendingToolCalls()
		if len(pending) == 0 {
			return Update{}, ErrNoPendingToolCalls
		}
		callables := make([]tool.CallableTool, len(pending))
		for i, tc := range pending {
			t, ok := tools[tc.Function.Name]
			if !ok || t == nil {
				return Update{}, fmt.Errorf("%w: %s", ErrUnknownTool, tc.Function.Name)
			}
			c, ok := t.(tool.CallableTool)
			if !ok {
				return Update{}, fmt.Errorf("%w: %s is not callable", ErrUnknownTool, tc.Function.Name)
			}
			callables[i] = c
		}
		results := make([]model.Message, 0, len(pending))
		for i, tc := range pending {
			result, err := runTool(ctx, tc, callables[i])
			if err != nil {
				return Update{}, err
			}
			content, err := serializeResult(result)
			if err != nil {
				return Update{}, fmt.Errorf("failed to marshal result of tool %s: %w", tc.Function.Name, err)
			}
			results = append(results, model.NewToolMessage(tc.ID, tc.Function.Name, content))
		}
		return Update{Messages: results}, nil
	}
}

func runTool(ctx context.Context, toolCall model.ToolCall, t tool.CallableTool) (any, error) {
	ctx, span := trace.Tracer.Start(ctx, itelemetry.NewExecuteToolSpanName(toolCall.Function.Name))
	defer span.End()
	itelemetry.TraceToolCall(span, toolCall.Function.Name, toolCall.ID, toolCall.Function.Arguments)

	result, err := t.Call(ctx, toolCall.Function.Arguments)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("tool %s call failed: %w", toolCall.Function.Name, err)
	}
	return result, nil
}

func serializeResult(result any) (string, error) {
	switch v := result.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.RawMessage:
		return string(v), nil
	}
	content, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// NewHumanNodeFunc creates the human node. The human answers by injecting a
// tool result before the run resumes; whatever is still unanswered when the
// node runs gets placeholder as its result. The escalation flag is cleared.
func NewHumanNodeFunc(placeholder string) NodeFunc {
	if placeholder == "" {
		placeholder = DefaultHumanPlaceholder
	}
	return func(ctx context.Context, state State) (Update, error) {
		var messages []model.Message
		for _, tc := range state.PendingToolCalls() {
			messages = append(messages, model.NewToolMessage(tc.ID, tc.Function.Name, placeholder))
		}
		return Update{Messages: messages, AskHuman: Bool(false)}, nil
	}
}

func recordSpanError(span oteltrace.Span, err error) {
	span.SetAttributes(attribute.String(itelemetry.KeyError, err.Error()))
	span.SetStatus(codes.Error, err.Error())
}
