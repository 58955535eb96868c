//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

// Package anthropic provides a model.Model backed by the Claude Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"trpc.group/trpc-go/trpc-chatgraph-go/log"
	"trpc.group/trpc-go/trpc-chatgraph-go/model"
	"trpc.group/trpc-go/trpc-chatgraph-go/tool"
)

const (
	// DefaultModel is the model used when none is configured.
	DefaultModel = "claude-3-5-sonnet-20240620"

	defaultMaxTokens         = 1024
	defaultChannelBufferSize = 256
)

// Model implements model.Model on the Anthropic Messages API.
type Model struct {
	client            anthropic.Client
	name              string
	maxTokens         int64
	channelBufferSize int
}

type options struct {
	apiKey            string
	baseURL           string
	maxTokens         int64
	channelBufferSize int
	httpClient        *http.Client
	requestOptions    []option.RequestOption
}

// Option configures a Model.
type Option func(*options)

// WithAPIKey sets the API key. Without it the SDK reads ANTHROPIC_API_KEY.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithMaxTokens sets the default response token limit.
func WithMaxTokens(n int) Option {
	return func(o *options) { o.maxTokens = int64(n) }
}

// WithChannelBufferSize sets the response channel buffer size.
func WithChannelBufferSize(size int) Option {
	return func(o *options) {
		if size <= 0 {
			size = defaultChannelBufferSize
		}
		o.channelBufferSize = size
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithRequestOptions appends raw SDK request options.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(o *options) { o.requestOptions = append(o.requestOptions, opts...) }
}

// New creates a Claude model. An empty name selects DefaultModel.
func New(name string, opts ...Option) *Model {
	if name == "" {
		name = DefaultModel
	}
	o := &options{
		maxTokens:         defaultMaxTokens,
		channelBufferSize: defaultChannelBufferSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	var clientOpts []option.RequestOption
	if o.apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(o.apiKey))
	}
	if o.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(o.baseURL))
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(o.httpClient))
	}
	clientOpts = append(clientOpts, o.requestOptions...)
	return &Model{
		client:            anthropic.NewClient(clientOpts...),
		name:              name,
		maxTokens:         o.maxTokens,
		channelBufferSize: o.channelBufferSize,
	}
}

// Info implements the model.Model interface.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.name}
}

// GenerateContent implements the model.Model interface.
func (m *Model) GenerateContent(ctx context.Context, request *model.Request) (<-chan *model.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}
	messages, system := convertMessages(request.Messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.name),
		Messages:  messages,
		MaxTokens: m.maxTokens,
		Tools:     convertTools(request.Tools),
	}
	if len(system) > 0 {
		params.System = system
	}
	if request.MaxTokens != nil {
		params.MaxTokens = int64(*request.MaxTokens)
	}
	if request.Temperature != nil {
		params.Temperature = anthropic.Float(*request.Temperature)
	}

	responseChan := make(chan *model.Response, m.channelBufferSize)
	go func() {
		defer close(responseChan)
		if request.Stream {
			m.handleStreamingResponse(ctx, params, responseChan)
		} else {
			m.handleNonStreamingResponse(ctx, params, responseChan)
		}
	}()
	return responseChan, nil
}

// convertMessages maps the history onto Claude turns. System messages
// become the system prompt; tool results travel in user turns, and
// consecutive user-side messages share one turn.
func convertMessages(messages []model.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var (
		system []anthropic.TextBlockParam
		out    []anthropic.MessageParam
	)
	appendUser := func(block anthropic.ContentBlockParamUnion) {
		if n := len(out); n > 0 && out[n-1].Role == anthropic.MessageParamRoleUser {
			out[n-1].Content = append(out[n-1].Content, block)
			return
		}
		out = append(out, anthropic.NewUserMessage(block))
	}
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case model.RoleUser:
			appendUser(anthropic.NewTextBlock(msg.Content))
		case model.RoleTool:
			appendUser(anthropic.NewToolResultBlock(msg.ToolID, msg.Content, false))
		case model.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input any = map[string]any{}
				if len(tc.Function.Arguments) > 0 {
					input = json.RawMessage(tc.Function.Arguments)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		}
	}
	return out, system
}

func convertTools(tools map[string]tool.Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]anthropic.ToolUnionParam, 0, len(names))
	for _, name := range names {
		decl := tools[name].Declaration()
		inputSchema := anthropic.ToolInputSchemaParam{}
		if decl.InputSchema != nil {
			inputSchema.Properties = decl.InputSchema.Properties
			inputSchema.Required = decl.InputSchema.Required
		}
		t := anthropic.ToolUnionParamOfTool(inputSchema, decl.Name)
		if decl.Description != "" {
			t.OfTool.Description = anthropic.String(decl.Description)
		}
		result = append(result, t)
	}
	return result
}

func (m *Model) handleNonStreamingResponse(
	ctx context.Context,
	params anthropic.MessageNewParams,
	responseChan chan<- *model.Response,
) {
	msg, err := m.client.Messages.New(ctx, params)
	if err != nil {
		log.Debugf("anthropic: messages request for %s failed: %v", m.name, err)
		sendError(ctx, responseChan, model.ErrorTypeAPIError, err)
		return
	}
	send(ctx, responseChan, convertMessage(msg))
}

func (m *Model) handleStreamingResponse(
	ctx context.Context,
	params anthropic.MessageNewParams,
	responseChan chan<- *model.Response,
) {
	stream := m.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	msg := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			sendError(ctx, responseChan, model.ErrorTypeStreamError, err)
			return
		}
		delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		text, ok := delta.Delta.AsAny().(anthropic.TextDelta)
		if !ok || text.Text == "" {
			continue
		}
		partial := &model.Response{
			ID:     msg.ID,
			Object: model.ObjectTypeChatCompletion,
			Model:  string(msg.Model),
			Choices: []model.Choice{{
				Message: model.Message{Role: model.RoleAssistant, Content: text.Text},
			}},
			Timestamp: time.Now(),
			IsPartial: true,
		}
		if !send(ctx, responseChan, partial) {
			return
		}
	}
	if err := stream.Err(); err != nil {
		sendError(ctx, responseChan, model.ErrorTypeStreamError, err)
		return
	}
	send(ctx, responseChan, convertMessage(&msg))
}

func convertMessage(msg *anthropic.Message) *model.Response {
	var (
		text  strings.Builder
		calls []model.ToolCall
	)
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			calls = append(calls, model.ToolCall{
				Type: "function",
				ID:   b.ID,
				Function: model.FunctionDefinitionParam{
					Name:      b.Name,
					Arguments: []byte(b.Input),
				},
			})
		}
	}
	choice := model.Choice{
		Message: model.Message{
			Role:      model.RoleAssistant,
			Content:   text.String(),
			ToolCalls: calls,
		},
	}
	if msg.StopReason != "" {
		reason := string(msg.StopReason)
		choice.FinishReason = &reason
	}
	return &model.Response{
		ID:      msg.ID,
		Object:  model.ObjectTypeChatCompletion,
		Model:   string(msg.Model),
		Choices: []model.Choice{choice},
		Usage: &model.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		Timestamp: time.Now(),
		Done:      true,
	}
}

func send(ctx context.Context, ch chan<- *model.Response, rsp *model.Response) bool {
	select {
	case ch <- rsp:
		return true
	case <-ctx.Done():
		return false
	}
}

func sendError(ctx context.Context, ch chan<- *model.Response, typ string, err error) {
	send(ctx, ch, &model.Response{
		Object: model.ObjectTypeError,
		Error: &model.ResponseError{
			Message: err.Error(),
			Type:    typ,
		},
		Timestamp: time.Now(),
		Done:      true,
	})
}
