//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

// Package chatbot assembles the support-bot graph: a chatbot node that may
// search the web or escalate to a human, a tools node running searches and
// a human node the run pauses in front of.
package chatbot

import (
	"errors"

	"trpc.group/trpc-go/trpc-chatgraph-go/graph"
	"trpc.group/trpc-go/trpc-chatgraph-go/model"
	"trpc.group/trpc-go/trpc-chatgraph-go/tool"
	"trpc.group/trpc-go/trpc-chatgraph-go/tool/escalate"
)

// Node ids of the assembled graph.
const (
	NodeChatbot = "chatbot"
	NodeTools   = "tools"
	NodeHuman   = "human"
)

type options struct {
	instruction      string
	placeholder      string
	extraTools       []tool.Tool
	generationConfig model.GenerationConfig
}

// Option configures the assembled graph.
type Option func(*options)

// WithInstruction sets the system prompt of the chatbot node.
func WithInstruction(instruction string) Option {
	return func(o *options) { o.instruction = instruction }
}

// WithHumanPlaceholder overrides the text synthesized for escalations the
// human left unanswered.
func WithHumanPlaceholder(text string) Option {
	return func(o *options) {
		if text != "" {
			o.placeholder = text
		}
	}
}

// WithTools adds callable tools next to the search tool.
func WithTools(tools ...tool.Tool) Option {
	return func(o *options) { o.extraTools = append(o.extraTools, tools...) }
}

// WithGenerationConfig sets the generation parameters of every model call.
func WithGenerationConfig(cfg model.GenerationConfig) Option {
	return func(o *options) { o.generationConfig = cfg }
}

// NewGraph builds the compiled graph around m and search.
//
//	chatbot --(escalation)--> human --> chatbot
//	chatbot --(tool calls)--> tools --> chatbot
//	chatbot --(otherwise)---> End
//
// Runs pause before the human node.
func NewGraph(m model.Model, search tool.Tool, opts ...Option) (*graph.Graph, error) {
	if m == nil {
		return nil, errors.New("chatbot: model is required")
	}
	o := &options{placeholder: graph.DefaultHumanPlaceholder}
	for _, opt := range opts {
		opt(o)
	}

	runnable := tool.NewSet()
	if search != nil {
		runnable.Add(search)
	}
	for _, t := range o.extraTools {
		runnable.Add(t)
	}
	declared := tool.NewSet(append([]tool.Tool{escalate.NewTool()}, setTools(runnable)...)...)

	return graph.NewStateGraph().
		AddAgentNode(NodeChatbot, graph.AgentConfig{
			Model:            m,
			Instruction:      o.instruction,
			Tools:            declared.Map(),
			EscalationTool:   escalate.ToolName,
			GenerationConfig: o.generationConfig,
		}, graph.WithDescription("answers the user, searching or escalating when needed")).
		AddToolsNode(NodeTools, runnable.Map(), graph.WithDescription("runs requested searches")).
		AddNode(NodeHuman, graph.NewHumanNodeFunc(o.placeholder),
			graph.WithNodeType(graph.NodeTypeHuman),
			graph.WithDescription("waits for an expert answer")).
		SetEntryPoint(NodeChatbot).
		AddConditionalEdges(NodeChatbot, graph.EscalationRouter(NodeTools, NodeHuman), NodeTools, NodeHuman).
		AddEdge(NodeTools, NodeChatbot).
		AddEdge(NodeHuman, NodeChatbot).
		SetInterruptBefore(NodeHuman).
		Compile()
}

func setTools(s *tool.Set) []tool.Tool {
	out := make([]tool.Tool, 0, len(s.Names()))
	for _, name := range s.Names() {
		t, _ := s.Get(name)
		out = append(out, t)
	}
	return out
}
