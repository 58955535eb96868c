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
	"trpc.group/trpc-go/trpc-chatgraph-go/tool"
)

// StateGraph provides a fluent interface for building graphs. The first
// error encountered is kept and returned by Compile.
type StateGraph struct {
	graph *Graph
	err   error
}

// NewStateGraph creates a new graph builder.
func NewStateGraph() *StateGraph {
	return &StateGraph{graph: newGraph()}
}

// Option is a function that configures a Node.
type Option func(*Node)

// WithName sets the name of the node.
func WithName(name string) Option {
	return func(node *Node) {
		node.Name = name
	}
}

// WithDescription sets the description of the node.
func WithDescription(description string) Option {
	return func(node *Node) {
		node.Description = description
	}
}

// WithNodeType sets the type of the node.
func WithNodeType(nodeType NodeType) Option {
	return func(node *Node) {
		node.Type = nodeType
	}
}

// AddNode adds a node with the given ID and function.
func (sg *StateGraph) AddNode(id string, function NodeFunc, opts ...Option) *StateGraph {
	node := &Node{
		ID:       id,
		Name:     id,
		Type:     NodeTypeFunction,
		Function: function,
	}
	for _, opt := range opts {
		opt(node)
	}
	sg.keep(sg.graph.addNode(node))
	return sg
}

// AddAgentNode adds a node backed by NewAgentNodeFunc.
func (sg *StateGraph) AddAgentNode(id string, cfg AgentConfig, opts ...Option) *StateGraph {
	return sg.AddNode(id, NewAgentNodeFunc(cfg), append([]Option{WithNodeType(NodeTypeAgent)}, opts...)...)
}

// AddToolsNode adds a node backed by NewToolsNodeFunc.
func (sg *StateGraph) AddToolsNode(id string, tools map[string]tool.Tool, opts ...Option) *StateGraph {
	return sg.AddNode(id, NewToolsNodeFunc(tools), append([]Option{WithNodeType(NodeTypeTool)}, opts...)...)
}

// AddHumanNode adds a node backed by NewHumanNodeFunc with the default
// placeholder.
func (sg *StateGraph) AddHumanNode(id string, opts ...Option) *StateGraph {
	return sg.AddNode(id, NewHumanNodeFunc(DefaultHumanPlaceholder), append([]Option{WithNodeType(NodeTypeHuman)}, opts...)...)
}

// AddEdge adds a static edge. An edge from Start sets the entry point.
func (sg *StateGraph) AddEdge(from, to string) *StateGraph {
	sg.keep(sg.graph.addEdge(&Edge{From: from, To: to}))
	return sg
}

// AddConditionalEdges routes out of from through router. destinations
// lists every node the router may choose.
func (sg *StateGraph) AddConditionalEdges(from string, router RouterFunc, destinations ...string) *StateGraph {
	sg.keep(sg.graph.addConditionalEdge(&ConditionalEdge{
		From:         from,
		Router:       router,
		Destinations: destinations,
	}))
	return sg
}

// SetEntryPoint sets the entry point of the graph.
func (sg *StateGraph) SetEntryPoint(nodeID string) *StateGraph {
	sg.keep(sg.graph.setEntryPoint(nodeID))
	return sg
}

// SetInterruptBefore makes runs pause before entering any of nodeIDs.
func (sg *StateGraph) SetInterruptBefore(nodeIDs ...string) *StateGraph {
	for _, id := range nodeIDs {
		sg.graph.interruptBefore[id] = true
	}
	return sg
}

// Compile validates the graph and returns it.
func (sg *StateGraph) Compile() (*Graph, error) {
	if sg.err != nil {
		return nil, sg.err
	}
	if err := sg.graph.validate(); err != nil {
		return nil, err
	}
	return sg.graph, nil
}

// MustCompile compiles the graph or panics if invalid.
func (sg *StateGraph) MustCompile() *Graph {
	graph, err := sg.Compile()
	if err != nil {
		panic(err)
	}
	return graph
}

func (sg *StateGraph) keep(err error) {
	if sg.err == nil && err != nil {
		sg.err = err
	}
}
