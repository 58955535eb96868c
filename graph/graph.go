//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

// Package graph provides the stateful conversation graph: nodes exchanging a
// shared State, routers choosing the next node, checkpoints after every
// node and pauses before designated interrupt nodes.
package graph

import (
	"context"
	"fmt"
)

// Special node identifiers for graph routing.
const (
	// Start represents the virtual start node for routing.
	Start = "__start__"
	// End represents the virtual end node for routing.
	End = "__end__"
)

// NodeFunc is the unit of work behind a node. It reads the current state
// and returns a partial update; the state it receives is a private copy.
type NodeFunc func(ctx context.Context, state State) (Update, error)

// NodeType classifies nodes for visualization and telemetry.
type NodeType string

// Node types.
const (
	NodeTypeFunction NodeType = "function"
	NodeTypeAgent    NodeType = "agent"
	NodeTypeTool     NodeType = "tool"
	NodeTypeHuman    NodeType = "human"
)

// String returns the string representation of the node type.
func (nt NodeType) String() string {
	return string(nt)
}

// Node represents a node in the graph.
type Node struct {
	ID          string
	Name        string
	Description string
	Type        NodeType
	Function    NodeFunc
}

// Edge is a static transition that always fires.
type Edge struct {
	From string
	To   string
}

// ConditionalEdge routes from a node through a RouterFunc. Destinations
// lists the nodes the router may pick; it is used for validation and DOT
// export.
type ConditionalEdge struct {
	From         string
	Router       RouterFunc
	Destinations []string
}

// Graph is the compiled, read-only graph produced by StateGraph.Compile.
type Graph struct {
	nodes            map[string]*Node
	order            []string
	edges            map[string]*Edge
	conditionalEdges map[string]*ConditionalEdge
	entryPoint       string
	interruptBefore  map[string]bool
}

func newGraph() *Graph {
	return &Graph{
		nodes:            make(map[string]*Node),
		edges:            make(map[string]*Edge),
		conditionalEdges: make(map[string]*ConditionalEdge),
		interruptBefore:  make(map[string]bool),
	}
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edge returns the static edge leaving nodeID.
func (g *Graph) Edge(nodeID string) (*Edge, bool) {
	e, ok := g.edges[nodeID]
	return e, ok
}

// ConditionalEdge returns the conditional edge leaving nodeID.
func (g *Graph) ConditionalEdge(nodeID string) (*ConditionalEdge, bool) {
	ce, ok := g.conditionalEdges[nodeID]
	return ce, ok
}

// EntryPoint returns the entry point node ID.
func (g *Graph) EntryPoint() string {
	return g.entryPoint
}

// InterruptBefore reports whether runs pause before entering nodeID.
func (g *Graph) InterruptBefore(nodeID string) bool {
	return g.interruptBefore[nodeID]
}

// InterruptNodes returns the interrupt-before nodes in insertion order.
func (g *Graph) InterruptNodes() []string {
	var out []string
	for _, id := range g.order {
		if g.interruptBefore[id] {
			out = append(out, id)
		}
	}
	return out
}

// route evaluates the transition out of from against the merged state.
func (g *Graph) route(from string, state State) (Route, error) {
	if ce, ok := g.conditionalEdges[from]; ok {
		r := ce.Router(state)
		if r.IsTerminal() {
			return r, nil
		}
		if _, ok := g.nodes[r.Node()]; !ok {
			return Route{}, fmt.Errorf("%w: router of %s chose %q", ErrNodeNotFound, from, r.Node())
		}
		return r, nil
	}
	if e, ok := g.edges[from]; ok {
		if e.To == End {
			return Terminal(), nil
		}
		return Goto(e.To), nil
	}
	return Terminal(), nil
}

func (g *Graph) validate() error {
	if g.entryPoint == "" {
		return fmt.Errorf("graph must have an entry point")
	}
	if _, exists := g.nodes[g.entryPoint]; !exists {
		return fmt.Errorf("entry point node %s does not exist", g.entryPoint)
	}
	for from, ce := range g.conditionalEdges {
		if _, dup := g.edges[from]; dup {
			return fmt.Errorf("node %s has both a static and a conditional edge", from)
		}
		for _, to := range ce.Destinations {
			if to == End {
				continue
			}
			if _, ok := g.nodes[to]; !ok {
				return fmt.Errorf("node %s declares destination %s which does not exist", from, to)
			}
		}
	}
	for id := range g.interruptBefore {
		if _, ok := g.nodes[id]; !ok {
			return fmt.Errorf("interrupt node %s does not exist", id)
		}
	}
	return nil
}

func (g *Graph) addNode(node *Node) error {
	if node.ID == "" {
		return fmt.Errorf("node ID cannot be empty")
	}
	if node.ID == Start || node.ID == End {
		return fmt.Errorf("node ID %s is reserved", node.ID)
	}
	if node.Function == nil {
		return fmt.Errorf("node %s has no function", node.ID)
	}
	if _, exists := g.nodes[node.ID]; exists {
		return fmt.Errorf("node with ID %s already exists", node.ID)
	}
	g.nodes[node.ID] = node
	g.order = append(g.order, node.ID)
	return nil
}

func (g *Graph) addEdge(edge *Edge) error {
	if edge.From == "" || edge.To == "" {
		return fmt.Errorf("edge from and to cannot be empty")
	}
	if edge.From == Start {
		return g.setEntryPoint(edge.To)
	}
	if _, exists := g.nodes[edge.From]; !exists {
		return fmt.Errorf("source node %s does not exist", edge.From)
	}
	if edge.To != End {
		if _, exists := g.nodes[edge.To]; !exists {
			return fmt.Errorf("target node %s does not exist", edge.To)
		}
	}
	if _, exists := g.edges[edge.From]; exists {
		return fmt.Errorf("node %s already has an outgoing edge", edge.From)
	}
	g.edges[edge.From] = edge
	return nil
}

func (g *Graph) addConditionalEdge(condEdge *ConditionalEdge) error {
	if condEdge.From == "" {
		return fmt.Errorf("conditional edge from cannot be empty")
	}
	if condEdge.Router == nil {
		return fmt.Errorf("conditional edge from %s has no router", condEdge.From)
	}
	if _, exists := g.nodes[condEdge.From]; !exists {
		return fmt.Errorf("source node %s does not exist", condEdge.From)
	}
	if _, exists := g.conditionalEdges[condEdge.From]; exists {
		return fmt.Errorf("node %s already has a conditional edge", condEdge.From)
	}
	g.conditionalEdges[condEdge.From] = condEdge
	return nil
}

func (g *Graph) setEntryPoint(nodeID string) error {
	if _, exists := g.nodes[nodeID]; !exists {
		return fmt.Errorf("entry point node %s does not exist", nodeID)
	}
	g.entryPoint = nodeID
	return nil
}
