//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

package graph

// Route is the decision a router makes after a node completes: either go to
// a named node or stop the run.
type Route struct {
	to  string
	end bool
}

// Goto routes to the node with the given id.
func Goto(nodeID string) Route {
	return Route{to: nodeID}
}

// Terminal ends the run; the thread then awaits new input.
func Terminal() Route {
	return Route{end: true}
}

// IsTerminal reports whether r ends the run.
func (r Route) IsTerminal() bool {
	return r.end || r.to == End
}

// Node returns the destination, or End for terminal routes.
func (r Route) Node() string {
	if r.IsTerminal() {
		return End
	}
	return r.to
}

// String implements fmt.Stringer.
func (r Route) String() string {
	if r.IsTerminal() {
		return "End"
	}
	return "Goto(" + r.to + ")"
}

// RouterFunc picks the next node from the merged state. It must be pure.
type RouterFunc func(state State) Route

// ToolsRouter routes to toolsNode while the last assistant message has
// unanswered tool calls and ends the run otherwise.
func ToolsRouter(toolsNode string) RouterFunc {
	return func(state State) Route {
		if len(state.Messages) == 0 {
			return Terminal()
		}
		if len(state.PendingToolCalls()) > 0 {
			return Goto(toolsNode)
		}
		return Terminal()
	}
}

// EscalationRouter extends ToolsRouter: when the escalation flag is set the
// run goes to humanNode regardless of pending tool calls.
func EscalationRouter(toolsNode, humanNode string) RouterFunc {
	tools := ToolsRouter(toolsNode)
	return func(state State) Route {
		if len(state.Messages) == 0 {
			return Terminal()
		}
		if state.AskHuman {
			return Goto(humanNode)
		}
		return tools(state)
	}
}
