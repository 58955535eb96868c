//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

// Package escalate declares the tool a model calls to hand the conversation
// to a human expert. It is never executed; the graph routes to the human
// node instead.
package escalate

import (
	"reflect"

	"trpc.group/trpc-go/trpc-chatgraph-go/tool"
	"trpc.group/trpc-go/trpc-chatgraph-go/tool/function"
)

// ToolName is the name that marks an escalation request.
const ToolName = "RequestAssistance"

// Request is the argument payload of an escalation call.
type Request struct {
	Request string `json:"request" jsonschema:"description=The user's request relayed to the expert"`
}

type escalationTool struct {
	decl *tool.Declaration
}

// NewTool returns the declaration-only escalation tool.
func NewTool() tool.Tool {
	return &escalationTool{decl: &tool.Declaration{
		Name: ToolName,
		Description: "Escalate the conversation to an expert. Use this if you are unable " +
			"to assist directly or if the user requires support beyond your permissions. " +
			"To use this function, relay the user's 'request' so the expert can provide " +
			"the right guidance.",
		InputSchema: function.GenerateSchema(reflect.TypeOf(Request{})),
	}}
}

func (t *escalationTool) Declaration() *tool.Declaration {
	return t.decl
}
