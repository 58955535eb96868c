//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

// Package function wraps plain Go functions as callable tools.
package function

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"

	"trpc.group/trpc-go/trpc-chatgraph-go/tool"
)

// FunctionTool implements the CallableTool interface for executing functions with arguments.
// The input schema is reflected from I.
type FunctionTool[I, O any] struct {
	name         string
	description  string
	inputSchema  *tool.Schema
	outputSchema *tool.Schema
	fn           func(context.Context, I) (O, error)
}

// Option is a function that configures a FunctionTool.
type Option func(*functionToolOptions)

type functionToolOptions struct {
	name        string
	description string
}

// WithName sets the name of the function tool.
func WithName(name string) Option {
	return func(opts *functionToolOptions) {
		opts.name = name
	}
}

// WithDescription sets the description of the function tool.
func WithDescription(description string) Option {
	return func(opts *functionToolOptions) {
		opts.description = description
	}
}

// NewFunctionTool creates a FunctionTool around fn.
func NewFunctionTool[I, O any](fn func(context.Context, I) (O, error), opts ...Option) *FunctionTool[I, O] {
	options := &functionToolOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return &FunctionTool[I, O]{
		name:         options.name,
		description:  options.description,
		fn:           fn,
		inputSchema:  GenerateSchema(reflect.TypeOf((*I)(nil)).Elem()),
		outputSchema: GenerateSchema(reflect.TypeOf((*O)(nil)).Elem()),
	}
}

// Call unmarshals jsonArgs into I and runs the wrapped function.
func (ft *FunctionTool[I, O]) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	var input I
	if len(jsonArgs) > 0 {
		if err := json.Unmarshal(jsonArgs, &input); err != nil {
			return nil, fmt.Errorf("%s: invalid arguments: %w", ft.name, err)
		}
	}
	return ft.fn(ctx, input)
}

// Declaration returns the tool's declaration information.
func (ft *FunctionTool[I, O]) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name:         ft.name,
		Description:  ft.description,
		InputSchema:  ft.inputSchema,
		OutputSchema: ft.outputSchema,
	}
}

func newReflector(t reflect.Type) *jsonschema.Reflector {
	// Only structs have a definition to expand; other kinds are inlined.
	return &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            t.Kind() == reflect.Struct,
		AllowAdditionalProperties: false,
	}
}

// GenerateSchema reflects t into a tool.Schema. Struct field docs come from
// `jsonschema` tags, for example `jsonschema:"description=The query"`.
func GenerateSchema(t reflect.Type) *tool.Schema {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Interface {
		return &tool.Schema{Type: "object"}
	}
	raw, err := json.Marshal(newReflector(t).ReflectFromType(t))
	if err != nil {
		return &tool.Schema{Type: "object"}
	}
	var s tool.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return &tool.Schema{Type: "object"}
	}
	if s.Type == "" {
		s.Type = "object"
	}
	return &s
}
