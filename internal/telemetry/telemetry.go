//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

// Package telemetry holds the shared names and helpers behind the public
// trace and metric packages.
package telemetry

import (
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// telemetry service constants.
const (
	ServiceName      = "chatgraph"
	ServiceVersion   = "v0.1.0"
	ServiceNamespace = "trpc-chatgraph-go"
	InstrumentName   = "trpc.chatgraph.go"

	SpanNameInvocation        = "invocation"
	SpanNameExecuteGraph      = "execute_graph"
	SpanNamePrefixExecuteNode = "execute_node"
	SpanNameRunModel          = "run_model"
	SpanNamePrefixExecuteTool = "execute_tool"
)

const (
	// ProtocolGRPC uses gRPC protocol for OTLP exporter.
	ProtocolGRPC string = "grpc"
	// ProtocolHTTP uses HTTP protocol for OTLP exporter.
	ProtocolHTTP string = "http"
)

// telemetry attributes constants.
var (
	KeyThreadID     = "trpc.go.chatgraph.thread_id"
	KeyInvocationID = "trpc.go.chatgraph.invocation_id"
	KeyNodeID       = "trpc.go.chatgraph.node_id"
	KeyNextNode     = "trpc.go.chatgraph.next_node"
	KeyStep         = "trpc.go.chatgraph.step"
	KeyStatus       = "trpc.go.chatgraph.status"
	KeyModelName    = "trpc.go.chatgraph.model_name"
	KeyToolName     = "trpc.go.chatgraph.tool_name"
	KeyToolID       = "trpc.go.chatgraph.tool_id"
	KeyError        = "trpc.go.chatgraph.error"
	KeyLLMRequest   = "trpc.go.chatgraph.llm_request"
	KeyLLMResponse  = "trpc.go.chatgraph.llm_response"
	KeyToolArgs     = "trpc.go.chatgraph.tool_args"
	KeyOutcome      = "outcome"
	KeyNode         = "node"
)

// NewExecuteNodeSpanName returns the span name for running nodeID.
func NewExecuteNodeSpanName(nodeID string) string {
	return SpanNamePrefixExecuteNode + " " + nodeID
}

// NewExecuteToolSpanName returns the span name for calling toolName.
func NewExecuteToolSpanName(toolName string) string {
	return SpanNamePrefixExecuteTool + " " + toolName
}

// TraceCallLLM records the request and response of one model call on span.
func TraceCallLLM(span trace.Span, modelName string, req, rsp any) {
	span.SetAttributes(
		attribute.String("gen_ai.system", InstrumentName),
		attribute.String("gen_ai.request.model", modelName),
		attribute.String(KeyModelName, modelName),
		attribute.String(KeyLLMRequest, marshalOrPlaceholder(req)),
		attribute.String(KeyLLMResponse, marshalOrPlaceholder(rsp)),
	)
}

// TraceToolCall records one tool invocation on span.
func TraceToolCall(span trace.Span, toolName, toolID string, args []byte) {
	span.SetAttributes(
		attribute.String("gen_ai.system", InstrumentName),
		attribute.String("gen_ai.operation.name", "tool.execute"),
		attribute.String(KeyToolName, toolName),
		attribute.String(KeyToolID, toolID),
		attribute.String(KeyToolArgs, string(args)),
	)
}

func marshalOrPlaceholder(v any) string {
	bts, err := json.Marshal(v)
	if err != nil {
		return "<not json serializable>"
	}
	return string(bts)
}

// NewGRPCConn creates a new gRPC connection to the OpenTelemetry Collector.
func NewGRPCConn(endpoint string) (*grpc.ClientConn, error) {
	// TLS is expected to be terminated by the collector sidecar.
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to collector: %w", err)
	}
	return conn, nil
}
