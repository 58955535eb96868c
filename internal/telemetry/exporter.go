//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

// Signal names an OTLP signal for endpoint lookup.
type Signal string

// Signals exported by chatgraph.
const (
	SignalTraces  Signal = "TRACES"
	SignalMetrics Signal = "METRICS"
)

// Endpoint resolves the collector address for signal. The signal specific
// OTEL_EXPORTER_OTLP_<SIGNAL>_ENDPOINT wins over OTEL_EXPORTER_OTLP_ENDPOINT;
// without either the local collector port for protocol is used.
func Endpoint(signal Signal, protocol string) string {
	for _, key := range []string{
		"OTEL_EXPORTER_OTLP_" + string(signal) + "_ENDPOINT",
		"OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	if protocol == ProtocolHTTP {
		return "localhost:4318"
	}
	return "localhost:4317"
}

// NewResource describes the chatgraph process to the collector.
func NewResource(ctx context.Context) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNamespace(ServiceNamespace),
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}
