//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

// Package metric provides the OpenTelemetry meter and the graph instruments.
// Meter is a no-op until Start installs an OTLP exporter.
package metric

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	noopm "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	itelemetry "trpc.group/trpc-go/trpc-chatgraph-go/internal/telemetry"
)

// Instrument names.
const (
	NameNodeExecutions = "chatgraph.node.executions"
	NameInterrupts     = "chatgraph.interrupts"
	NameNodeDuration   = "chatgraph.node.duration"
)

var (
	// Meter is the global OpenTelemetry meter for trpc-chatgraph-go.
	Meter metric.Meter = noopm.Meter{}
)

// Start installs an OTLP metric exporter and replaces Meter.
func Start(ctx context.Context, opts ...Option) (clean func() error, err error) {
	options := &options{protocol: itelemetry.ProtocolGRPC}
	for _, opt := range opts {
		opt(options)
	}
	if options.metricsEndpoint == "" {
		options.metricsEndpoint = itelemetry.Endpoint(itelemetry.SignalMetrics, options.protocol)
	}
	res, err := itelemetry.NewResource(ctx)
	if err != nil {
		return nil, err
	}
	exporter, err := newExporter(ctx, options)
	if err != nil {
		return nil, err
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	Meter = otel.Meter(itelemetry.InstrumentName)
	return func() error {
		if err := meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown MeterProvider: %w", err)
		}
		return nil
	}, nil
}

func newExporter(ctx context.Context, opts *options) (sdkmetric.Exporter, error) {
	if opts.protocol == itelemetry.ProtocolHTTP {
		exp, err := otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(opts.metricsEndpoint),
			otlpmetrichttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP metrics exporter: %w", err)
		}
		return exp, nil
	}
	conn, err := itelemetry.NewGRPCConn(opts.metricsEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics connection: %w", err)
	}
	exp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
	}
	return exp, nil
}

// Option is a function that configures meter options.
type Option func(*options)

type options struct {
	metricsEndpoint string
	protocol        string
}

// WithEndpoint sets the metrics endpoint (host and port) the exporter connects to.
func WithEndpoint(endpoint string) Option {
	return func(opts *options) {
		opts.metricsEndpoint = endpoint
	}
}

// WithProtocol selects "grpc" (default) or "http" export.
func WithProtocol(protocol string) Option {
	return func(opts *options) {
		opts.protocol = protocol
	}
}

// GraphInstruments are the instruments the graph executor records into.
type GraphInstruments struct {
	NodeExecutions metric.Int64Counter
	Interrupts     metric.Int64Counter
	NodeDuration   metric.Float64Histogram
}

// NewGraphInstruments creates the graph instruments on the current Meter.
func NewGraphInstruments() (*GraphInstruments, error) {
	executions, err := Meter.Int64Counter(NameNodeExecutions,
		metric.WithDescription("Number of graph node executions"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", NameNodeExecutions, err)
	}
	interrupts, err := Meter.Int64Counter(NameInterrupts,
		metric.WithDescription("Number of runs paused before an interrupt node"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", NameInterrupts, err)
	}
	duration, err := Meter.Float64Histogram(NameNodeDuration,
		metric.WithDescription("Graph node execution time"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", NameNodeDuration, err)
	}
	return &GraphInstruments{
		NodeExecutions: executions,
		Interrupts:     interrupts,
		NodeDuration:   duration,
	}, nil
}
