//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

package metric

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestStartAndClean(t *testing.T) {
	orig := Meter
	defer func() { Meter = orig }()

	clean, err := Start(context.Background(), WithEndpoint("localhost:4317"))
	require.NoError(t, err)
	require.NotNil(t, clean)
	_ = clean() // no collector is running in tests
}

func TestGraphInstruments_Record(t *testing.T) {
	orig := Meter
	defer func() { Meter = orig }()

	reader := sdkmetric.NewManualReader()
	Meter = sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")

	inst, err := NewGraphInstruments()
	require.NoError(t, err)
	ctx := context.Background()
	inst.NodeExecutions.Add(ctx, 2, otelmetric.WithAttributes(attribute.String("node", "chatbot")))
	inst.Interrupts.Add(ctx, 1)
	inst.NodeDuration.Record(ctx, 12.5)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	names := map[string]bool{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names[m.Name] = true
	}
	assert.True(t, names[NameNodeExecutions])
	assert.True(t, names[NameInterrupts])
	assert.True(t, names[NameNodeDuration])
}
