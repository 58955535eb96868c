//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

// Package runner is the entry point for conversations: it binds an
// executor to thread ids and turns user text into graph runs.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"trpc.group/trpc-go/trpc-chatgraph-go/graph"
	itelemetry "trpc.group/trpc-go/trpc-chatgraph-go/internal/telemetry"
	"trpc.group/trpc-go/trpc-chatgraph-go/log"
	"trpc.group/trpc-go/trpc-chatgraph-go/model"
	"trpc.group/trpc-go/trpc-chatgraph-go/telemetry/trace"
	"trpc.group/trpc-go/trpc-chatgraph-go/tool/escalate"
)

// DefaultThreadID is used when the caller gives no thread id.
const DefaultThreadID = "default"

var (
	// ErrEmptyMessage is returned for blank user input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNotAwaitingHuman is returned by Answer when the thread is not
	// paused in front of a human.
	ErrNotAwaitingHuman = errors.New("thread is not waiting for a human answer")
)

// Runner is the interface for running conversations.
type Runner interface {
	// Run appends text as a user message and runs the thread.
	Run(ctx context.Context, threadID, text string) (<-chan *graph.Event, error)
	// Answer replies to the pending escalation of a paused thread and
	// resumes it.
	Answer(ctx context.Context, threadID, text string) (<-chan *graph.Event, error)
	// Resume continues a paused or failed thread without new input.
	Resume(ctx context.Context, threadID string) (<-chan *graph.Event, error)
	// State returns the latest snapshot of the thread.
	State(ctx context.Context, threadID string) (*graph.Snapshot, error)
	// History returns up to limit snapshots, newest first.
	History(ctx context.Context, threadID string, limit int) ([]*graph.Snapshot, error)
	// Delete drops every checkpoint of the thread.
	Delete(ctx context.Context, threadID string) error
	// Close stops the underlying executor.
	Close() error
}

// Option is a function that configures a Runner.
type Option func(*Options)

// Options is the options for the Runner.
type Options struct {
	defaultThreadID string
	escalationTool  string
}

// WithDefaultThreadID sets the thread used for blank thread ids.
func WithDefaultThreadID(id string) Option {
	return func(opts *Options) {
		if id != "" {
			opts.defaultThreadID = id
		}
	}
}

// WithEscalationTool sets the tool name whose calls Answer replies to.
func WithEscalationTool(name string) Option {
	return func(opts *Options) {
		if name != "" {
			opts.escalationTool = name
		}
	}
}

type runner struct {
	executor *graph.Executor
	opts     Options
}

// NewRunner creates a Runner on top of executor.
func NewRunner(executor *graph.Executor, opts ...Option) Runner {
	options := Options{
		defaultThreadID: DefaultThreadID,
		escalationTool:  escalate.ToolName,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &runner{executor: executor, opts: options}
}

func (r *runner) thread(threadID string) string {
	if id := strings.TrimSpace(threadID); id != "" {
		return id
	}
	return r.opts.defaultThreadID
}

// Run runs one user turn.
func (r *runner) Run(ctx context.Context, threadID, text string) (<-chan *graph.Event, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	threadID = r.thread(threadID)
	ctx, span := trace.Tracer.Start(ctx, itelemetry.SpanNameInvocation)
	span.SetAttributes(attribute.String(itelemetry.KeyThreadID, threadID))
	events, err := r.executor.Execute(ctx, threadID, model.NewUserMessage(text))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}
	return relay(ctx, span, events), nil
}

// relay forwards events and ends span once the run's stream closes. Events
// are dropped after ctx is done so the run is never blocked on the relay.
func relay(ctx context.Context, span oteltrace.Span, events <-chan *graph.Event) <-chan *graph.Event {
	out := make(chan *graph.Event, cap(events))
	go func() {
		defer close(out)
		defer span.End()
		for evt := range events {
			if evt.Type == graph.EventTypeError {
				span.RecordError(evt.Err)
				span.SetStatus(codes.Error, evt.Error)
			}
			select {
			case out <- evt:
			case <-ctx.Done():
			}
		}
	}()
	return out
}

// Answer injects text as the tool result of the pending escalation call,
// then resumes. Other pending calls are left to the human node, which
// fills them with its placeholder.
func (r *runner) Answer(ctx context.Context, threadID, text string) (<-chan *graph.Event, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	threadID = r.thread(threadID)
	snap, err := r.executor.State(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if snap.Status != graph.StatusPausedAtInterrupt {
		return nil, fmt.Errorf("%w: status is %s", ErrNotAwaitingHuman, snap.Status)
	}
	var call *model.ToolCall
	for _, tc := range snap.State.PendingToolCalls() {
		if tc.Function.Name == r.opts.escalationTool {
			call = &tc
			break
		}
	}
	if call == nil {
		return nil, fmt.Errorf("%w: no pending %s call", ErrNotAwaitingHuman, r.opts.escalationTool)
	}
	answer := model.NewToolMessage(call.ID, call.Function.Name, text)
	if _, err := r.executor.UpdateState(ctx, threadID, graph.Update{
		Messages: []model.Message{answer},
	}); err != nil {
		return nil, fmt.Errorf("failed to record answer: %w", err)
	}
	log.Infof("thread %s: human answered escalation %s", threadID, call.ID)
	return r.executor.Resume(ctx, threadID)
}

// Resume continues the thread at its pending node. A thread with nothing
// pending is rejected before any run starts.
func (r *runner) Resume(ctx context.Context, threadID string) (<-chan *graph.Event, error) {
	threadID = r.thread(threadID)
	snap, err := r.executor.State(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if snap.Next == "" {
		return nil, fmt.Errorf("%w: thread %s is %s", graph.ErrNothingToResume, threadID, snap.Status)
	}
	return r.executor.Resume(ctx, threadID)
}

// State returns the latest snapshot of the thread.
func (r *runner) State(ctx context.Context, threadID string) (*graph.Snapshot, error) {
	return r.executor.State(ctx, r.thread(threadID))
}

// History returns the thread's snapshots, newest first.
func (r *runner) History(ctx context.Context, threadID string, limit int) ([]*graph.Snapshot, error) {
	return r.executor.History(ctx, r.thread(threadID), limit)
}

// Delete removes the thread.
func (r *runner) Delete(ctx context.Context, threadID string) error {
	return r.executor.DeleteThread(ctx, r.thread(threadID))
}

// Close closes the executor.
func (r *runner) Close() error {
	return r.executor.Close()
}
