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
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	itelemetry "trpc.group/trpc-go/trpc-chatgraph-go/internal/telemetry"
	"trpc.group/trpc-go/trpc-chatgraph-go/log"
	"trpc.group/trpc-go/trpc-chatgraph-go/model"
	"trpc.group/trpc-go/trpc-chatgraph-go/telemetry/metric"
	"trpc.group/trpc-go/trpc-chatgraph-go/telemetry/trace"
)

const (
	defaultChannelBufferSize    = 256
	defaultMaxSteps             = 25
	defaultMaxConcurrentThreads = 64
)

// Executor drives a compiled graph for many independent threads. Runs of
// one thread are serialized; runs of different threads execute
// concurrently on a bounded worker pool.
type Executor struct {
	graph             *Graph
	saver             CheckpointSaver
	channelBufferSize int
	maxSteps          int
	pool              *ants.Pool
	locks             *threadLocks
	instruments       *metric.GraphInstruments
	closed            atomic.Bool
}

// ExecutorOption is a function that configures an Executor.
type ExecutorOption func(*ExecutorOptions)

// ExecutorOptions contains configuration options for creating an Executor.
type ExecutorOptions struct {
	// ChannelBufferSize is the buffer size for event channels (default: 256).
	ChannelBufferSize int
	// MaxSteps is the maximum number of nodes one run may execute (default: 25).
	MaxSteps int
	// MaxConcurrentThreads bounds the runs in flight (default: 64).
	MaxConcurrentThreads int
	// CheckpointSaver stores thread checkpoints. Required.
	CheckpointSaver CheckpointSaver
}

// WithChannelBufferSize sets the buffer size for event channels.
func WithChannelBufferSize(size int) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.ChannelBufferSize = size
	}
}

// WithMaxSteps sets the maximum number of steps for graph execution.
func WithMaxSteps(maxSteps int) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.MaxSteps = maxSteps
	}
}

// WithMaxConcurrentThreads sets the size of the worker pool.
func WithMaxConcurrentThreads(n int) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.MaxConcurrentThreads = n
	}
}

// WithCheckpointSaver sets the checkpoint saver.
func WithCheckpointSaver(saver CheckpointSaver) ExecutorOption {
	return func(opts *ExecutorOptions) {
		opts.CheckpointSaver = saver
	}
}

// NewExecutor creates a new graph executor.
func NewExecutor(graph *Graph, opts ...ExecutorOption) (*Executor, error) {
	if graph == nil {
		return nil, errors.New("graph is nil")
	}
	if err := graph.validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	options := ExecutorOptions{
		ChannelBufferSize:    defaultChannelBufferSize,
		MaxSteps:             defaultMaxSteps,
		MaxConcurrentThreads: defaultMaxConcurrentThreads,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.CheckpointSaver == nil {
		return nil, errors.New("checkpoint saver is required")
	}
	if options.MaxSteps <= 0 {
		options.MaxSteps = defaultMaxSteps
	}
	if options.ChannelBufferSize < 0 {
		options.ChannelBufferSize = defaultChannelBufferSize
	}
	if options.MaxConcurrentThreads <= 0 {
		options.MaxConcurrentThreads = defaultMaxConcurrentThreads
	}
	pool, err := ants.NewPool(options.MaxConcurrentThreads)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	instruments, err := metric.NewGraphInstruments()
	if err != nil {
		pool.Release()
		return nil, fmt.Errorf("failed to create graph instruments: %w", err)
	}
	return &Executor{
		graph:             graph,
		saver:             options.CheckpointSaver,
		channelBufferSize: options.ChannelBufferSize,
		maxSteps:          options.MaxSteps,
		pool:              pool,
		locks:             newThreadLocks(),
		instruments:       instruments,
	}, nil
}

// Graph returns the executed graph.
func (e *Executor) Graph() *Graph {
	return e.graph
}

// invocation carries one run.
type invocation struct {
	id       string
	threadID string
	input    []model.Message
	events   chan<- *Event
}

// Execute runs one turn of threadID. input is appended to the thread
// before the run; without input the thread resumes at its pending node.
// The returned channel yields one EventTypeNodeComplete per persisted step
// and is closed after the final interrupt, done or error event.
func (e *Executor) Execute(ctx context.Context, threadID string, input ...model.Message) (<-chan *Event, error) {
	if threadID == "" {
		return nil, ErrThreadIDRequired
	}
	if e.closed.Load() {
		return nil, ErrExecutorClosed
	}
	eventChan := make(chan *Event, e.channelBufferSize)
	inv := &invocation{
		id:       uuid.New().String(),
		threadID: threadID,
		events:   eventChan,
	}
	for _, m := range input {
		inv.input = append(inv.input, m.Clone())
	}
	err := e.pool.Submit(func() {
		defer close(eventChan)
		e.run(ctx, inv)
	})
	if err != nil {
		if errors.Is(err, ants.ErrPoolClosed) {
			return nil, ErrExecutorClosed
		}
		return nil, fmt.Errorf("failed to schedule run: %w", err)
	}
	return eventChan, nil
}

// Resume continues threadID at its pending node without new input.
func (e *Executor) Resume(ctx context.Context, threadID string) (<-chan *Event, error) {
	return e.Execute(ctx, threadID)
}

func (e *Executor) run(ctx context.Context, inv *invocation) {
	ctx, span := trace.Tracer.Start(ctx, itelemetry.SpanNameExecuteGraph)
	defer span.End()
	span.SetAttributes(
		attribute.String(itelemetry.KeyThreadID, inv.threadID),
		attribute.String(itelemetry.KeyInvocationID, inv.id),
	)

	err := e.withThread(ctx, inv.threadID, func() error {
		err := e.executeGraph(ctx, inv)
		if err != nil {
			e.markFailed(context.WithoutCancel(ctx), inv.threadID, err)
		}
		return err
	})
	if err == nil {
		return
	}
	recordSpanError(span, err)
	log.Errorf("graph run %s of thread %s failed: %v", inv.id, inv.threadID, err)
	select {
	case inv.events <- newErrorEvent(inv, err):
	case <-ctx.Done():
	}
}

// withThread runs fn while holding the thread in this process and, when
// the saver supports it, across processes.
func (e *Executor) withThread(ctx context.Context, threadID string, fn func() error) error {
	unlock, err := e.locks.lock(ctx, threadID)
	if err != nil {
		return err
	}
	defer unlock()
	if locker, ok := e.saver.(ThreadLocker); ok {
		unlockShared, err := locker.LockThread(ctx, threadID)
		if err != nil {
			return fmt.Errorf("failed to lock thread %s: %w", threadID, err)
		}
		defer unlockShared()
	}
	return fn()
}

// executeGraph loads the thread, appends the input and runs the step loop.
// Input resumes at the pending node only when the thread is paused before
// an interrupt; otherwise it enters at the entry point.
func (e *Executor) executeGraph(ctx context.Context, inv *invocation) error {
	latest, err := e.saver.Latest(ctx, inv.threadID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	var (
		state    State
		step     = -1
		parentID string
		status   Status
		next     string
	)
	if latest != nil {
		state = latest.State.Clone()
		step = latest.Step
		parentID = latest.ID
		status = latest.Status
		next = latest.Next
	}
	input := inv.input
	if len(input) == 0 {
		if next == "" {
			return ErrNothingToResume
		}
		return e.loop(ctx, inv, next, state, step, parentID, nil)
	}

	start := e.graph.EntryPoint()
	var deferred []model.Message
	if status == StatusPausedAtInterrupt && next != "" {
		start = next
		// While calls are pending at the interrupt only tool results may be
		// appended; anything else waits until the resumed node has answered
		// the remaining calls.
		if len(state.PendingToolCalls()) > 0 {
			var results []model.Message
			for _, m := range input {
				if m.Role == model.RoleTool {
					results = append(results, m)
				} else {
					deferred = append(deferred, m)
				}
			}
			input = results
		}
	} else {
		input = closeAbandonedCalls(state, input)
	}

	if len(input) > 0 {
		merged, err := state.Apply(Update{Messages: input})
		if err != nil {
			return err
		}
		step++
		ckpt := NewCheckpoint(inv.threadID, step, merged)
		ckpt.ParentID = parentID
		ckpt.Source = CheckpointSourceInput
		ckpt.Status = StatusRunning
		ckpt.Next = start
		if _, err := e.saver.Put(ctx, ckpt); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
		state = merged
		parentID = ckpt.ID
	}
	return e.loop(ctx, inv, start, state, step, parentID, deferred)
}

// closeAbandonedCalls answers the calls a failed turn left pending, so that
// a new turn starting at the entry point keeps every call answered. Tool
// results already in input are kept and placed first.
func closeAbandonedCalls(state State, input []model.Message) []model.Message {
	pending := state.PendingToolCalls()
	if len(pending) == 0 {
		return input
	}
	answered := make(map[string]bool, len(input))
	var results, rest []model.Message
	for _, m := range input {
		if m.Role == model.RoleTool {
			results = append(results, m)
			answered[m.ToolID] = true
		} else {
			rest = append(rest, m)
		}
	}
	for _, tc := range pending {
		if !answered[tc.ID] {
			results = append(results, model.NewToolMessage(tc.ID, tc.Function.Name, AbandonedToolResult))
		}
	}
	return append(results, rest...)
}

// markFailed records the failure of an in-flight turn as a checkpoint that
// repeats the last good state with StatusFailed. Next is kept so Resume
// retries the node that failed.
func (e *Executor) markFailed(ctx context.Context, threadID string, cause error) {
	latest, err := e.saver.Latest(ctx, threadID)
	if err != nil {
		log.Warnf("thread %s: failed to load checkpoint after failure: %v", threadID, err)
		return
	}
	if latest == nil || latest.Status != StatusRunning {
		return
	}
	ckpt := NewCheckpoint(threadID, latest.Step+1, latest.State)
	ckpt.ParentID = latest.ID
	ckpt.Source = CheckpointSourceFailure
	ckpt.Status = StatusFailed
	ckpt.Next = latest.Next
	var nodeErr *NodeError
	if errors.As(cause, &nodeErr) {
		ckpt.NodeID = nodeErr.NodeID
	}
	if _, err := e.saver.Put(ctx, ckpt); err != nil {
		log.Warnf("thread %s: failed to record failure: %v", threadID, err)
	}
}

func (e *Executor) loop(
	ctx context.Context,
	inv *invocation,
	current string,
	state State,
	step int,
	parentID string,
	deferred []model.Message,
) error {
	for executed := 0; ; executed++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if executed >= e.maxSteps {
			return fmt.Errorf("%w: limit %d", ErrMaxStepsExceeded, e.maxSteps)
		}
		node, ok := e.graph.Node(current)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, current)
		}
		step++
		log.Debugf("thread %s step %d: executing node %s", inv.threadID, step, current)

		update, err := e.executeNode(ctx, inv, node, state, step)
		if err != nil {
			return &NodeError{NodeID: current, Step: step, Err: err}
		}
		newMessages := update.Messages
		merged, err := state.Apply(update)
		if err != nil {
			return &NodeError{NodeID: current, Step: step, Err: err}
		}
		if len(deferred) > 0 {
			if merged, err = merged.Apply(Update{Messages: deferred}); err != nil {
				return &NodeError{NodeID: current, Step: step, Err: err}
			}
			newMessages = append(newMessages, deferred...)
			deferred = nil
		}
		route, err := e.graph.route(current, merged)
		if err != nil {
			return &NodeError{NodeID: current, Step: step, Err: err}
		}

		ckpt := NewCheckpoint(inv.threadID, step, merged)
		ckpt.ParentID = parentID
		ckpt.Source = CheckpointSourceLoop
		ckpt.NodeID = current
		switch {
		case route.IsTerminal():
			ckpt.Status = StatusAwaitingInput
		case e.graph.InterruptBefore(route.Node()):
			ckpt.Status = StatusPausedAtInterrupt
			ckpt.Next = route.Node()
		default:
			ckpt.Status = StatusRunning
			ckpt.Next = route.Node()
		}
		if _, err := e.saver.Put(ctx, ckpt); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
		state = merged
		parentID = ckpt.ID
		log.Debugf("thread %s step %d: %s -> %s", inv.threadID, step, current, route)

		if err := e.emit(ctx, inv, newNodeCompleteEvent(inv, ckpt, cloneMessages(newMessages))); err != nil {
			return err
		}
		switch ckpt.Status {
		case StatusPausedAtInterrupt:
			e.instruments.Interrupts.Add(ctx, 1, otelmetric.WithAttributes(
				attribute.String(itelemetry.KeyNode, ckpt.Next),
			))
			log.Infof("thread %s paused before node %s", inv.threadID, ckpt.Next)
			return e.emit(ctx, inv, newStatusEvent(EventTypeInterrupt, inv, ckpt))
		case StatusAwaitingInput:
			return e.emit(ctx, inv, newStatusEvent(EventTypeDone, inv, ckpt))
		}
		current = ckpt.Next
	}
}

func (e *Executor) executeNode(ctx context.Context, inv *invocation, node *Node, state State, step int) (Update, error) {
	ctx, span := trace.Tracer.Start(ctx, itelemetry.NewExecuteNodeSpanName(node.ID))
	defer span.End()
	span.SetAttributes(
		attribute.String(itelemetry.KeyNodeID, node.ID),
		attribute.String(itelemetry.KeyThreadID, inv.threadID),
		attribute.String(itelemetry.KeyInvocationID, inv.id),
		attribute.Int(itelemetry.KeyStep, step),
	)

	begin := time.Now()
	update, err := node.Function(ctx, state.Clone())
	outcome := "ok"
	if err != nil {
		outcome = "error"
		recordSpanError(span, err)
	}
	attrs := otelmetric.WithAttributes(
		attribute.String(itelemetry.KeyNode, node.ID),
		attribute.String(itelemetry.KeyOutcome, outcome),
	)
	e.instruments.NodeExecutions.Add(ctx, 1, attrs)
	e.instruments.NodeDuration.Record(ctx, float64(time.Since(begin))/float64(time.Millisecond), attrs)
	return update, err
}

func (e *Executor) emit(ctx context.Context, inv *invocation, evt *Event) error {
	select {
	case inv.events <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateState merges update into the latest state of threadID without
// running any node. The new checkpoint keeps the thread's status and next
// node, so a paused thread stays paused.
func (e *Executor) UpdateState(ctx context.Context, threadID string, update Update) (CheckpointRef, error) {
	if threadID == "" {
		return CheckpointRef{}, ErrThreadIDRequired
	}
	if e.closed.Load() {
		return CheckpointRef{}, ErrExecutorClosed
	}
	var ref CheckpointRef
	err := e.withThread(ctx, threadID, func() error {
		latest, err := e.saver.Latest(ctx, threadID)
		if err != nil {
			return fmt.Errorf("failed to load checkpoint: %w", err)
		}
		var (
			state State
			step  int
		)
		ckptStatus, next, parentID := StatusAwaitingInput, "", ""
		if latest != nil {
			state = latest.State
			step = latest.Step + 1
			ckptStatus, next, parentID = latest.Status, latest.Next, latest.ID
		}
		merged, err := state.Apply(update)
		if err != nil {
			return err
		}
		ckpt := NewCheckpoint(threadID, step, merged)
		ckpt.ParentID = parentID
		ckpt.Source = CheckpointSourceUpdate
		ckpt.Status = ckptStatus
		ckpt.Next = next
		ref, err = e.saver.Put(ctx, ckpt)
		if err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
		return nil
	})
	return ref, err
}

// State returns the latest snapshot of threadID. A thread without
// checkpoints is reported as StatusIdle.
func (e *Executor) State(ctx context.Context, threadID string) (*Snapshot, error) {
	if threadID == "" {
		return nil, ErrThreadIDRequired
	}
	latest, err := e.saver.Latest(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if latest == nil {
		return &Snapshot{ThreadID: threadID, Step: -1, Status: StatusIdle}, nil
	}
	snap := snapshotOf(latest)
	if snap.Status == StatusRunning {
		live, err := e.runLive(ctx, threadID)
		if err != nil {
			return nil, err
		}
		if !live {
			snap.Status = StatusFailed
		}
	}
	return snap, nil
}

// runLive reports whether a run holds threadID in this process or, for
// savers shared between processes, anywhere.
func (e *Executor) runLive(ctx context.Context, threadID string) (bool, error) {
	if e.locks.held(threadID) {
		return true, nil
	}
	locker, ok := e.saver.(ThreadLocker)
	if !ok {
		return false, nil
	}
	locked, err := locker.ThreadLocked(ctx, threadID)
	if err != nil {
		return false, fmt.Errorf("failed to check thread lock: %w", err)
	}
	return locked, nil
}

// History returns up to limit snapshots of threadID, newest first, with
// statuses as persisted.
func (e *Executor) History(ctx context.Context, threadID string, limit int) ([]*Snapshot, error) {
	if threadID == "" {
		return nil, ErrThreadIDRequired
	}
	ckpts, err := e.saver.List(ctx, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	out := make([]*Snapshot, 0, len(ckpts))
	for _, c := range ckpts {
		out = append(out, snapshotOf(c))
	}
	return out, nil
}

// DeleteThread removes every checkpoint of threadID once no run holds it.
func (e *Executor) DeleteThread(ctx context.Context, threadID string) error {
	if threadID == "" {
		return ErrThreadIDRequired
	}
	return e.withThread(ctx, threadID, func() error {
		return e.saver.DeleteThread(ctx, threadID)
	})
}

// Close stops accepting runs and waits for the pool to drain. The saver is
// owned by the caller and stays open.
func (e *Executor) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	return e.pool.ReleaseTimeout(30 * time.Second)
}

func cloneMessages(msgs []model.Message) []model.Message {
	if msgs == nil {
		return nil
	}
	out := make([]model.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
