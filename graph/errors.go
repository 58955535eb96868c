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
	"errors"
	"fmt"
)

// Errors.
var (
	// ErrProtocolViolation reports a tool result that does not answer an
	// unanswered call of the immediately preceding assistant message.
	ErrProtocolViolation = errors.New("message protocol violation")
	// ErrNoPendingToolCalls is returned by the tools node when the last
	// message carries no unanswered tool calls.
	ErrNoPendingToolCalls = errors.New("no pending tool calls")
	// ErrUnknownTool is returned when a tool call names an unregistered tool.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrThreadIDRequired is returned when a thread id is empty.
	ErrThreadIDRequired = errors.New("thread_id is required")
	// ErrCheckpointConflict is returned by savers when a checkpoint does not
	// advance the thread's step.
	ErrCheckpointConflict = errors.New("checkpoint step does not advance thread")
	// ErrNodeNotFound is returned when routing names a node that does not exist.
	ErrNodeNotFound = errors.New("node not found")
	// ErrMaxStepsExceeded is returned when a run executes more nodes than allowed.
	ErrMaxStepsExceeded = errors.New("maximum execution steps exceeded")
	// ErrExecutorClosed is returned after Close.
	ErrExecutorClosed = errors.New("executor closed")
	// ErrNothingToResume is returned when a run without input finds no
	// pending node to re-enter.
	ErrNothingToResume = errors.New("nothing to resume")
)

// NodeError wraps the failure of one node execution.
type NodeError struct {
	NodeID string
	Step   int
	Err    error
}

// Error implements error.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s failed at step %d: %v", e.NodeID, e.Step, e.Err)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *NodeError) Unwrap() error {
	return e.Err
}
