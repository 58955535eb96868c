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
	"time"

	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-chatgraph-go/model"
)

// EventType classifies executor events.
type EventType string

// Event types emitted by the executor.
const (
	// EventTypeNodeComplete follows every persisted node step and carries
	// the full state after it.
	EventTypeNodeComplete EventType = "graph.node.complete"
	// EventTypeInterrupt is emitted when the run pauses before Next.
	EventTypeInterrupt EventType = "graph.interrupt"
	// EventTypeDone is emitted when the run reaches a terminal route.
	EventTypeDone EventType = "graph.done"
	// EventTypeError is the last event of a failed run.
	EventTypeError EventType = "graph.error"
)

// Event is one item of the stream returned by Executor.Execute.
type Event struct {
	ID           string          `json:"id"`
	Type         EventType       `json:"type"`
	InvocationID string          `json:"invocation_id"`
	ThreadID     string          `json:"thread_id"`
	NodeID       string          `json:"node_id,omitempty"`
	Step         int             `json:"step"`
	CheckpointID string          `json:"checkpoint_id,omitempty"`
	Status       Status          `json:"status"`
	Next         string          `json:"next,omitempty"`
	State        *State          `json:"values,omitempty"`
	NewMessages  []model.Message `json:"new_messages,omitempty"`
	Error        string          `json:"error,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`

	// Err is the failure behind an EventTypeError event.
	Err error `json:"-"`
}

func newEvent(typ EventType, inv *invocation) *Event {
	return &Event{
		ID:           uuid.New().String(),
		Type:         typ,
		InvocationID: inv.id,
		ThreadID:     inv.threadID,
		Timestamp:    time.Now().UTC(),
	}
}

func newNodeCompleteEvent(inv *invocation, ckpt *Checkpoint, newMessages []model.Message) *Event {
	e := newEvent(EventTypeNodeComplete, inv)
	e.NodeID = ckpt.NodeID
	e.Step = ckpt.Step
	e.CheckpointID = ckpt.ID
	e.Status = ckpt.Status
	e.Next = ckpt.Next
	state := ckpt.State.Clone()
	e.State = &state
	e.NewMessages = newMessages
	return e
}

func newStatusEvent(typ EventType, inv *invocation, ckpt *Checkpoint) *Event {
	e := newEvent(typ, inv)
	e.NodeID = ckpt.NodeID
	e.Step = ckpt.Step
	e.CheckpointID = ckpt.ID
	e.Status = ckpt.Status
	e.Next = ckpt.Next
	return e
}

func newErrorEvent(inv *invocation, err error) *Event {
	e := newEvent(EventTypeError, inv)
	e.Status = StatusFailed
	e.Err = err
	e.Error = err.Error()
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		e.NodeID = nodeErr.NodeID
		e.Step = nodeErr.Step
	}
	return e
}
