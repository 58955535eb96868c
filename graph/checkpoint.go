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
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// CheckpointVersion is the current version of the checkpoint format.
	CheckpointVersion = 1

	// CheckpointSourceInput indicates the checkpoint was created from input.
	CheckpointSourceInput = "input"
	// CheckpointSourceLoop indicates the checkpoint was created from inside the loop.
	CheckpointSourceLoop = "loop"
	// CheckpointSourceUpdate indicates the checkpoint was created from manual update.
	CheckpointSourceUpdate = "update"
	// CheckpointSourceFailure marks the failure of an in-flight turn.
	CheckpointSourceFailure = "failure"
)

// Status is the execution status of a thread, persisted with every
// checkpoint.
type Status string

// Thread statuses.
const (
	// StatusIdle is reported for a thread that has no checkpoint yet.
	StatusIdle Status = "IDLE"
	// StatusRunning means a turn is in flight. Persisted RUNNING with no
	// live run behind it, as left by a crashed process, is reported as
	// StatusFailed.
	StatusRunning Status = "RUNNING"
	// StatusPausedAtInterrupt means the run stopped before an interrupt
	// node; Next names it.
	StatusPausedAtInterrupt Status = "PAUSED_AT_INTERRUPT"
	// StatusAwaitingInput means the last turn reached a terminal route.
	StatusAwaitingInput Status = "AWAITING_INPUT"
	// StatusFailed means the last turn stopped on an error.
	StatusFailed Status = "FAILED"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Checkpoint is an immutable snapshot of a thread's State at a step.
type Checkpoint struct {
	// Version is the version of the checkpoint format.
	Version int `json:"v"`
	// ID is the unique identifier for this checkpoint.
	ID string `json:"id"`
	// ThreadID is the thread this checkpoint belongs to.
	ThreadID string `json:"thread_id"`
	// Step strictly increases within a thread.
	Step int `json:"step"`
	// ParentID is the ID of the previous checkpoint of the thread.
	ParentID string `json:"parent_id,omitempty"`
	// Source indicates how the checkpoint was created.
	Source string `json:"source"`
	// NodeID is the node whose update produced this checkpoint, if any.
	NodeID string `json:"node_id,omitempty"`
	// Status is the thread status at checkpoint time.
	Status Status `json:"status"`
	// Next is the node the thread continues at; empty when terminal.
	Next string `json:"next,omitempty"`
	// State is the full thread state.
	State State `json:"state"`
	// Timestamp is when the checkpoint was created.
	Timestamp time.Time `json:"ts"`
}

// NewCheckpoint creates a checkpoint with a fresh ID.
func NewCheckpoint(threadID string, step int, state State) *Checkpoint {
	return &Checkpoint{
		Version:   CheckpointVersion,
		ID:        uuid.New().String(),
		ThreadID:  threadID,
		Step:      step,
		State:     state.Clone(),
		Timestamp: time.Now().UTC(),
	}
}

// Copy returns a deep copy of the checkpoint.
func (c *Checkpoint) Copy() *Checkpoint {
	if c == nil {
		return nil
	}
	cp := *c
	cp.State = c.State.Clone()
	return &cp
}

// Ref returns the reference identifying c.
func (c *Checkpoint) Ref() CheckpointRef {
	return CheckpointRef{ThreadID: c.ThreadID, CheckpointID: c.ID, Step: c.Step}
}

// CheckpointRef identifies a stored checkpoint.
type CheckpointRef struct {
	ThreadID     string `json:"thread_id"`
	CheckpointID string `json:"checkpoint_id"`
	Step         int    `json:"step"`
}

// CheckpointSaver stores checkpoints keyed by thread. Implementations must
// serialize Put and Latest per thread and never return a partial
// checkpoint.
type CheckpointSaver interface {
	// Put stores ckpt. It returns ErrCheckpointConflict when ckpt.Step is
	// not greater than the step of the latest stored checkpoint.
	Put(ctx context.Context, ckpt *Checkpoint) (CheckpointRef, error)
	// Latest returns the newest checkpoint of the thread, or nil if none.
	Latest(ctx context.Context, threadID string) (*Checkpoint, error)
	// List returns checkpoints newest first. limit <= 0 means all.
	List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error)
	// DeleteThread removes every checkpoint of the thread.
	DeleteThread(ctx context.Context, threadID string) error
	// Close releases resources held by the saver.
	Close() error
}

// ThreadLocker is implemented by savers shared between processes. The
// executor holds the lock for the duration of a turn.
type ThreadLocker interface {
	LockThread(ctx context.Context, threadID string) (unlock func(), err error)
	// ThreadLocked reports whether any process holds the thread.
	ThreadLocked(ctx context.Context, threadID string) (bool, error)
}

// ValidatePut checks ckpt against the latest stored checkpoint of its
// thread. Savers call it inside their per-thread critical section.
func ValidatePut(latest, ckpt *Checkpoint) error {
	if ckpt == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}
	if ckpt.ThreadID == "" {
		return ErrThreadIDRequired
	}
	if ckpt.ID == "" {
		return fmt.Errorf("checkpoint ID cannot be empty")
	}
	if latest != nil && ckpt.Step <= latest.Step {
		return fmt.Errorf("%w: step %d is not after %d", ErrCheckpointConflict, ckpt.Step, latest.Step)
	}
	return nil
}

// Snapshot is the externally visible view of a thread at a checkpoint.
type Snapshot struct {
	ThreadID     string    `json:"thread_id"`
	CheckpointID string    `json:"checkpoint_id,omitempty"`
	Step         int       `json:"step"`
	Source       string    `json:"source,omitempty"`
	NodeID       string    `json:"node_id,omitempty"`
	Status       Status    `json:"status"`
	Next         string    `json:"next,omitempty"`
	State        State     `json:"values"`
	CreatedAt    time.Time `json:"created_at"`
}

func snapshotOf(c *Checkpoint) *Snapshot {
	return &Snapshot{
		ThreadID:     c.ThreadID,
		CheckpointID: c.ID,
		Step:         c.Step,
		Source:       c.Source,
		NodeID:       c.NodeID,
		Status:       c.Status,
		Next:         c.Next,
		State:        c.State.Clone(),
		CreatedAt:    c.Timestamp,
	}
}
