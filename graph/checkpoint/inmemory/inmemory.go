//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides in-memory checkpoint storage that lives as long
// as the process.
package inmemory

import (
	"context"
	"sync"

	"trpc.group/trpc-go/trpc-chatgraph-go/graph"
)

// Saver provides an in-memory implementation of graph.CheckpointSaver.
type Saver struct {
	mu      sync.RWMutex
	threads map[string][]*graph.Checkpoint // threadID -> checkpoints, oldest first
	// maxCheckpointsPerThread limits retained checkpoints per thread; 0 keeps all.
	maxCheckpointsPerThread int
}

// NewSaver creates a new in-memory checkpoint saver.
func NewSaver() *Saver {
	return &Saver{threads: make(map[string][]*graph.Checkpoint)}
}

// WithMaxCheckpointsPerThread keeps only the newest max checkpoints of each
// thread. The latest checkpoint is always retained.
func (s *Saver) WithMaxCheckpointsPerThread(max int) *Saver {
	s.maxCheckpointsPerThread = max
	return s
}

// Put stores a copy of ckpt.
func (s *Saver) Put(ctx context.Context, ckpt *graph.Checkpoint) (graph.CheckpointRef, error) {
	if ckpt == nil {
		return graph.CheckpointRef{}, graph.ValidatePut(nil, nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.threads[ckpt.ThreadID]
	var latest *graph.Checkpoint
	if len(list) > 0 {
		latest = list[len(list)-1]
	}
	if err := graph.ValidatePut(latest, ckpt); err != nil {
		return graph.CheckpointRef{}, err
	}
	list = append(list, ckpt.Copy())
	if s.maxCheckpointsPerThread > 0 && len(list) > s.maxCheckpointsPerThread {
		list = append([]*graph.Checkpoint(nil), list[len(list)-s.maxCheckpointsPerThread:]...)
	}
	s.threads[ckpt.ThreadID] = list
	return ckpt.Ref(), nil
}

// Latest returns a copy of the newest checkpoint of threadID.
func (s *Saver) Latest(ctx context.Context, threadID string) (*graph.Checkpoint, error) {
	if threadID == "" {
		return nil, graph.ErrThreadIDRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.threads[threadID]
	if len(list) == 0 {
		return nil, nil
	}
	return list[len(list)-1].Copy(), nil
}

// List returns copies of the checkpoints of threadID, newest first.
func (s *Saver) List(ctx context.Context, threadID string, limit int) ([]*graph.Checkpoint, error) {
	if threadID == "" {
		return nil, graph.ErrThreadIDRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.threads[threadID]
	n := len(list)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*graph.Checkpoint, 0, n)
	for i := len(list) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, list[i].Copy())
	}
	return out, nil
}

// DeleteThread removes every checkpoint of threadID.
func (s *Saver) DeleteThread(ctx context.Context, threadID string) error {
	if threadID == "" {
		return graph.ErrThreadIDRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}

// Close releases resources held by the saver.
func (s *Saver) Close() error {
	return nil
}
