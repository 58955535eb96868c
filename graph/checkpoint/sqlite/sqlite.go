//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

// Package sqlite provides SQL-backed checkpoint storage. It is written
// against database/sql and tested with the SQLite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"trpc.group/trpc-go/trpc-chatgraph-go/graph"
	"trpc.group/trpc-go/trpc-chatgraph-go/log"
)

const (
	sqliteCreateCheckpoints = "CREATE TABLE IF NOT EXISTS checkpoints (" +
		"thread_id TEXT NOT NULL, " +
		"step INTEGER NOT NULL, " +
		"checkpoint_id TEXT NOT NULL, " +
		"parent_checkpoint_id TEXT, " +
		"status TEXT NOT NULL, " +
		"next_node TEXT, " +
		"ts INTEGER NOT NULL, " +
		"checkpoint_json BLOB NOT NULL, " +
		"PRIMARY KEY (thread_id, step)" +
		")"

	sqliteSelectMaxStep = "SELECT MAX(step) FROM checkpoints WHERE thread_id = ?"

	sqliteInsertCheckpoint = "INSERT INTO checkpoints (" +
		"thread_id, step, checkpoint_id, parent_checkpoint_id, status, next_node, ts, checkpoint_json) " +
		"VALUES (?, ?, ?, ?, ?, ?, ?, ?)"

	sqliteSelectLatest = "SELECT checkpoint_json FROM checkpoints " +
		"WHERE thread_id = ? ORDER BY step DESC LIMIT 1"

	sqliteSelectAll = "SELECT checkpoint_json FROM checkpoints " +
		"WHERE thread_id = ? ORDER BY step DESC"

	sqliteSelectLimit = "SELECT checkpoint_json FROM checkpoints " +
		"WHERE thread_id = ? ORDER BY step DESC LIMIT ?"

	sqliteDeleteThread = "DELETE FROM checkpoints WHERE thread_id = ?"
)

// Saver is a SQL-backed implementation of graph.CheckpointSaver.
// It expects an initialized *sql.DB and will create the required schema.
// Each checkpoint is stored as one JSON blob keyed by (thread_id, step).
type Saver struct {
	db *sql.DB
	mu sync.Mutex // serializes writers of this process
}

// NewSaver creates a new saver using the provided DB.
// The constructor creates tables if needed.
func NewSaver(db *sql.DB) (*Saver, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.Exec(sqliteCreateCheckpoints); err != nil {
		return nil, fmt.Errorf("create checkpoints table: %w", err)
	}
	return &Saver{db: db}, nil
}

// Put stores ckpt after checking that it advances its thread.
func (s *Saver) Put(ctx context.Context, ckpt *graph.Checkpoint) (graph.CheckpointRef, error) {
	if err := graph.ValidatePut(nil, ckpt); err != nil {
		return graph.CheckpointRef{}, err
	}
	data, err := json.Marshal(ckpt)
	if err != nil {
		return graph.CheckpointRef{}, fmt.Errorf("marshal checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return graph.CheckpointRef{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var maxStep sql.NullInt64
	if err := tx.QueryRowContext(ctx, sqliteSelectMaxStep, ckpt.ThreadID).Scan(&maxStep); err != nil {
		return graph.CheckpointRef{}, fmt.Errorf("select latest step: %w", err)
	}
	if maxStep.Valid && int64(ckpt.Step) <= maxStep.Int64 {
		return graph.CheckpointRef{}, fmt.Errorf("%w: step %d is not after %d",
			graph.ErrCheckpointConflict, ckpt.Step, maxStep.Int64)
	}
	if _, err := tx.ExecContext(ctx, sqliteInsertCheckpoint,
		ckpt.ThreadID, ckpt.Step, ckpt.ID, ckpt.ParentID, string(ckpt.Status), ckpt.Next,
		ckpt.Timestamp.UnixNano(), data,
	); err != nil {
		return graph.CheckpointRef{}, fmt.Errorf("insert checkpoint: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return graph.CheckpointRef{}, fmt.Errorf("commit: %w", err)
	}
	return ckpt.Ref(), nil
}

// Latest returns the newest checkpoint of threadID, or nil if none.
func (s *Saver) Latest(ctx context.Context, threadID string) (*graph.Checkpoint, error) {
	if threadID == "" {
		return nil, graph.ErrThreadIDRequired
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, sqliteSelectLatest, threadID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select latest checkpoint: %w", err)
	}
	var ckpt graph.Checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &ckpt, nil
}

// List returns checkpoints of threadID newest first. Rows that fail to
// decode are skipped.
func (s *Saver) List(ctx context.Context, threadID string, limit int) ([]*graph.Checkpoint, error) {
	if threadID == "" {
		return nil, graph.ErrThreadIDRequired
	}
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, sqliteSelectLimit, threadID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, sqliteSelectAll, threadID)
	}
	if err != nil {
		return nil, fmt.Errorf("select checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*graph.Checkpoint
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		var ckpt graph.Checkpoint
		if err := json.Unmarshal(data, &ckpt); err != nil {
			log.Warnf("sqlite saver: skipping undecodable checkpoint of thread %s: %v", threadID, err)
			continue
		}
		out = append(out, &ckpt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return out, nil
}

// DeleteThread deletes all checkpoints of the thread.
func (s *Saver) DeleteThread(ctx context.Context, threadID string) error {
	if threadID == "" {
		return graph.ErrThreadIDRequired
	}
	if _, err := s.db.ExecContext(ctx, sqliteDeleteThread, threadID); err != nil {
		return fmt.Errorf("delete checkpoints: %w", err)
	}
	return nil
}

// Close releases resources held by the saver.
func (s *Saver) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
