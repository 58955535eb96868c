//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

// Package checkpointtest holds the behaviour every graph.CheckpointSaver
// must show, shared by the saver test suites.
package checkpointtest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-chatgraph-go/graph"
	"trpc.group/trpc-go/trpc-chatgraph-go/model"
)

// NewCheckpoint builds a checkpoint whose state holds n user messages.
func NewCheckpoint(threadID string, step, n int) *graph.Checkpoint {
	var state graph.State
	for i := 0; i < n; i++ {
		state.Messages = append(state.Messages, model.NewUserMessage(fmt.Sprintf("%s-%d", threadID, i)))
	}
	ckpt := graph.NewCheckpoint(threadID, step, state)
	ckpt.Source = graph.CheckpointSourceLoop
	ckpt.Status = graph.StatusRunning
	ckpt.Next = "agent"
	return ckpt
}

// Run exercises newSaver against the saver contract. newSaver must return
// an empty saver.
func Run(t *testing.T, newSaver func(t *testing.T) graph.CheckpointSaver) {
	t.Run("LatestOfUnknownThreadIsNil", func(t *testing.T) {
		s := newSaver(t)
		got, err := s.Latest(context.Background(), "nobody")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("PutThenLatestRoundTrips", func(t *testing.T) {
		s := newSaver(t)
		ctx := context.Background()
		ckpt := NewCheckpoint("t1", 0, 2)
		ckpt.State.AskHuman = true
		ckpt.State.Messages = append(ckpt.State.Messages, model.Message{
			Role: model.RoleAssistant,
			ToolCalls: []model.ToolCall{{
				Type: "function",
				ID:   "call_1",
				Function: model.FunctionDefinitionParam{
					Name:      "RequestAssistance",
					Arguments: []byte(`{"request":"help"}`),
				},
			}},
		})

		ref, err := s.Put(ctx, ckpt)
		require.NoError(t, err)
		assert.Equal(t, ckpt.ID, ref.CheckpointID)
		assert.Equal(t, 0, ref.Step)

		got, err := s.Latest(ctx, "t1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, ckpt.ID, got.ID)
		assert.Equal(t, graph.StatusRunning, got.Status)
		assert.Equal(t, "agent", got.Next)
		assert.True(t, got.State.AskHuman)
		require.Len(t, got.State.Messages, 3)
		assert.Equal(t, "call_1", got.State.Messages[2].ToolCalls[0].ID)
		assert.JSONEq(t, `{"request":"help"}`, string(got.State.Messages[2].ToolCalls[0].Function.Arguments))
	})

	t.Run("StepMustAdvance", func(t *testing.T) {
		s := newSaver(t)
		ctx := context.Background()
		_, err := s.Put(ctx, NewCheckpoint("t1", 3, 1))
		require.NoError(t, err)
		_, err = s.Put(ctx, NewCheckpoint("t1", 3, 2))
		assert.ErrorIs(t, err, graph.ErrCheckpointConflict)
		_, err = s.Put(ctx, NewCheckpoint("t1", 2, 2))
		assert.ErrorIs(t, err, graph.ErrCheckpointConflict)

		got, err := s.Latest(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, 3, got.Step)
		assert.Len(t, got.State.Messages, 1)
	})

	t.Run("EmptyThreadRejected", func(t *testing.T) {
		s := newSaver(t)
		_, err := s.Put(context.Background(), NewCheckpoint("", 0, 1))
		assert.ErrorIs(t, err, graph.ErrThreadIDRequired)
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		s := newSaver(t)
		ctx := context.Background()
		for step := 0; step < 4; step++ {
			_, err := s.Put(ctx, NewCheckpoint("t1", step, step+1))
			require.NoError(t, err)
		}
		all, err := s.List(ctx, "t1", 0)
		require.NoError(t, err)
		require.Len(t, all, 4)
		for i, c := range all {
			assert.Equal(t, 3-i, c.Step)
		}
		two, err := s.List(ctx, "t1", 2)
		require.NoError(t, err)
		require.Len(t, two, 2)
		assert.Equal(t, 3, two[0].Step)
		assert.Equal(t, 2, two[1].Step)
	})

	t.Run("ThreadsAreIsolated", func(t *testing.T) {
		s := newSaver(t)
		ctx := context.Background()
		_, err := s.Put(ctx, NewCheckpoint("a", 0, 1))
		require.NoError(t, err)
		_, err = s.Put(ctx, NewCheckpoint("b", 0, 5))
		require.NoError(t, err)

		a, err := s.Latest(ctx, "a")
		require.NoError(t, err)
		require.Len(t, a.State.Messages, 1)
		assert.Equal(t, "a-0", a.State.Messages[0].Content)

		require.NoError(t, s.DeleteThread(ctx, "b"))
		b, err := s.Latest(ctx, "b")
		require.NoError(t, err)
		assert.Nil(t, b)
		a, err = s.Latest(ctx, "a")
		require.NoError(t, err)
		assert.NotNil(t, a)
	})

	t.Run("ReturnedCheckpointsAreCopies", func(t *testing.T) {
		s := newSaver(t)
		ctx := context.Background()
		ckpt := NewCheckpoint("t1", 0, 1)
		_, err := s.Put(ctx, ckpt)
		require.NoError(t, err)
		ckpt.State.Messages[0].Content = "mutated"

		got, err := s.Latest(ctx, "t1")
		require.NoError(t, err)
		got.State.Messages[0].Content = "mutated again"

		again, err := s.Latest(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "t1-0", again.State.Messages[0].Content)
	})

	t.Run("ConcurrentThreads", func(t *testing.T) {
		s := newSaver(t)
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(thread string) {
				defer wg.Done()
				for step := 0; step < 5; step++ {
					_, err := s.Put(ctx, NewCheckpoint(thread, step, step+1))
					assert.NoError(t, err)
				}
			}(fmt.Sprintf("thread-%d", i))
		}
		wg.Wait()
		for i := 0; i < 8; i++ {
			thread := fmt.Sprintf("thread-%d", i)
			got, err := s.Latest(ctx, thread)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, 4, got.Step)
			for _, m := range got.State.Messages {
				assert.Contains(t, m.Content, thread+"-")
			}
		}
	})
}
