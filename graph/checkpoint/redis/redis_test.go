//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-chatgraph-go/graph"
	"trpc.group/trpc-go/trpc-chatgraph-go/graph/checkpoint/checkpointtest"
)

func newTestSaver(t *testing.T, opts ...Option) (*Saver, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSaver(client, opts...), mr
}

func TestSaverContract(t *testing.T) {
	checkpointtest.Run(t, func(t *testing.T) graph.CheckpointSaver {
		s, _ := newTestSaver(t)
		return s
	})
}

func TestSaver_KeyPrefixAndTTL(t *testing.T) {
	s, mr := newTestSaver(t, WithKeyPrefix("test:"), WithTTL(time.Minute))
	ctx := context.Background()
	_, err := s.Put(ctx, checkpointtest.NewCheckpoint("t1", 0, 1))
	require.NoError(t, err)

	key := "test:thread:t1:checkpoints"
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))

	mr.FastForward(2 * time.Minute)
	got, err := s.Latest(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaver_ListSkipsUndecodableMembers(t *testing.T) {
	s, mr := newTestSaver(t)
	ctx := context.Background()
	_, err := s.Put(ctx, checkpointtest.NewCheckpoint("t1", 0, 1))
	require.NoError(t, err)
	_, err = mr.ZAdd(s.checkpointsKey("t1"), 1, "{broken")
	require.NoError(t, err)

	list, err := s.List(ctx, "t1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 0, list[0].Step)
}

func TestSaver_LockThread(t *testing.T) {
	s, mr := newTestSaver(t, WithLockPollInterval(5*time.Millisecond))
	ctx := context.Background()

	unlock, err := s.LockThread(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("chatgraph:thread:t1:lock"))

	// A second holder waits until the first releases.
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = s.LockThread(waitCtx, "t1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Other threads are independent.
	unlockOther, err := s.LockThread(ctx, "t2")
	require.NoError(t, err)
	unlockOther()

	acquired := make(chan func(), 1)
	go func() {
		u, err := s.LockThread(ctx, "t1")
		if err == nil {
			acquired <- u
		}
	}()
	unlock()
	select {
	case u := <-acquired:
		u()
	case <-time.After(time.Second):
		t.Fatal("lock was not handed over")
	}
	assert.False(t, mr.Exists("chatgraph:thread:t1:lock"))
}

func TestSaver_ThreadLockedVisibleToExecutor(t *testing.T) {
	s, mr := newTestSaver(t, WithLockTTL(time.Minute))
	ctx := context.Background()
	_, err := s.Put(ctx, checkpointtest.NewCheckpoint("t1", 0, 1))
	require.NoError(t, err)

	noop := func(ctx context.Context, st graph.State) (graph.Update, error) { return graph.Update{}, nil }
	g := graph.NewStateGraph().
		AddNode("agent", noop).
		SetEntryPoint("agent").
		AddEdge("agent", graph.End).
		MustCompile()
	exec, err := graph.NewExecutor(g, graph.WithCheckpointSaver(s))
	require.NoError(t, err)
	defer exec.Close()

	// Another process is running the thread.
	require.NoError(t, mr.Set("chatgraph:thread:t1:lock", "other-process"))
	locked, err := s.ThreadLocked(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, locked)
	snap, err := exec.State(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, graph.StatusRunning, snap.Status)

	// The holder died and its lock expired.
	mr.FastForward(2 * time.Minute)
	locked, err = s.ThreadLocked(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, locked)
	snap, err = exec.State(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, graph.StatusFailed, snap.Status)

	_, err = s.ThreadLocked(ctx, "")
	assert.ErrorIs(t, err, graph.ErrThreadIDRequired)
}

func TestSaver_UnlockKeepsForeignLock(t *testing.T) {
	s, mr := newTestSaver(t, WithLockTTL(time.Second))
	ctx := context.Background()
	unlock, err := s.LockThread(ctx, "t1")
	require.NoError(t, err)

	// The lock expired and someone else took it.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("chatgraph:thread:t1:lock", "someone-else"))

	unlock()
	v, err := mr.Get("chatgraph:thread:t1:lock")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}

func TestNewSaverFromOptions(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewSaverFromOptions(context.Background(), &redis.Options{Addr: mr.Addr()})
	require.NoError(t, err)
	_, err = s.Put(context.Background(), checkpointtest.NewCheckpoint("t1", 0, 1))
	require.NoError(t, err)
	assert.NoError(t, s.Close())

	_, err = NewSaverFromOptions(context.Background(), &redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	assert.Error(t, err)
}

func TestSaver_ImplementsThreadLocker(t *testing.T) {
	var _ graph.ThreadLocker = (*Saver)(nil)
	var _ graph.CheckpointSaver = (*Saver)(nil)
}
