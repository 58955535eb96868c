//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

// Package redis provides Redis-backed checkpoint storage. Checkpoints of a
// thread live in one sorted set scored by step; a per-thread lock lets
// several processes sharing the same Redis serialize their turns.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"trpc.group/trpc-go/trpc-chatgraph-go/graph"
	"trpc.group/trpc-go/trpc-chatgraph-go/log"
)

const (
	defaultKeyPrefix        = "chatgraph:"
	defaultLockTTL          = 5 * time.Minute
	defaultLockPollInterval = 50 * time.Millisecond
)

// putScript appends ARGV[2] with score ARGV[1] unless a checkpoint with an
// equal or greater step exists. It returns -1 on success, otherwise the
// latest step.
var putScript = redis.NewScript(`
local top = redis.call('ZREVRANGE', KEYS[1], 0, 0, 'WITHSCORES')
if top[2] and tonumber(top[2]) >= tonumber(ARGV[1]) then
	return tonumber(top[2])
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return -1
`)

// unlockScript deletes the lock only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Saver is a Redis implementation of graph.CheckpointSaver and
// graph.ThreadLocker.
type Saver struct {
	client           redis.UniversalClient
	ownsClient       bool
	prefix           string
	ttl              time.Duration
	lockTTL          time.Duration
	lockPollInterval time.Duration
}

// Option configures a Saver.
type Option func(*Saver)

// WithKeyPrefix sets the prefix of every key the saver writes.
func WithKeyPrefix(prefix string) Option {
	return func(s *Saver) {
		s.prefix = prefix
	}
}

// WithTTL expires a thread's checkpoints ttl after its last write.
// Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Saver) {
		s.ttl = ttl
	}
}

// WithLockTTL bounds how long a crashed holder can keep a thread locked.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *Saver) {
		s.lockTTL = ttl
	}
}

// WithLockPollInterval sets how often a waiting LockThread retries.
func WithLockPollInterval(d time.Duration) Option {
	return func(s *Saver) {
		s.lockPollInterval = d
	}
}

// NewSaver creates a saver on an existing client. The client stays owned
// by the caller.
func NewSaver(client redis.UniversalClient, opts ...Option) *Saver {
	s := &Saver{
		client:           client,
		prefix:           defaultKeyPrefix,
		lockTTL:          defaultLockTTL,
		lockPollInterval: defaultLockPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSaverFromOptions creates a saver with its own client, closed by Close.
func NewSaverFromOptions(ctx context.Context, redisOpts *redis.Options, opts ...Option) (*Saver, error) {
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", redisOpts.Addr, err)
	}
	s := NewSaver(client, opts...)
	s.ownsClient = true
	return s, nil
}

func (s *Saver) checkpointsKey(threadID string) string {
	return s.prefix + "thread:" + threadID + ":checkpoints"
}

func (s *Saver) lockKey(threadID string) string {
	return s.prefix + "thread:" + threadID + ":lock"
}

// Put stores ckpt after checking that it advances its thread. The check
// and the write run atomically inside Redis.
func (s *Saver) Put(ctx context.Context, ckpt *graph.Checkpoint) (graph.CheckpointRef, error) {
	if err := graph.ValidatePut(nil, ckpt); err != nil {
		return graph.CheckpointRef{}, err
	}
	data, err := json.Marshal(ckpt)
	if err != nil {
		return graph.CheckpointRef{}, fmt.Errorf("marshal checkpoint: %w", err)
	}
	latest, err := putScript.Run(ctx, s.client,
		[]string{s.checkpointsKey(ckpt.ThreadID)},
		ckpt.Step, data, s.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return graph.CheckpointRef{}, fmt.Errorf("store checkpoint: %w", err)
	}
	if latest >= 0 {
		return graph.CheckpointRef{}, fmt.Errorf("%w: step %d is not after %d",
			graph.ErrCheckpointConflict, ckpt.Step, latest)
	}
	return ckpt.Ref(), nil
}

// Latest returns the newest checkpoint of threadID, or nil if none.
func (s *Saver) Latest(ctx context.Context, threadID string) (*graph.Checkpoint, error) {
	if threadID == "" {
		return nil, graph.ErrThreadIDRequired
	}
	members, err := s.client.ZRevRange(ctx, s.checkpointsKey(threadID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("load latest checkpoint: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	var ckpt graph.Checkpoint
	if err := json.Unmarshal([]byte(members[0]), &ckpt); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &ckpt, nil
}

// List returns checkpoints of threadID newest first. Members that fail to
// decode are skipped.
func (s *Saver) List(ctx context.Context, threadID string, limit int) ([]*graph.Checkpoint, error) {
	if threadID == "" {
		return nil, graph.ErrThreadIDRequired
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	members, err := s.client.ZRevRange(ctx, s.checkpointsKey(threadID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	out := make([]*graph.Checkpoint, 0, len(members))
	for _, m := range members {
		var ckpt graph.Checkpoint
		if err := json.Unmarshal([]byte(m), &ckpt); err != nil {
			log.Warnf("redis saver: skipping undecodable checkpoint of thread %s: %v", threadID, err)
			continue
		}
		out = append(out, &ckpt)
	}
	return out, nil
}

// DeleteThread removes every checkpoint of threadID.
func (s *Saver) DeleteThread(ctx context.Context, threadID string) error {
	if threadID == "" {
		return graph.ErrThreadIDRequired
	}
	if err := s.client.Del(ctx, s.checkpointsKey(threadID)).Err(); err != nil {
		return fmt.Errorf("delete checkpoints: %w", err)
	}
	return nil
}

// LockThread blocks until this caller holds threadID or ctx is done. The
// lock expires after the lock TTL if the holder never unlocks.
func (s *Saver) LockThread(ctx context.Context, threadID string) (func(), error) {
	if threadID == "" {
		return nil, graph.ErrThreadIDRequired
	}
	key := s.lockKey(threadID)
	token := uuid.New().String()

	ticker := time.NewTicker(s.lockPollInterval)
	defer ticker.Stop()
	for {
		ok, err := s.client.SetNX(ctx, key, token, s.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if ok {
			return func() {
				// The caller's ctx may already be cancelled; release regardless.
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := unlockScript.Run(ctx, s.client, []string{key}, token).Err(); err != nil &&
					!errors.Is(err, redis.Nil) {
					log.Warnf("redis saver: release lock of thread %s: %v", threadID, err)
				}
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ThreadLocked reports whether some process holds the lock of threadID.
// A holder that died keeps the thread locked until the lock TTL expires.
func (s *Saver) ThreadLocked(ctx context.Context, threadID string) (bool, error) {
	if threadID == "" {
		return false, graph.ErrThreadIDRequired
	}
	n, err := s.client.Exists(ctx, s.lockKey(threadID)).Result()
	if err != nil {
		return false, fmt.Errorf("check lock: %w", err)
	}
	return n > 0, nil
}

// Close closes the client when the saver created it.
func (s *Saver) Close() error {
	if s.ownsClient {
		return s.client.Close()
	}
	return nil
}
