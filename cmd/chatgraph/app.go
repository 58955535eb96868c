//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	goredis "github.com/redis/go-redis/v9"

	"trpc.group/trpc-go/trpc-chatgraph-go/chatbot"
	"trpc.group/trpc-go/trpc-chatgraph-go/config"
	"trpc.group/trpc-go/trpc-chatgraph-go/graph"
	"trpc.group/trpc-go/trpc-chatgraph-go/graph/checkpoint/inmemory"
	"trpc.group/trpc-go/trpc-chatgraph-go/graph/checkpoint/redis"
	"trpc.group/trpc-go/trpc-chatgraph-go/graph/checkpoint/sqlite"
	"trpc.group/trpc-go/trpc-chatgraph-go/log"
	"trpc.group/trpc-go/trpc-chatgraph-go/model"
	"trpc.group/trpc-go/trpc-chatgraph-go/model/anthropic"
	"trpc.group/trpc-go/trpc-chatgraph-go/model/openai"
	"trpc.group/trpc-go/trpc-chatgraph-go/runner"
	"trpc.group/trpc-go/trpc-chatgraph-go/tool"
	"trpc.group/trpc-go/trpc-chatgraph-go/tool/duckduckgo"
	"trpc.group/trpc-go/trpc-chatgraph-go/tool/tavily"
)

const defaultOpenAIModel = "gpt-4o-mini"

// defaultInstruction is the system prompt used when none is configured.
const defaultInstruction = "You are a helpful support assistant. Use the search tool for " +
	"questions about current events. Call RequestAssistance when you cannot help directly " +
	"or the user asks for an expert."

// app owns everything a command needs to run turns.
type app struct {
	graph    *graph.Graph
	saver    graph.CheckpointSaver
	executor *graph.Executor
	runner   runner.Runner
}

// newApp wires the configured model, search backend and store. m overrides
// the configured provider when non-nil.
func newApp(ctx context.Context, cfg *config.Config, m model.Model) (*app, error) {
	if m == nil {
		m = newModel(cfg)
	}
	g, err := newGraph(cfg, m)
	if err != nil {
		return nil, err
	}
	saver, err := newSaver(ctx, cfg)
	if err != nil {
		return nil, err
	}
	exec, err := graph.NewExecutor(g,
		graph.WithCheckpointSaver(saver),
		graph.WithMaxSteps(cfg.MaxSteps),
		graph.WithMaxConcurrentThreads(cfg.MaxConcurrentThreads),
	)
	if err != nil {
		saver.Close()
		return nil, err
	}
	log.Debugf("chatgraph: provider=%s model=%s search=%s store=%s",
		cfg.Provider, m.Info().Name, cfg.Search, cfg.Store)
	return &app{
		graph:    g,
		saver:    saver,
		executor: exec,
		runner:   runner.NewRunner(exec),
	}, nil
}

func (a *app) Close() error {
	err := a.runner.Close()
	if serr := a.saver.Close(); err == nil {
		err = serr
	}
	return err
}

func newGraph(cfg *config.Config, m model.Model) (*graph.Graph, error) {
	instruction := cfg.Instruction
	if instruction == "" {
		instruction = defaultInstruction
	}
	return chatbot.NewGraph(m, newSearch(cfg), chatbot.WithInstruction(instruction))
}

func newModel(cfg *config.Config) model.Model {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		name := cfg.Model
		if name == "" {
			name = defaultOpenAIModel
		}
		var opts []openai.Option
		if cfg.OpenAIAPIKey != "" {
			opts = append(opts, openai.WithAPIKey(cfg.OpenAIAPIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(name, opts...)
	default:
		var opts []anthropic.Option
		if cfg.AnthropicAPIKey != "" {
			opts = append(opts, anthropic.WithAPIKey(cfg.AnthropicAPIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.New(cfg.Model, opts...)
	}
}

func newSearch(cfg *config.Config) tool.Tool {
	switch cfg.Search {
	case config.SearchDuckDuckGo:
		return duckduckgo.NewTool(duckduckgo.WithMaxResults(cfg.SearchMaxResults))
	default:
		return tavily.NewTool(cfg.TavilyAPIKey, tavily.WithMaxResults(cfg.SearchMaxResults))
	}
}

func newSaver(ctx context.Context, cfg *config.Config) (graph.CheckpointSaver, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		db, err := sql.Open("sqlite3", cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		saver, err := sqlite.NewSaver(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return saver, nil
	case config.StoreRedis:
		return redis.NewSaverFromOptions(ctx, &goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, redis.WithKeyPrefix(cfg.RedisPrefix))
	default:
		return inmemory.NewSaver(), nil
	}
}
