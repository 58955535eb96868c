//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

// Package config loads process configuration from a YAML file, a .env file
// and the environment, and resolves API credentials.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Providers, search backends and stores accepted by Validate.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"

	SearchTavily     = "tavily"
	SearchDuckDuckGo = "duckduckgo"

	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Credential environment variables.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvTavilyAPIKey    = "TAVILY_API_KEY"
)

// EnvPrefix prefixes every overlay variable, e.g. CHATGRAPH_MAX_STEPS.
const EnvPrefix = "CHATGRAPH_"

// Config is the process configuration.
type Config struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"`
	Instruction string `yaml:"instruction"`

	Search           string `yaml:"search"`
	SearchMaxResults int    `yaml:"search_max_results"`

	Store         string `yaml:"store"`
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`

	MaxSteps             int `yaml:"max_steps"`
	MaxConcurrentThreads int `yaml:"max_concurrent_threads"`

	Listen       string `yaml:"listen"`
	LogLevel     string `yaml:"log_level"`
	OTelEndpoint string `yaml:"otel_endpoint"`
	OTelProtocol string `yaml:"otel_protocol"`

	// Credentials never come from the YAML file.
	AnthropicAPIKey string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	TavilyAPIKey    string `yaml:"-"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Provider:             ProviderAnthropic,
		Search:               SearchTavily,
		SearchMaxResults:     2,
		Store:                StoreMemory,
		SQLitePath:           "chatgraph.db",
		RedisAddr:            "localhost:6379",
		RedisPrefix:          "chatgraph:",
		MaxSteps:             25,
		MaxConcurrentThreads: 64,
		Listen:               ":8080",
		LogLevel:             "info",
		OTelProtocol:         "grpc",
	}
}

type loadOptions struct {
	envFile string
}

// LoadOption configures Load.
type LoadOption func(*loadOptions)

// WithEnvFile sets the dotenv file read before the environment overlay.
// An empty path disables it. Defaults to ".env".
func WithEnvFile(path string) LoadOption {
	return func(o *loadOptions) { o.envFile = path }
}

// Load builds a Config from the defaults, the YAML file at path (skipped
// when path is empty), the dotenv file and the CHATGRAPH_* environment.
// Variables already present in the environment win over the dotenv file.
func Load(path string, opts ...LoadOption) (*Config, error) {
	o := &loadOptions{envFile: ".env"}
	for _, opt := range opts {
		opt(o)
	}
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", o.envFile, err)
		}
	}
	if err := cfg.overlayEnv(); err != nil {
		return nil, err
	}
	cfg.AnthropicAPIKey = os.Getenv(EnvAnthropicAPIKey)
	cfg.OpenAIAPIKey = os.Getenv(EnvOpenAIAPIKey)
	cfg.TavilyAPIKey = os.Getenv(EnvTavilyAPIKey)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlayEnv() error {
	strs := map[string]*string{
		"PROVIDER":       &c.Provider,
		"MODEL":          &c.Model,
		"BASE_URL":       &c.BaseURL,
		"INSTRUCTION":    &c.Instruction,
		"SEARCH":         &c.Search,
		"STORE":          &c.Store,
		"SQLITE_PATH":    &c.SQLitePath,
		"REDIS_ADDR":     &c.RedisAddr,
		"REDIS_PASSWORD": &c.RedisPassword,
		"REDIS_PREFIX":   &c.RedisPrefix,
		"LISTEN":         &c.Listen,
		"LOG_LEVEL":      &c.LogLevel,
		"OTEL_ENDPOINT":  &c.OTelEndpoint,
		"OTEL_PROTOCOL":  &c.OTelProtocol,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	ints := map[string]*int{
		"SEARCH_MAX_RESULTS":     &c.SearchMaxResults,
		"REDIS_DB":               &c.RedisDB,
		"MAX_STEPS":              &c.MaxSteps,
		"MAX_CONCURRENT_THREADS": &c.MaxConcurrentThreads,
	}
	for key, dst := range ints {
		raw, ok := os.LookupEnv(EnvPrefix + key)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}
	return nil
}

// Validate checks enumerations and limits.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	switch c.Search {
	case SearchTavily, SearchDuckDuckGo:
	default:
		return fmt.Errorf("unknown search backend %q", c.Search)
	}
	switch c.Store {
	case StoreMemory, StoreSQLite, StoreRedis:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.SearchMaxResults <= 0 {
		return fmt.Errorf("search_max_results must be positive, got %d", c.SearchMaxResults)
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive, got %d", c.MaxSteps)
	}
	if c.MaxConcurrentThreads <= 0 {
		return fmt.Errorf("max_concurrent_threads must be positive, got %d", c.MaxConcurrentThreads)
	}
	return nil
}
