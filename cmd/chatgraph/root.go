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
	"io"
	"os"

	"github.com/spf13/cobra"

	"trpc.group/trpc-go/trpc-chatgraph-go/config"
	"trpc.group/trpc-go/trpc-chatgraph-go/log"
	"trpc.group/trpc-go/trpc-chatgraph-go/telemetry/metric"
	"trpc.group/trpc-go/trpc-chatgraph-go/telemetry/trace"
)

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string

	in  *os.File
	out io.Writer

	cfg      *config.Config
	cleanups []func() error
}

func newRootCmd(in *os.File, out io.Writer) *cobra.Command {
	opts := &rootOptions{in: in, out: out}
	cmd := &cobra.Command{
		Use:          "chatgraph",
		Short:        "A checkpointed support chatbot with human escalation",
		Long:         `chatgraph runs a chatbot that can search the web and escalate to a human expert. Conversations are kept per thread and survive restarts when a durable store is configured.`,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.teardown()
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetIn(in)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment (empty to skip)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(
		newChatCmd(opts),
		newServeCmd(opts),
		newGraphCmd(opts),
		newHistoryCmd(opts),
	)
	return cmd
}

func (o *rootOptions) setup(ctx context.Context) error {
	cfg, err := config.Load(o.configPath, config.WithEnvFile(o.envFile))
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	log.SetLevel(cfg.LogLevel)
	o.cfg = cfg

	if cfg.OTelEndpoint == "" {
		return nil
	}
	cleanTrace, err := trace.Start(ctx,
		trace.WithEndpoint(cfg.OTelEndpoint),
		trace.WithProtocol(cfg.OTelProtocol),
	)
	if err != nil {
		return err
	}
	o.cleanups = append(o.cleanups, cleanTrace)
	cleanMetric, err := metric.Start(ctx,
		metric.WithEndpoint(cfg.OTelEndpoint),
		metric.WithProtocol(cfg.OTelProtocol),
	)
	if err != nil {
		return err
	}
	o.cleanups = append(o.cleanups, cleanMetric)
	log.Infof("telemetry exporting to %s over %s", cfg.OTelEndpoint, cfg.OTelProtocol)
	return nil
}

func (o *rootOptions) teardown() error {
	var first error
	for i := len(o.cleanups) - 1; i >= 0; i-- {
		if err := o.cleanups[i](); err != nil && first == nil {
			first = err
		}
	}
	o.cleanups = nil
	return first
}
