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
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"trpc.group/trpc-go/trpc-chatgraph-go/log"
	"trpc.group/trpc-go/trpc-chatgraph-go/server/chat"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		listen  string
		origins []string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve threads over HTTP",
		Long:  `Starts the HTTP API. Turns, answers and resumes stream graph events as server-sent events.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.cfg.ResolveCredentials(configPrompter(opts)); err != nil {
				return err
			}
			if listen == "" {
				listen = opts.cfg.Listen
			}
			a, err := newApp(cmd.Context(), opts.cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			var serverOpts []chat.Option
			if len(origins) > 0 {
				serverOpts = append(serverOpts, chat.WithAllowedOrigins(origins...))
			}
			srv := &http.Server{
				Addr:              listen,
				Handler:           chat.New(a.runner, serverOpts...).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, srv)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (defaults to the configured one)")
	cmd.Flags().StringSliceVar(&origins, "cors-origin", nil, "allowed CORS origins (default any)")
	return cmd
}

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server) error {
	serverErrors := make(chan error, 1)
	go func() {
		log.Infof("chatgraph listening on %s", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Infof("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
