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
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"trpc.group/trpc-go/trpc-chatgraph-go/runner"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history [thread]",
		Short: "List the checkpoints of a thread, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			thread := runner.DefaultThreadID
			if len(args) == 1 {
				thread = args[0]
			}
			a, err := newApp(cmd.Context(), opts.cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			history, err := a.runner.History(cmd.Context(), thread, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(history)
			}
			if len(history) == 0 {
				fmt.Fprintf(out, "thread %q has no checkpoints\n", thread)
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STEP\tSOURCE\tNODE\tSTATUS\tNEXT\tMESSAGES\tCREATED")
			for _, h := range history {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
					h.Step, h.Source, dash(h.NodeID), h.Status, dash(h.Next),
					len(h.State.Messages), h.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of checkpoints (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print snapshots as JSON")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
