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
	"github.com/spf13/cobra"

	"trpc.group/trpc-go/trpc-chatgraph-go/graph"
)

func newGraphCmd(opts *rootOptions) *cobra.Command {
	var (
		rankDir  string
		startEnd bool
	)
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the chatbot graph in Graphviz DOT format",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := newGraph(opts.cfg, newModel(opts.cfg))
			if err != nil {
				return err
			}
			return g.WriteDOT(cmd.OutOrStdout(),
				graph.WithRankDir(rankDir),
				graph.WithIncludeStartEnd(startEnd),
				graph.WithGraphLabel("chatgraph"),
			)
		},
	}
	cmd.Flags().StringVar(&rankDir, "rankdir", graph.RankDirTB, "layout direction (TB or LR)")
	cmd.Flags().BoolVar(&startEnd, "start-end", true, "draw the start and end markers")
	return cmd
}
