//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"fmt"
	"io"
	"strings"
)

const (
	// RankDirLR sets a left-to-right layout in Graphviz.
	RankDirLR = "LR"
	// RankDirTB sets a top-to-bottom layout in Graphviz.
	RankDirTB = "TB"
)

const (
	shapeBox  = "box"
	shapeOval = "oval"

	colorAgentFill     = "#e3f2fd"
	colorAgentBorder   = "#2196f3"
	colorToolFill      = "#fff3e0"
	colorToolBorder    = "#ff9800"
	colorHumanFill     = "#e8f5e9"
	colorHumanBorder   = "#4caf50"
	colorDefaultFill   = "#f3e5f5"
	colorDefaultBorder = "#9c27b0"

	colorStartFill   = "#e1f5e1"
	colorStartBorder = colorHumanBorder
	colorEndFill     = "#ffe1e1"
	colorEndBorder   = "#f44336"

	colorConditionalEdge = "#999999"
)

// VizOptions configures DOT export.
type VizOptions struct {
	// RankDir sets DOT graph direction: "LR" or "TB".
	RankDir string
	// IncludeStartEnd toggles visualization of virtual Start/End nodes.
	IncludeStartEnd bool
	// GraphLabel optionally labels the whole graph.
	GraphLabel string
}

// VizOption mutates VizOptions.
type VizOption func(*VizOptions)

// WithRankDir sets DOT graph direction. Valid values: "LR", "TB".
func WithRankDir(dir string) VizOption {
	return func(o *VizOptions) {
		if dir == RankDirLR || dir == RankDirTB {
			o.RankDir = dir
		}
	}
}

// WithIncludeStartEnd toggles rendering of Start/End virtual nodes.
func WithIncludeStartEnd(include bool) VizOption {
	return func(o *VizOptions) { o.IncludeStartEnd = include }
}

// WithGraphLabel sets an optional label for the graph.
func WithGraphLabel(label string) VizOption {
	return func(o *VizOptions) { o.GraphLabel = label }
}

func defaultVizOptions() *VizOptions {
	return &VizOptions{
		RankDir:         RankDirTB,
		IncludeStartEnd: true,
	}
}

// DOT returns a Graphviz DOT representation of the graph. Static edges are
// solid, conditional destinations dashed, and interrupt nodes drawn with a
// double border.
func (g *Graph) DOT(opts ...VizOption) string {
	o := defaultVizOptions()
	for _, fn := range opts {
		fn(o)
	}

	var b strings.Builder
	b.WriteString("digraph G {\n")
	fmt.Fprintf(&b, "  rankdir=%s;\n", escapeLabel(o.RankDir))
	b.WriteString("  node [fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\"];\n")
	if o.GraphLabel != "" {
		fmt.Fprintf(&b, "  label=\"%s\";\n  labelloc=t;\n", escapeLabel(o.GraphLabel))
	}
	if o.IncludeStartEnd {
		fmt.Fprintf(&b, "  \"%s\" [label=\"start\", shape=%s, style=filled, fillcolor=\"%s\", color=\"%s\"];\n",
			escapeLabel(Start), shapeOval, colorStartFill, colorStartBorder)
		fmt.Fprintf(&b, "  \"%s\" [label=\"finish\", shape=%s, style=filled, fillcolor=\"%s\", color=\"%s\"];\n",
			escapeLabel(End), shapeOval, colorEndFill, colorEndBorder)
	}
	for _, n := range g.Nodes() {
		label := n.Name
		if label == "" {
			label = n.ID
		}
		fill, color := styleForNodeType(n.Type)
		extra := ""
		if g.interruptBefore[n.ID] {
			extra = ", peripheries=2"
		}
		fmt.Fprintf(&b, "  \"%s\" [label=\"%s\", shape=%s, style=filled, fillcolor=\"%s\", color=\"%s\"%s];\n",
			escapeLabel(n.ID), escapeLabel(label), shapeBox, fill, color, extra)
	}
	if o.IncludeStartEnd && g.entryPoint != "" {
		fmt.Fprintf(&b, "  \"%s\" -> \"%s\";\n", escapeLabel(Start), escapeLabel(g.entryPoint))
	}
	for _, id := range g.order {
		if e, ok := g.edges[id]; ok {
			if !o.IncludeStartEnd && e.To == End {
				continue
			}
			fmt.Fprintf(&b, "  \"%s\" -> \"%s\";\n", escapeLabel(e.From), escapeLabel(e.To))
		}
		if ce, ok := g.conditionalEdges[id]; ok {
			for _, to := range ce.Destinations {
				if !o.IncludeStartEnd && to == End {
					continue
				}
				fmt.Fprintf(&b, "  \"%s\" -> \"%s\" [style=dashed, color=\"%s\"];\n",
					escapeLabel(id), escapeLabel(to), colorConditionalEdge)
			}
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// WriteDOT writes the DOT representation to the provided writer.
func (g *Graph) WriteDOT(w io.Writer, opts ...VizOption) error {
	_, err := io.WriteString(w, g.DOT(opts...))
	return err
}

func styleForNodeType(nt NodeType) (fill, color string) {
	switch nt {
	case NodeTypeAgent:
		return colorAgentFill, colorAgentBorder
	case NodeTypeTool:
		return colorToolFill, colorToolBorder
	case NodeTypeHuman:
		return colorHumanFill, colorHumanBorder
	default:
		return colorDefaultFill, colorDefaultBorder
	}
}

// escapeLabel escapes label strings for DOT.
func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
