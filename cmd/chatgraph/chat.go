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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"trpc.group/trpc-go/trpc-chatgraph-go/graph"
	"trpc.group/trpc-go/trpc-chatgraph-go/model"
	"trpc.group/trpc-go/trpc-chatgraph-go/runner"
)

const titleWidth = 80

func newChatCmd(opts *rootOptions) *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the chatbot in the terminal",
		Long: `Starts an interactive session. Each line is sent to the chosen thread; ` +
			`"quit", "exit" or "q" ends the session. "/answer <text>" replies to a ` +
			`pending escalation as the human expert and "/resume" continues a paused thread.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.cfg.ResolveCredentials(configPrompter(opts)); err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), opts.cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			render := plainRender
			if !plain {
				render = markdownRenderer()
			}
			return newREPL(opts.in, opts.out, a.runner, render).run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "print assistant markdown without rendering")
	return cmd
}

func plainRender(s string) (string, error) { return s + "\n", nil }

func markdownRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(titleWidth),
	)
	if err != nil {
		return plainRender
	}
	return r.Render
}

type repl struct {
	in     *bufio.Scanner
	out    io.Writer
	runner runner.Runner
	render func(string) (string, error)
}

func newREPL(in io.Reader, out io.Writer, r runner.Runner, render func(string) (string, error)) *repl {
	return &repl{in: bufio.NewScanner(in), out: out, runner: r, render: render}
}

func (r *repl) prompt(label string) (string, bool) {
	fmt.Fprint(r.out, label)
	if !r.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(r.in.Text()), true
}

func isQuit(s string) bool {
	switch strings.ToLower(s) {
	case "quit", "exit", "q":
		return true
	}
	return false
}

func (r *repl) run(ctx context.Context) error {
	for {
		text, ok := r.prompt("User: ")
		if !ok || isQuit(text) {
			fmt.Fprintln(r.out, "Goodbye!")
			return r.in.Err()
		}
		if text == "" {
			continue
		}
		thread, ok := r.prompt("Thread (enter for default): ")
		if !ok {
			fmt.Fprintln(r.out, "Goodbye!")
			return r.in.Err()
		}
		if thread == "" {
			thread = runner.DefaultThreadID
		}
		if err := r.turn(ctx, thread, text); err != nil {
			fmt.Fprintf(r.out, "Error: %v\n", err)
		}
	}
}

func (r *repl) turn(ctx context.Context, thread, text string) error {
	var (
		events <-chan *graph.Event
		err    error
	)
	switch {
	case text == "/resume":
		events, err = r.runner.Resume(ctx, thread)
	case strings.HasPrefix(text, "/answer "):
		events, err = r.runner.Answer(ctx, thread, strings.TrimPrefix(text, "/answer "))
	default:
		r.printMessage(model.NewUserMessage(text))
		events, err = r.runner.Run(ctx, thread, text)
	}
	if err != nil {
		return err
	}
	var failed error
	for e := range events {
		switch e.Type {
		case graph.EventTypeNodeComplete:
			for _, m := range e.NewMessages {
				r.printMessage(m)
			}
		case graph.EventTypeInterrupt:
			fmt.Fprintf(r.out, "\n[paused before %s] reply with \"/answer <text>\" or \"/resume\" on thread %q\n",
				e.Next, thread)
		case graph.EventTypeError:
			failed = errors.New(e.Error)
		}
	}
	return failed
}

var messageTitles = map[model.Role]string{
	model.RoleUser:      "Human Message",
	model.RoleAssistant: "Ai Message",
	model.RoleTool:      "Tool Message",
	model.RoleSystem:    "System Message",
}

func messageTitle(role model.Role) string {
	title := " " + messageTitles[role] + " "
	pad := titleWidth - len(title)
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat("=", pad/2) + title + strings.Repeat("=", pad-pad/2)
}

func (r *repl) printMessage(m model.Message) {
	fmt.Fprintln(r.out, messageTitle(m.Role))
	if m.Role == model.RoleTool && m.ToolName != "" {
		fmt.Fprintf(r.out, "Name: %s\n\n", m.ToolName)
	}
	if m.Content != "" {
		body := m.Content + "\n"
		if m.Role == model.RoleAssistant {
			if rendered, err := r.render(m.Content); err == nil {
				body = rendered
			}
		}
		fmt.Fprint(r.out, body)
	}
	if len(m.ToolCalls) > 0 {
		fmt.Fprintln(r.out, "Tool Calls:")
		for _, tc := range m.ToolCalls {
			fmt.Fprintf(r.out, "  %s (%s)\n  Args: %s\n", tc.Function.Name, tc.ID, tc.Function.Arguments)
		}
	}
}
