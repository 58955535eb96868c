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
	"golang.org/x/term"

	"trpc.group/trpc-go/trpc-chatgraph-go/config"
)

// configPrompter asks on the terminal only when stdin is one; otherwise
// missing keys fail fast instead of consuming piped input.
func configPrompter(opts *rootOptions) config.Prompter {
	if opts.in == nil || !term.IsTerminal(int(opts.in.Fd())) {
		return nil
	}
	return config.NewTerminalPrompter(opts.in, opts.out)
}
