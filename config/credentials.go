//
// Tencent is pleased to support the open source community by making trpc-chatgraph-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-chatgraph-go is licensed under the Apache License Version 2.0.
//
//

package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrMissingCredential is returned when a required key is unset and cannot
// be prompted for.
var ErrMissingCredential = errors.New("missing credential")

// Prompter asks the user for a secret value.
type Prompter interface {
	Prompt(name string) (string, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(name string) (string, error)

// Prompt implements Prompter.
func (f PrompterFunc) Prompt(name string) (string, error) { return f(name) }

type terminalPrompter struct {
	in  *os.File
	out io.Writer
}

// NewTerminalPrompter reads secrets from in without echo. When in is not a
// terminal the line is read as is.
func NewTerminalPrompter(in *os.File, out io.Writer) Prompter {
	return &terminalPrompter{in: in, out: out}
}

func (p *terminalPrompter) Prompt(name string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", name)
	fd := int(p.in.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(secret)), nil
	}
	line, err := bufio.NewReader(p.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ResolveCredentials fills the keys the configured provider and search
// backend need, asking p for every one that is unset. Resolved keys are
// exported to the environment so SDK clients pick them up too. A nil p
// turns a missing key into ErrMissingCredential.
func (c *Config) ResolveCredentials(p Prompter) error {
	type need struct {
		env string
		dst *string
	}
	var needs []need
	switch c.Provider {
	case ProviderAnthropic:
		needs = append(needs, need{EnvAnthropicAPIKey, &c.AnthropicAPIKey})
	case ProviderOpenAI:
		needs = append(needs, need{EnvOpenAIAPIKey, &c.OpenAIAPIKey})
	}
	if c.Search == SearchTavily {
		needs = append(needs, need{EnvTavilyAPIKey, &c.TavilyAPIKey})
	}
	for _, n := range needs {
		if *n.dst != "" {
			continue
		}
		if p == nil {
			return fmt.Errorf("%w: %s", ErrMissingCredential, n.env)
		}
		v, err := p.Prompt(n.env)
		if err != nil {
			return fmt.Errorf("prompt %s: %w", n.env, err)
		}
		if v == "" {
			return fmt.Errorf("%w: %s", ErrMissingCredential, n.env)
		}
		*n.dst = v
		if err := os.Setenv(n.env, v); err != nil {
			return err
		}
	}
	return nil
}
