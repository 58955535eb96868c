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

	"trpc.group/trpc-go/trpc-chatgraph-go/model"
)

// State is the shared value threaded through the graph for one thread.
// Messages only grow; AskHuman is overwritten by every update that sets it.
type State struct {
	Messages []model.Message `json:"messages"`
	AskHuman bool            `json:"ask_human"`
}

// Update is the partial state a node returns.
// A nil AskHuman leaves the flag unchanged.
type Update struct {
	Messages []model.Message `json:"messages,omitempty"`
	AskHuman *bool           `json:"ask_human,omitempty"`
}

// Bool returns a pointer to v, for Update.AskHuman.
func Bool(v bool) *bool {
	return &v
}

// IsEmpty reports whether applying u would change nothing.
func (u Update) IsEmpty() bool {
	return len(u.Messages) == 0 && u.AskHuman == nil
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	c := State{AskHuman: s.AskHuman}
	if s.Messages != nil {
		c.Messages = make([]model.Message, len(s.Messages))
		for i, m := range s.Messages {
			c.Messages[i] = m.Clone()
		}
	}
	return c
}

// LastMessage returns the most recent message.
func (s State) LastMessage() (model.Message, bool) {
	if len(s.Messages) == 0 {
		return model.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// PendingToolCalls returns the calls of the latest assistant message that no
// tool result has answered yet, in request order. Calls stop being pending
// once any non-tool message follows the assistant message.
func (s State) PendingToolCalls() []model.ToolCall {
	return pendingToolCalls(s.Messages)
}

func pendingToolCalls(msgs []model.Message) []model.ToolCall {
	answered := make(map[string]bool)
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		switch m.Role {
		case model.RoleTool:
			answered[m.ToolID] = true
			continue
		case model.RoleAssistant:
			var pending []model.ToolCall
			for _, tc := range m.ToolCalls {
				if !answered[tc.ID] {
					pending = append(pending, tc)
				}
			}
			return pending
		}
		return nil
	}
	return nil
}

// Apply merges u into s and returns the result; s is not modified.
// Messages are appended in order and AskHuman is overwritten when set.
// A tool result must answer a pending call of the immediately preceding
// assistant message, otherwise ErrProtocolViolation is returned.
func (s State) Apply(u Update) (State, error) {
	next := s.Clone()
	for _, m := range u.Messages {
		if err := checkAppend(next.Messages, m); err != nil {
			return s, err
		}
		next.Messages = append(next.Messages, m.Clone())
	}
	if u.AskHuman != nil {
		next.AskHuman = *u.AskHuman
	}
	return next, nil
}

func checkAppend(history []model.Message, m model.Message) error {
	if !m.Role.IsValid() {
		return fmt.Errorf("%w: unknown role %q", ErrProtocolViolation, m.Role)
	}
	switch m.Role {
	case model.RoleTool:
		if m.ToolID == "" {
			return fmt.Errorf("%w: tool result without tool id", ErrProtocolViolation)
		}
		for _, tc := range pendingToolCalls(history) {
			if tc.ID == m.ToolID {
				return nil
			}
		}
		return fmt.Errorf("%w: tool result %q answers no pending call", ErrProtocolViolation, m.ToolID)
	case model.RoleAssistant:
		seen := make(map[string]bool, len(m.ToolCalls))
		for _, tc := range m.ToolCalls {
			if tc.ID == "" {
				return fmt.Errorf("%w: tool call %q without id", ErrProtocolViolation, tc.Function.Name)
			}
			if seen[tc.ID] {
				return fmt.Errorf("%w: duplicate tool call id %q", ErrProtocolViolation, tc.ID)
			}
			seen[tc.ID] = true
		}
	}
	return nil
}
