/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package message defines the provider-independent conversation model that
// agents build up and completion adapters translate.
package message

import (
	"slices"
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model request to invoke a named tool. Arguments holds the
// raw JSON arguments as produced by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one turn of a conversation.
type Message struct {
	Role       Role              `json:"role"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall        `json:"tool_calls,omitempty"`
}

func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// ToolResult answers the tool call with the given id.
func ToolResult(callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID}
}

// WithMetadata returns a copy of m carrying the given metadata pair.
func (m Message) WithMetadata(key, value string) Message {
	md := make(map[string]string, len(m.Metadata)+1)
	for k, v := range m.Metadata {
		md[k] = v
	}
	md[key] = value
	m.Metadata = md
	return m
}

// MatchesMetadata reports whether every rule is present in the metadata with
// an equal value. An empty rule set matches every message.
func (m Message) MatchesMetadata(rules map[string]string) bool {
	for k, v := range rules {
		if got, ok := m.Metadata[k]; !ok || got != v {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	if m.Metadata != nil {
		md := make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			md[k] = v
		}
		m.Metadata = md
	}
	m.ToolCalls = slices.Clone(m.ToolCalls)
	return m
}

// Conversation is the ordered, mutable message list that a task run threads
// through its agents. It is owned by a single run and is not safe for
// concurrent use.
type Conversation struct {
	msgs []Message
}

// NewConversation starts a conversation with the given messages.
func NewConversation(msgs ...Message) *Conversation {
	return &Conversation{msgs: slices.Clone(msgs)}
}

// Append adds messages to the end of the conversation.
func (c *Conversation) Append(msgs ...Message) {
	c.msgs = append(c.msgs, msgs...)
}

// Len returns the number of messages.
func (c *Conversation) Len() int { return len(c.msgs) }

// At returns the message at index i.
func (c *Conversation) At(i int) Message { return c.msgs[i] }

// Set replaces the message at index i.
func (c *Conversation) Set(i int, m Message) { c.msgs[i] = m }

// Truncate drops every message from index n on.
func (c *Conversation) Truncate(n int) {
	if n < len(c.msgs) {
		c.msgs = c.msgs[:n]
	}
}

// Messages returns a copy of the messages.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.msgs))
	for i, m := range c.msgs {
		out[i] = m.Clone()
	}
	return out
}

// Contents returns the content of every message in order.
func (c *Conversation) Contents() []string {
	return Contents(c.msgs)
}

// Contents returns the content of every message in order.
func Contents(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

// Transcript joins the contents of msgs with newlines.
func Transcript(msgs []Message) string {
	return strings.Join(Contents(msgs), "\n")
}
