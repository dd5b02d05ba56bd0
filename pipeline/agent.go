/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"chainguard.dev/reviewpipe/agents/message"
)

// FieldType is the input kind of a configurable field.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldText   FieldType = "text"
	FieldInt    FieldType = "int"
)

// FieldSpec declares one configurable field of an agent.
type FieldSpec struct {
	Key         string    `json:"key"`
	Label       string    `json:"label"`
	Description string    `json:"description,omitempty"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
}

// Agent is one step of a project's chain.
type Agent interface {
	// Type is the stable tag that AgentConfig.Type refers to.
	Type() string
	// Name is the human readable agent name.
	Name() string
	// ConnectionFields are set per project connection.
	ConnectionFields() []FieldSpec
	// ExtraDataFields are agent defaults that connections may override.
	ExtraDataFields() []FieldSpec

	// ProcessTask runs the agent. It may read and modify conv, which later
	// agents of the same run observe. A nil outcome means nothing is
	// recorded for this agent.
	ProcessTask(ctx context.Context, task *Task, conn *Connection, conv *message.Conversation) (*Outcome, error)
}

// NameFromType splits a CamelCase type tag into words:
// "GithubCodeReviewerAgent" becomes "Github Code Reviewer Agent".
func NameFromType(tag string) string {
	var b strings.Builder
	for i, r := range tag {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ConfigurationError reports a required field that a connection leaves
// unset, or a connection to an agent type that is not registered.
type ConfigurationError struct {
	Agent string
	Field string
	// Reason overrides the default missing-field message.
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("agent %s: %s", e.Agent, e.Reason)
	}
	return fmt.Sprintf("agent %s: required field %q is not configured", e.Agent, e.Field)
}

// ValidateConnection checks that every required field of agent has a value
// on conn, either directly or through the agent defaults.
func ValidateConnection(agent Agent, conn *Connection) error {
	fields := append(agent.ConnectionFields(), agent.ExtraDataFields()...)
	for _, f := range fields {
		if !f.Required {
			continue
		}
		if strings.TrimSpace(conn.ConfigValue(f.Key)) == "" {
			return &ConfigurationError{Agent: agent.Type(), Field: f.Key}
		}
	}
	return nil
}
