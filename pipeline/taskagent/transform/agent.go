/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package transform rewrites selected conversation messages with an LLM,
// for example to strip noise from loaded issues before review.
package transform

import (
	"context"
	"fmt"
	"strings"

	"chainguard.dev/reviewpipe/agents/completion"
	"chainguard.dev/reviewpipe/agents/message"
	"chainguard.dev/reviewpipe/pipeline"
	"chainguard.dev/reviewpipe/pipeline/taskagent"
	"github.com/chainguard-dev/clog"
)

// Type is the agent's type tag.
const Type = "TransformContextAgent"

// Agent replaces the content of every message whose metadata matches the
// "matchMessage" rules with one completion over it.
type Agent struct {
	client completion.Completer
}

var _ pipeline.Agent = (*Agent)(nil)

// New returns the transform agent.
func New(client completion.Completer) *Agent {
	return &Agent{client: client}
}

func (a *Agent) Type() string { return Type }
func (a *Agent) Name() string { return pipeline.NameFromType(Type) }

func (a *Agent) ConnectionFields() []pipeline.FieldSpec { return nil }

func (a *Agent) ExtraDataFields() []pipeline.FieldSpec {
	return append([]pipeline.FieldSpec{{
		Key:         "matchMessage",
		Label:       "Match message (extra data)",
		Description: `e.g. "type = jira-issue, hasComments = Y"`,
		Type:        pipeline.FieldString,
		Required:    true,
	}, {
		Key:         taskagent.FieldSystemPrompt,
		Label:       "System prompt",
		Description: `e.g. "Remove all links from Jira Description"`,
		Type:        pipeline.FieldText,
		Required:    true,
	}}, append(taskagent.SampleFields(), taskagent.AIBaseURLField)...)
}

// ParseRules reads "key = value" pairs separated by commas. Pairs without
// "=" are ignored.
func ParseRules(raw string) map[string]string {
	rules := map[string]string{}
	for part := range strings.SplitSeq(raw, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		rules[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return rules
}

// ProcessTask implements pipeline.Agent.
func (a *Agent) ProcessTask(ctx context.Context, task *pipeline.Task, conn *pipeline.Connection, conv *message.Conversation) (*pipeline.Outcome, error) {
	rules := ParseRules(conn.ConfigValue("matchMessage"))
	systemPrompt := conn.ConfigValue(taskagent.FieldSystemPrompt)
	base := append([]message.Message{message.System(systemPrompt)}, taskagent.Samples(conn, message.RoleSystem)...)
	cred := conn.Credential()

	transformed := 0
	for i := range conv.Len() {
		m := conv.At(i)
		if !m.MatchesMetadata(rules) {
			continue
		}
		resp, err := a.client.Complete(ctx, cred, append(base[:len(base):len(base)], m))
		if err != nil {
			return nil, fmt.Errorf("transform message %d: %w", i, err)
		}
		m.Content = resp.First().Message.Content
		conv.Set(i, m)
		transformed++
	}
	clog.FromContext(ctx).With("task", task.ID, "transformed", transformed).Debug("Transformed matching messages")

	return &pipeline.Outcome{
		Input:  systemPrompt + "\n" + conn.ConfigValue(taskagent.FieldSampleInput) + "\n" + conn.ConfigValue(taskagent.FieldSampleOutput),
		Output: strings.Join(conv.Contents(), "\n"),
	}, nil
}
