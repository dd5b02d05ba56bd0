/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package jiracontext loads the Jira issues a task mentions into the
// conversation.
package jiracontext

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chainguard.dev/reviewpipe/agents/message"
	"chainguard.dev/reviewpipe/pipeline"
	"github.com/chainguard-dev/clog"
)

// Type is the agent's type tag.
const Type = "JiraContextAgent"

// Metadata set on the issue messages, for TransformContextAgent rules.
const (
	MetadataType        = "type"
	MetadataHasComments = "hasComments"
	IssueMessageType    = "jira-issue"
)

// Agent appends one user message per referenced issue and records the
// issue links on the task.
type Agent struct {
	tickets pipeline.TicketProvider
	tasks   pipeline.TaskStore
}

var _ pipeline.Agent = (*Agent)(nil)

// New returns the Jira context agent. tasks persists the external
// references added to a task.
func New(tickets pipeline.TicketProvider, tasks pipeline.TaskStore) *Agent {
	return &Agent{tickets: tickets, tasks: tasks}
}

func (a *Agent) Type() string { return Type }
func (a *Agent) Name() string { return pipeline.NameFromType(Type) }

func (a *Agent) ConnectionFields() []pipeline.FieldSpec {
	return []pipeline.FieldSpec{{
		Key:         "jiraProjects",
		Label:       "Jira Projects",
		Description: `Comma separated list of Jira project keys. E.g. "HB,CW,ABC"`,
		Type:        pipeline.FieldString,
		Required:    true,
	}}
}

func (a *Agent) ExtraDataFields() []pipeline.FieldSpec {
	return []pipeline.FieldSpec{{
		Key:         "jiraHost",
		Label:       "Jira Host",
		Description: `E.g. "acme", "acme.atlassian.net", "https://jira.acme.internal"`,
		Type:        pipeline.FieldString,
		Required:    true,
	}}
}

// ProcessTask implements pipeline.Agent.
func (a *Agent) ProcessTask(ctx context.Context, task *pipeline.Task, conn *pipeline.Connection, conv *message.Conversation) (*pipeline.Outcome, error) {
	keys := a.tickets.DetectReferences(task.Name+" "+task.Description, projects(conn))
	if len(keys) == 0 {
		return nil, nil
	}
	log := clog.FromContext(ctx).With("task", task.ID)

	for _, key := range keys {
		item, err := a.tickets.LoadItem(ctx, conn, key)
		if errors.Is(err, pipeline.ErrNotFound) {
			log.With("issue", key).Warn("Referenced issue does not exist")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load issue %s: %w", key, err)
		}
		if item == nil {
			continue
		}
		conv.Append(IssueMessage(item))
		ref := item.URL
		if ref == "" {
			ref = a.tickets.BrowseURL(conn, key)
		}
		task.AddExternalRef(ref)
	}
	if err := a.tasks.SaveTask(ctx, task); err != nil {
		return nil, fmt.Errorf("save external refs: %w", err)
	}

	return &pipeline.Outcome{
		Input:  task.Name + ": " + task.Description + " = " + strings.Join(keys, ","),
		Output: strings.Join(conv.Contents(), "\n"),
	}, nil
}

func projects(conn *pipeline.Connection) []string {
	var out []string
	for p := range strings.SplitSeq(conn.ConfigValue("jiraProjects"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IssueMessage renders an issue with its comments as a user turn.
func IssueMessage(item *pipeline.TicketItem) message.Message {
	text := "Task name:\n" + item.Summary + "\n\nTask description:\n" + item.Description
	hasComments := "N"
	if len(item.Comments) > 0 {
		text += "\n\nCOMMENTS START:\n\n" + strings.Join(item.Comments, "\n---\n") + "\n\nCOMMENTS END."
		hasComments = "Y"
	}
	return message.User(text).
		WithMetadata(MetadataType, IssueMessageType).
		WithMetadata(MetadataHasComments, hasComments)
}
