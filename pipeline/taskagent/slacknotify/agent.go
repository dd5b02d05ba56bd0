/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package slacknotify posts a message about the task to a Slack incoming
// webhook. Delivery failures never fail the task.
package slacknotify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"chainguard.dev/reviewpipe/agents/message"
	"chainguard.dev/reviewpipe/pipeline"
	"github.com/chainguard-dev/clog"
)

// Type is the agent's type tag.
const Type = "SlackNotificationAgent"

// DefaultTemplate is used when no messageText is configured.
const DefaultTemplate = "{projectName}: Task {taskName} ({taskId}).\n{references}"

// Agent sends the rendered messageText to the webhook URL stored as the
// agent's access key.
type Agent struct {
	transport pipeline.NotificationTransport
	projects  pipeline.ProjectStore
}

var _ pipeline.Agent = (*Agent)(nil)

// New returns the notification agent.
func New(transport pipeline.NotificationTransport, projects pipeline.ProjectStore) *Agent {
	return &Agent{transport: transport, projects: projects}
}

func (a *Agent) Type() string { return Type }
func (a *Agent) Name() string { return pipeline.NameFromType(Type) }

func (a *Agent) ConnectionFields() []pipeline.FieldSpec { return nil }

func (a *Agent) ExtraDataFields() []pipeline.FieldSpec {
	return []pipeline.FieldSpec{{
		Key:         "messageText",
		Label:       "Message text",
		Description: "Variables: {projectName}, {taskName}, {taskId}, {references}. Default: `" + strings.ReplaceAll(DefaultTemplate, "\n", `\n`) + "`",
		Type:        pipeline.FieldText,
	}}
}

// Render fills the template variables.
func Render(template, projectName string, task *pipeline.Task) string {
	return strings.NewReplacer(
		"{projectName}", projectName,
		"{taskName}", task.Name,
		"{taskId}", strconv.FormatInt(task.ID, 10),
		"{references}", strings.Join(task.ExternalRefs, "\n"),
	).Replace(template)
}

// ProcessTask implements pipeline.Agent.
func (a *Agent) ProcessTask(ctx context.Context, task *pipeline.Task, conn *pipeline.Connection, _ *message.Conversation) (*pipeline.Outcome, error) {
	template, ok := conn.RawConfig("messageText")
	if !ok {
		template = DefaultTemplate
	}

	var projectName string
	if project, err := a.projects.GetProject(ctx, task.ProjectID); err != nil {
		clog.FromContext(ctx).With("project", task.ProjectID, "error", err).Warn("Project lookup failed, rendering without its name")
	} else {
		projectName = project.Name
	}

	msg := Render(template, projectName, task)
	if msg == "" {
		return pipeline.OutcomeFromOutput("Skip sending empty message"), nil
	}

	resp, err := a.transport.Post(ctx, conn.Agent.AccessKey, msg)
	if err != nil {
		clog.FromContext(ctx).With("task", task.ID, "error", err).Warn("Slack notification failed")
		return pipeline.OutcomeFromOutput("Error sending slack message: " + err.Error()), nil
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return pipeline.OutcomeFromOutput("Slack message sent: " + string(b)), nil
}
