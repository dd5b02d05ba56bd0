/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package changecontext adds the stored change set of a task to the
// conversation, so that later agents can review it.
package changecontext

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"chainguard.dev/reviewpipe/agents/message"
	"chainguard.dev/reviewpipe/pipeline"
	"chainguard.dev/reviewpipe/pipeline/taskagent"
	"github.com/chainguard-dev/clog"
)

// Type tags.
const (
	GithubType = "GithubContextAgent"
	GitlabType = "GitlabContextAgent"
)

// Agent renders a pipeline.ChangeRecord into conversation turns.
type Agent struct {
	tag         string
	header      string
	repoField   pipeline.FieldSpec
	withReviews bool
	changes     pipeline.ChangeStore
}

var _ pipeline.Agent = (*Agent)(nil)

// NewGithub returns the pull request context agent. Earlier reviews are
// included so the reviewer does not repeat them.
func NewGithub(changes pipeline.ChangeStore) *Agent {
	return &Agent{
		tag:    GithubType,
		header: "Pull request code changes: ",
		repoField: pipeline.FieldSpec{
			Key:         taskagent.FieldRepository,
			Label:       "Repository",
			Description: `e.g. "acme/widgets"`,
			Type:        pipeline.FieldString,
			Required:    true,
		},
		withReviews: true,
		changes:     changes,
	}
}

// NewGitlab returns the merge request context agent.
func NewGitlab(changes pipeline.ChangeStore) *Agent {
	return &Agent{
		tag:    GitlabType,
		header: "Merge request code changes: ",
		repoField: pipeline.FieldSpec{
			Key:         taskagent.FieldRepository,
			Label:       "Repository URL",
			Description: `e.g. "https://gitlab.com/acme/widgets/"`,
			Type:        pipeline.FieldString,
			Required:    true,
		},
		changes: changes,
	}
}

func (a *Agent) Type() string { return a.tag }
func (a *Agent) Name() string { return pipeline.NameFromType(a.tag) }

func (a *Agent) ConnectionFields() []pipeline.FieldSpec {
	return []pipeline.FieldSpec{a.repoField, {
		Key:         taskagent.FieldCodeDescription,
		Label:       "Repository Description",
		Description: `e.g. "Website frontend built with React and TypeScript."`,
		Type:        pipeline.FieldText,
	}}
}

func (a *Agent) ExtraDataFields() []pipeline.FieldSpec { return nil }

// ProcessTask implements pipeline.Agent. Without a stored change set, or
// one without files, only the code description is added and no outcome is
// recorded.
func (a *Agent) ProcessTask(ctx context.Context, task *pipeline.Task, conn *pipeline.Connection, conv *message.Conversation) (*pipeline.Outcome, error) {
	if desc := conn.ConfigValue(taskagent.FieldCodeDescription); desc != "" {
		conv.Append(message.User("Project code description: " + desc))
	}

	change, err := a.changes.GetChange(ctx, task.ID)
	if errors.Is(err, pipeline.ErrNotFound) {
		clog.FromContext(ctx).With("task", task.ID).Info("No change set stored for task")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load change set: %w", err)
	}
	if len(change.Files) == 0 {
		return nil, nil
	}

	if a.withReviews {
		if text := PreviousReviews(change.Reviews); text != "" {
			conv.Append(message.Assistant("Previously provided reviews: \n" + text))
		}
	}
	conv.Append(message.User(a.header + "\n" + FencedFiles(change.Files)))

	paths := make([]string, 0, len(change.Files))
	for _, f := range change.Files {
		paths = append(paths, f.Path)
	}
	return &pipeline.Outcome{
		Input:  strings.Join(paths, "\n"),
		Output: strings.Join(conv.Contents(), "\n"),
	}, nil
}

// PreviousReviews renders review bodies and their line comments, or ""
// when there is nothing to show.
func PreviousReviews(reviews []pipeline.Review) string {
	var b strings.Builder
	for _, r := range reviews {
		if r.Body != "" {
			b.WriteString(r.Body + "\n")
		}
		if len(r.Comments) == 0 {
			continue
		}
		b.WriteString("Code blocks comments: \n")
		for _, c := range r.Comments {
			b.WriteString(c.Path + "(")
			if c.StartLine > 0 {
				b.WriteString("From line " + strconv.Itoa(c.StartLine) + " to ")
			}
			b.WriteString("line " + strconv.Itoa(c.Line) + "):\n" + c.Body + "\n")
		}
	}
	return strings.TrimSpace(b.String())
}

const noNewline = `\ No newline at end of file`

// FencedFiles renders each file as `status "path"` followed by its patch
// in a code fence.
func FencedFiles(files []pipeline.ChangedFile) string {
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "%s \"%s\"\n", f.Status, f.Path)
		if f.Patch == "" {
			continue
		}
		patch := strings.TrimRight(f.Patch, "\n")
		patch = strings.TrimSuffix(strings.TrimSuffix(patch, noNewline), "\n")
		b.WriteString("```\n" + patch + "\n```\n")
	}
	return b.String()
}
