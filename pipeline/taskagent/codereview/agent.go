/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package codereview runs the agentic review of a change set and submits
// the result to the review platform.
package codereview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"chainguard.dev/reviewpipe/agents/completion"
	"chainguard.dev/reviewpipe/agents/message"
	"chainguard.dev/reviewpipe/agents/tokens"
	"chainguard.dev/reviewpipe/agents/toolcall"
	"chainguard.dev/reviewpipe/agents/toolloop"
	"chainguard.dev/reviewpipe/pipeline"
	"chainguard.dev/reviewpipe/pipeline/taskagent"
	"github.com/chainguard-dev/clog"
)

// Type tags.
const (
	GithubType = "GithubCodeReviewerAgent"
	GitlabType = "GitlabCodeReviewerAgent"
)

const (
	fieldPrefix         = "reviewCommentPrefix"
	fieldMaxInputTokens = "maxInputTokens"
	fieldMaxToolCalls   = "maxToolCalls"
)

// GithubPrompt is the default system prompt of the GitHub reviewer.
const GithubPrompt = `Identify code review experts and act as the best expert in the field.
Carefully review the CHANGES for mistakes, logical errors, suspicious code, typos, inconcistency with task requirements.
It's preferable to use the '` + ToolAddComment + `' function to add a note to a specific code snippet that has been reviewed. This makes your feedback more precise.
If git diff is not enough, use the '` + ToolGetFileContent + `' function to get the file content.
Start by commenting on specific changes via '` + ToolAddComment + `' function.
After specific feedback provided, write a brief summary of identified problems.
Do not repeat feedback or summary that was already provided by tools and previous reviews.`

// GitlabPrompt is the default system prompt of the GitLab reviewer.
const GitlabPrompt = `Identify code review experts and act as the best expert in the field.
Carefully review the CHANGES for mistakes, logical errors, suspicious code, typos, inconcistency with task requirements.
If git diff is not enough, use the '` + ToolGetFileContent + `' function to get the file content.
Write a brief summary of identified problems.
Do not explain the code changes, just point out the problems.
If everything is fine, just respond "BOT VALIDATION PASSED" without any additional details.`

// GitlabSummaryPrompt asks for the summary once the tool rounds ran out.
const GitlabSummaryPrompt = "Max tool calls reached. Provide a remaining brief summary without tools."

// Agent reviews the change set bound to a task.
type Agent struct {
	tag        string
	tokenField string
	prompt     string
	sampleRole message.Role
	inline     bool
	loopOpts   []toolloop.Option

	client   completion.Completer
	platform pipeline.ReviewPlatform
	changes  pipeline.ChangeStore
	counter  *tokens.Counter
	pause    time.Duration
}

var _ pipeline.Agent = (*Agent)(nil)

// Option configures a reviewer.
type Option func(*Agent) error

// WithCounter replaces the token counter used for budgets and metrics.
func WithCounter(c *tokens.Counter) Option {
	return func(a *Agent) error {
		if c == nil {
			return errors.New("token counter cannot be nil")
		}
		a.counter = c
		return nil
	}
}

// WithRoundPause sets the pause between tool rounds.
func WithRoundPause(d time.Duration) Option {
	return func(a *Agent) error {
		if d < 0 {
			return fmt.Errorf("round pause must be non-negative, got %v", d)
		}
		a.pause = d
		return nil
	}
}

// NewGithub returns the GitHub reviewer. It leaves inline comments and
// submits them with a review.
func NewGithub(client completion.Completer, platform pipeline.ReviewPlatform, changes pipeline.ChangeStore, opts ...Option) (*Agent, error) {
	return newAgent(&Agent{
		tag:        GithubType,
		tokenField: "githubToken",
		prompt:     GithubPrompt,
		sampleRole: message.RoleAssistant,
		inline:     true,
	}, client, platform, changes, opts)
}

// NewGitlab returns the GitLab reviewer. It posts its summary as a merge
// request note and only declares tools named in system messages.
func NewGitlab(client completion.Completer, platform pipeline.ReviewPlatform, changes pipeline.ChangeStore, opts ...Option) (*Agent, error) {
	return newAgent(&Agent{
		tag:        GitlabType,
		tokenField: "gitlabToken",
		prompt:     GitlabPrompt,
		sampleRole: message.RoleSystem,
		loopOpts: []toolloop.Option{
			toolloop.WithToolScanRoles(message.RoleSystem),
			toolloop.WithSummaryPrompt(GitlabSummaryPrompt),
		},
	}, client, platform, changes, opts)
}

func newAgent(a *Agent, client completion.Completer, platform pipeline.ReviewPlatform, changes pipeline.ChangeStore, opts []Option) (*Agent, error) {
	if client == nil || platform == nil || changes == nil {
		return nil, errors.New("completion client, review platform and change store are required")
	}
	a.client, a.platform, a.changes = client, platform, changes
	a.counter = tokens.NewCounter()
	a.pause = toolloop.DefaultRoundPause
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return a, nil
}

func (a *Agent) Type() string { return a.tag }
func (a *Agent) Name() string { return pipeline.NameFromType(a.tag) }

func (a *Agent) ConnectionFields() []pipeline.FieldSpec {
	return []pipeline.FieldSpec{{
		Key:         fieldPrefix,
		Label:       "Review comment prefix",
		Description: `e.g. "AI review"`,
		Type:        pipeline.FieldString,
	}}
}

func (a *Agent) ExtraDataFields() []pipeline.FieldSpec {
	fields := []pipeline.FieldSpec{{
		Key:         taskagent.FieldSystemPrompt,
		Label:       "System prompt",
		Description: "Replaces the built-in review instructions",
		Type:        pipeline.FieldText,
	}}
	fields = append(fields, taskagent.SampleFields()...)
	return append(fields, taskagent.AIBaseURLField, pipeline.FieldSpec{
		Key:      a.tokenField,
		Label:    "Access token of the review platform",
		Type:     pipeline.FieldString,
		Required: true,
	}, pipeline.FieldSpec{
		Key:         fieldMaxInputTokens,
		Label:       "Max input tokens",
		Description: fmt.Sprintf("Defaults to %d", toolloop.DefaultTokenBudget),
		Type:        pipeline.FieldInt,
	}, pipeline.FieldSpec{
		Key:         fieldMaxToolCalls,
		Label:       "Max tool calls",
		Description: fmt.Sprintf(`Defaults to %d, "0" disables tools`, toolloop.DefaultMaxRounds),
		Type:        pipeline.FieldInt,
	})
}

// limits reads the token budget and round limit of conn.
func limits(conn *pipeline.Connection) (budget, rounds int) {
	budget = taskagent.IntValue(conn, fieldMaxInputTokens, toolloop.DefaultTokenBudget)
	if budget <= 0 {
		budget = toolloop.DefaultTokenBudget
	}
	rounds = taskagent.IntValue(conn, fieldMaxToolCalls, toolloop.DefaultMaxRounds)
	if rounds < 0 {
		rounds = toolloop.DefaultMaxRounds
	}
	return budget, rounds
}

// ProcessTask implements pipeline.Agent.
func (a *Agent) ProcessTask(ctx context.Context, task *pipeline.Task, conn *pipeline.Connection, conv *message.Conversation) (*pipeline.Outcome, error) {
	log := clog.FromContext(ctx).With("task", task.ID, "agent", a.tag)

	change, err := a.changes.GetChange(ctx, task.ID)
	if errors.Is(err, pipeline.ErrNotFound) {
		log.Info("No change set bound to task, skipping review")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load change set: %w", err)
	}

	budget, rounds := limits(conn)
	opts := append([]toolloop.Option{
		toolloop.WithMaxRounds(rounds),
		toolloop.WithTokenBudget(budget),
		toolloop.WithRoundPause(a.pause),
		toolloop.WithCounter(a.counter),
	}, a.loopOpts...)
	loop, err := toolloop.New(a.client, opts...)
	if err != nil {
		return nil, err
	}

	prompt := conn.ConfigValue(taskagent.FieldSystemPrompt)
	if strings.TrimSpace(prompt) == "" {
		prompt = a.prompt
	}
	msgs := append([]message.Message{message.System(prompt)}, taskagent.Samples(conn, a.sampleRole)...)
	msgs = append(msgs, conv.Messages()...)

	sink := &commentSink{}
	tools := toolcall.Set{}.Add(fileContentTool(a.platform, conn, change))
	if a.inline {
		tools.Add(sink.tool())
	}

	res, err := loop.Run(ctx, conn.Credential(), msgs, tools)
	if err != nil {
		return nil, fmt.Errorf("review %s: %w", change.URL, err)
	}
	summary := res.Content()
	comments := sink.all()

	if err := a.platform.SubmitReview(ctx, conn, change, summary, comments); err != nil {
		return nil, err
	}
	log.With("rounds", res.Rounds, "comments", len(comments)).Info("Submitted review")

	output := conn.ConfigValue(fieldPrefix) + "\n" + summary
	if a.inline {
		for _, c := range comments {
			b, err := json.Marshal(c)
			if err != nil {
				return nil, err
			}
			output += "\n" + string(b)
		}
	}
	input := strings.Join(message.Contents(res.Messages), "\n")
	return &pipeline.Outcome{
		Input:  input,
		Output: output,
		Metrics: map[string]any{
			"inputTokens":     a.counter.Count(ctx, input),
			"outputTokens":    a.counter.Count(ctx, summary),
			"realTokensCount": res.RealTokens,
		},
	}, nil
}
