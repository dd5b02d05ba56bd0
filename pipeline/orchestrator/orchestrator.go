/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chainguard.dev/reviewpipe/agents/message"
	"chainguard.dev/reviewpipe/pipeline"
	"github.com/chainguard-dev/clog"
)

// DefaultAgentTimeout bounds a single agent invocation.
const DefaultAgentTimeout = 10 * time.Minute

// Orchestrator runs tasks through their project's agents.
type Orchestrator struct {
	registry     *Registry
	tasks        pipeline.TaskStore
	outcomes     pipeline.OutcomeStore
	projects     pipeline.ProjectStore
	publisher    pipeline.Publisher
	agentTimeout time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithPublisher sets where TaskCompleted events go.
func WithPublisher(p pipeline.Publisher) Option {
	return func(o *Orchestrator) error {
		if p == nil {
			return errors.New("publisher cannot be nil")
		}
		o.publisher = p
		return nil
	}
}

// WithAgentTimeout bounds each agent invocation.
func WithAgentTimeout(d time.Duration) Option {
	return func(o *Orchestrator) error {
		if d <= 0 {
			return errors.New("agent timeout must be positive")
		}
		o.agentTimeout = d
		return nil
	}
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, pipeline.Event) error { return nil }

// New builds an Orchestrator.
func New(registry *Registry, tasks pipeline.TaskStore, outcomes pipeline.OutcomeStore, projects pipeline.ProjectStore, opts ...Option) (*Orchestrator, error) {
	if registry == nil || tasks == nil || outcomes == nil || projects == nil {
		return nil, errors.New("registry and stores are required")
	}
	o := &Orchestrator{
		registry:     registry,
		tasks:        tasks,
		outcomes:     outcomes,
		projects:     projects,
		publisher:    noopPublisher{},
		agentTimeout: DefaultAgentTimeout,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return o, nil
}

// Run processes the task. It must be ReadyToProcess. Agent failures are
// recorded as a failure outcome and end the task Failed; Run only returns
// errors for bookkeeping it could not do.
func (o *Orchestrator) Run(ctx context.Context, taskID int64) error {
	task, err := o.tasks.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	project, err := o.projects.GetProject(ctx, task.ProjectID)
	if err != nil {
		return fmt.Errorf("load project of task %d: %w", taskID, err)
	}

	if err := task.Transition(pipeline.StatusProcessing); err != nil {
		return err
	}
	if err := o.tasks.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("mark task %d processing: %w", taskID, err)
	}

	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("task_id", task.ID, "project", project.Name))
	log := clog.FromContext(ctx)
	log.Info("Processing task")

	last, runErr := o.runAgents(ctx, task, project)
	var outcomeErr error
	if runErr != nil {
		log.With("error", runErr).Warn("Task failed")
		failure := &pipeline.Outcome{
			TaskID: task.ID,
			Input:  "",
			Output: runErr.Error(),
		}
		if last != nil {
			failure.AgentID = last.Agent.ID
			failure.AgentName = last.Agent.Name
		}
		// A lost failure outcome still fails the task, or it would stay
		// Processing with nothing left to pick it up.
		if err := o.outcomes.SaveOutcome(ctx, failure); err != nil {
			outcomeErr = fmt.Errorf("save failure outcome of task %d: %w", task.ID, err)
		}
		if err := task.Transition(pipeline.StatusFailed); err != nil {
			return errors.Join(outcomeErr, err)
		}
	} else if err := task.Transition(pipeline.StatusCompleted); err != nil {
		return err
	}

	if err := o.tasks.SaveTask(ctx, task); err != nil {
		return errors.Join(outcomeErr, fmt.Errorf("save task %d: %w", task.ID, err))
	}
	taskRuns.WithLabelValues(task.Status.String()).Inc()
	if outcomeErr != nil {
		return outcomeErr
	}

	if task.Status == pipeline.StatusCompleted {
		log.Info("Task completed")
		if err := o.publisher.Publish(ctx, pipeline.Event{Type: pipeline.EventTaskCompleted, TaskID: task.ID}); err != nil {
			log.With("error", err).Warn("Failed to publish task completion")
		}
	}
	return nil
}

// runAgents returns the last connection that was attempted together with
// the first failure.
func (o *Orchestrator) runAgents(ctx context.Context, task *pipeline.Task, project *pipeline.Project) (*pipeline.Connection, error) {
	conv := message.NewConversation()
	var last *pipeline.Connection

	for i := range project.Connections {
		conn := &project.Connections[i]
		agent, ok := o.registry.Get(conn.Agent.Type)
		if !ok {
			clog.FromContext(ctx).With("agent_type", conn.Agent.Type).Warn("Skipping unregistered agent")
			continue
		}
		last = conn

		outcome, err := o.invoke(ctx, agent, task, conn, conv)
		if err != nil {
			return last, fmt.Errorf("%s: %w", conn.Agent.Name, err)
		}
		if outcome == nil {
			continue
		}
		outcome.TaskID = task.ID
		outcome.AgentID = conn.Agent.ID
		outcome.AgentName = conn.Agent.Name
		if err := o.outcomes.SaveOutcome(ctx, outcome); err != nil {
			return last, fmt.Errorf("save outcome of %s: %w", conn.Agent.Name, err)
		}
	}
	return last, nil
}

func (o *Orchestrator) invoke(ctx context.Context, agent pipeline.Agent, task *pipeline.Task, conn *pipeline.Connection, conv *message.Conversation) (*pipeline.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, o.agentTimeout)
	defer cancel()
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("agent", agent.Type(), "connection_id", conn.ID))

	start := time.Now()
	outcome, err := agent.ProcessTask(ctx, task, conn, conv)
	agentDuration.WithLabelValues(agent.Type()).Observe(time.Since(start).Seconds())

	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case outcome == nil:
		result = "skipped"
	}
	agentInvocations.WithLabelValues(agent.Type(), result).Inc()
	return outcome, err
}
