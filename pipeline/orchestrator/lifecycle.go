/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"chainguard.dev/reviewpipe/pipeline"
	"chainguard.dev/reviewpipe/workqueue"
	"github.com/chainguard-dev/clog"
)

// Lifecycle reacts to task events.
type Lifecycle struct {
	orch      *Orchestrator
	tasks     pipeline.TaskStore
	publisher pipeline.Publisher
	retention Retention
}

// NewLifecycle wires a Lifecycle around an Orchestrator. The orchestrator's
// publisher is reused for the events the lifecycle emits.
func NewLifecycle(orch *Orchestrator, retention Retention) *Lifecycle {
	return &Lifecycle{
		orch:      orch,
		tasks:     orch.tasks,
		publisher: orch.publisher,
		retention: retention,
	}
}

// OnTaskCreatedOrUpdated re-fetches the task and runs it only if it is still
// ReadyToProcess. Concurrent triggers for the same task are narrowed by the
// re-fetch but not excluded.
func (l *Lifecycle) OnTaskCreatedOrUpdated(ctx context.Context, taskID int64) error {
	task, err := l.tasks.GetTask(ctx, taskID)
	if errors.Is(err, pipeline.ErrNotFound) {
		clog.FromContext(ctx).With("task_id", taskID).Info("Task no longer exists")
		return nil
	}
	if err != nil {
		return err
	}
	if task.Status != pipeline.StatusReadyToProcess {
		clog.FromContext(ctx).With("task_id", taskID, "status", task.Status.String()).Debug("Task not ready, skipping")
		return nil
	}
	return l.orch.Run(ctx, taskID)
}

// OnTaskCompleted applies the retention policy.
func (l *Lifecycle) OnTaskCompleted(ctx context.Context, taskID int64) error {
	return l.retention.Apply(ctx, l.tasks, taskID)
}

// MarkCompleted ends a task whose external item closed.
func (l *Lifecycle) MarkCompleted(ctx context.Context, taskID int64) error {
	task, err := l.tasks.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status == pipeline.StatusCompleted {
		return nil
	}
	if err := task.Transition(pipeline.StatusCompleted); err != nil {
		return err
	}
	if err := l.tasks.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("save task %d: %w", taskID, err)
	}
	return l.publisher.Publish(ctx, pipeline.Event{Type: pipeline.EventTaskCompleted, TaskID: taskID})
}

// HandleEvent routes a task event to the matching trigger.
func (l *Lifecycle) HandleEvent(ctx context.Context, e pipeline.Event) error {
	switch e.Type {
	case pipeline.EventTaskCreated, pipeline.EventTaskUpdated:
		return l.OnTaskCreatedOrUpdated(ctx, e.TaskID)
	case pipeline.EventTaskCompleted:
		return l.OnTaskCompleted(ctx, e.TaskID)
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
}

const taskKeyPrefix = "task/"

// TaskKey is the work queue key of a task.
func TaskKey(id int64) string {
	return taskKeyPrefix + strconv.FormatInt(id, 10)
}

// ParseTaskKey reverses TaskKey.
func ParseTaskKey(key string) (int64, error) {
	raw, ok := strings.CutPrefix(key, taskKeyPrefix)
	if !ok {
		return 0, fmt.Errorf("not a task key: %q", key)
	}
	return strconv.ParseInt(raw, 10, 64)
}

// QueueReady queues every ReadyToProcess task, up to limit (0 for all).
func (l *Lifecycle) QueueReady(ctx context.Context, q workqueue.Interface, limit int) (int, error) {
	ready, err := l.tasks.ListByStatus(ctx, pipeline.StatusReadyToProcess, limit)
	if err != nil {
		return 0, fmt.Errorf("list ready tasks: %w", err)
	}
	for _, t := range ready {
		if err := q.Queue(ctx, TaskKey(t.ID), workqueue.Options{}); err != nil {
			return 0, fmt.Errorf("queue task %d: %w", t.ID, err)
		}
	}
	return len(ready), nil
}

// Process is a dispatcher callback for task keys. Malformed keys are
// dropped rather than retried.
func (l *Lifecycle) Process(ctx context.Context, key string, _ workqueue.Options) error {
	id, err := ParseTaskKey(key)
	if err != nil {
		return workqueue.NonRetriableError(err, "malformed key")
	}
	return l.OnTaskCreatedOrUpdated(ctx, id)
}
