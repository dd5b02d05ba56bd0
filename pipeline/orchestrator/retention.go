/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"chainguard.dev/reviewpipe/pipeline"
	"github.com/chainguard-dev/clog"
)

// retentionBatch caps how many tasks one sweep removes per scope.
const retentionBatch = 100

// Retention bounds the number of stored tasks. A zero limit disables that
// scope.
type Retention struct {
	GlobalLimit  int
	ProjectLimit int
}

// Apply removes the oldest tasks beyond the global ceiling, then beyond the
// ceiling of taskID's project.
func (r Retention) Apply(ctx context.Context, tasks pipeline.TaskStore, taskID int64) error {
	if r.GlobalLimit > 0 {
		if err := r.trim(ctx, tasks, 0, r.GlobalLimit); err != nil {
			return err
		}
	}
	if r.ProjectLimit <= 0 {
		return nil
	}
	task, err := tasks.GetTask(ctx, taskID)
	if errors.Is(err, pipeline.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.trim(ctx, tasks, task.ProjectID, r.ProjectLimit)
}

func (r Retention) trim(ctx context.Context, tasks pipeline.TaskStore, projectID int64, limit int) error {
	count, err := tasks.CountTasks(ctx, projectID)
	if err != nil {
		return fmt.Errorf("count tasks: %w", err)
	}
	if count <= limit {
		return nil
	}
	removed, err := tasks.DeleteOldest(ctx, projectID, min(count-limit, retentionBatch))
	if err != nil {
		return err
	}
	retentionDeleted.Add(float64(removed))
	clog.FromContext(ctx).With("project_id", projectID, "removed", removed, "limit", limit).Info("Removed old tasks")
	return nil
}
