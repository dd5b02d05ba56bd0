/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"fmt"
	"slices"
	"time"
)

// Status is the lifecycle state of a task.
type Status int

const (
	StatusNew            Status = 1
	StatusReadyToProcess Status = 2
	StatusProcessing     Status = 3
	StatusCompleted      Status = 4
	StatusFailed         Status = 5
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusReadyToProcess:
		return "READY_TO_PROCESS"
	case StatusProcessing:
		return "PROCESSING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// CanTransition reports whether a task may move from s to next. Completion
// is allowed from any state since a closed item ends its task.
func (s Status) CanTransition(next Status) bool {
	if next == StatusCompleted {
		return true
	}
	switch s {
	case StatusNew:
		return next == StatusReadyToProcess
	case StatusReadyToProcess:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusFailed
	case StatusCompleted, StatusFailed:
		return next == StatusReadyToProcess
	}
	return false
}

// Task sources.
const (
	SourceGithubPR = "github-pr"
	SourceGitlabMR = "gitlab-mr"
)

// Task is one unit of work processed by a project's agent chain.
type Task struct {
	ID           int64          `json:"id"`
	ProjectID    int64          `json:"project_id"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Source       string         `json:"source"`
	ExternalID   string         `json:"external_id,omitempty"`
	ExternalRefs []string       `json:"external_refs,omitempty"`
	Status       Status         `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at,omitzero"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// Transition moves the task to next, or returns an error naming both
// states when the move is not allowed.
func (t *Task) Transition(next Status) error {
	if !t.Status.CanTransition(next) {
		return fmt.Errorf("task %d: cannot move from %s to %s", t.ID, t.Status, next)
	}
	t.Status = next
	return nil
}

// AddExternalRef records ref once and reports whether it was new.
func (t *Task) AddExternalRef(ref string) bool {
	if ref == "" || slices.Contains(t.ExternalRefs, ref) {
		return false
	}
	t.ExternalRefs = append(t.ExternalRefs, ref)
	return true
}
