/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores and platforms for missing records.
var ErrNotFound = errors.New("not found")

// TaskStore persists tasks.
type TaskStore interface {
	GetTask(ctx context.Context, id int64) (*Task, error)
	// SaveTask inserts a task with a zero ID, assigning one, or updates it.
	SaveTask(ctx context.Context, t *Task) error
	FindByExternalID(ctx context.Context, projectID int64, source, externalID string) (*Task, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Task, error)
	// CountTasks counts the tasks of a project, or of all projects when
	// projectID is zero.
	CountTasks(ctx context.Context, projectID int64) (int, error)
	// DeleteOldest removes up to limit of the oldest tasks of a project (all
	// projects when projectID is zero) together with their outcomes and
	// change records. It returns the number removed.
	DeleteOldest(ctx context.Context, projectID int64, limit int) (int, error)
}

// OutcomeStore persists agent outcomes.
type OutcomeStore interface {
	SaveOutcome(ctx context.Context, o *Outcome) error
	ListOutcomes(ctx context.Context, taskID int64) ([]*Outcome, error)
}

// ProjectStore resolves projects and their connections.
type ProjectStore interface {
	GetProject(ctx context.Context, id int64) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
}

// ChangeStore persists the change set snapshot of a task.
type ChangeStore interface {
	GetChange(ctx context.Context, taskID int64) (*ChangeRecord, error)
	SaveChange(ctx context.Context, c *ChangeRecord) error
}

// InlineComment is a review comment anchored to lines of a file.
type InlineComment struct {
	Path      string `json:"path"`
	Body      string `json:"body"`
	Line      int    `json:"line,omitempty"`
	StartLine int    `json:"start_line,omitempty"`
}

// ItemSummary identifies an open change set on a platform.
type ItemSummary struct {
	Number    int
	Title     string
	URL       string
	UpdatedAt time.Time
}

// ReviewPlatform is a source-hosting system that serves change sets and
// accepts reviews.
type ReviewPlatform interface {
	Provider() string
	FetchChangeSet(ctx context.Context, conn *Connection, number int) (*ChangeRecord, error)
	FetchFileContent(ctx context.Context, conn *Connection, change *ChangeRecord, path string) (string, error)
	SubmitReview(ctx context.Context, conn *Connection, change *ChangeRecord, summary string, comments []InlineComment) error
	ListOpen(ctx context.Context, conn *Connection) ([]ItemSummary, error)
}

// TicketItem is an issue loaded from a ticket provider.
type TicketItem struct {
	Key         string
	Summary     string
	Description string
	Comments    []string
	URL         string
}

// TicketProvider reads issues referenced from task text.
type TicketProvider interface {
	// DetectReferences returns the issue keys in text that belong to one of
	// projects, in order of first occurrence.
	DetectReferences(text string, projects []string) []string
	LoadItem(ctx context.Context, conn *Connection, key string) (*TicketItem, error)
	BrowseURL(conn *Connection, key string) string
}

// NotificationTransport delivers a rendered notification to target and
// returns the receiver's response body.
type NotificationTransport interface {
	Post(ctx context.Context, target, text string) (string, error)
}

// EventType names a task lifecycle event.
type EventType string

const (
	EventTaskCreated   EventType = "task.created"
	EventTaskUpdated   EventType = "task.updated"
	EventTaskCompleted EventType = "task.completed"
)

// Event is published when a task changes. Delivery is at least once.
type Event struct {
	Type   EventType `json:"type"`
	TaskID int64     `json:"task_id"`
	At     time.Time `json:"at"`
}

// Publisher emits task events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}
