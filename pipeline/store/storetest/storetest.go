/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package storetest holds behaviour checks shared by every store
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"chainguard.dev/reviewpipe/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Store is the set of interfaces a full store implements.
type Store interface {
	pipeline.TaskStore
	pipeline.OutcomeStore
	pipeline.ChangeStore
}

// Run exercises s, which must start empty.
func Run(t *testing.T, s Store) {
	t.Run("tasks", func(t *testing.T) { tasks(t, s) })
	t.Run("outcomes", func(t *testing.T) { outcomes(t, s) })
	t.Run("changes", func(t *testing.T) { changes(t, s) })
	t.Run("retention", func(t *testing.T) { retention(t, s) })
}

func tasks(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.GetTask(ctx, 999)
	require.True(t, errors.Is(err, pipeline.ErrNotFound), "GetTask(999) = %v", err)

	task := &pipeline.Task{
		ProjectID:    1,
		Name:         "acme/widgets #4: Fix parser",
		Description:  "body",
		Source:       pipeline.SourceGithubPR,
		ExternalID:   "acme/widgets#4",
		ExternalRefs: []string{"https://github.com/acme/widgets/pull/4"},
		Status:       pipeline.StatusNew,
		CreatedAt:    time.Now().Add(-time.Hour).UTC().Truncate(time.Second),
	}
	require.NoError(t, s.SaveTask(ctx, task))
	require.NotZero(t, task.ID)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Name, got.Name)
	assert.Equal(t, task.ExternalRefs, got.ExternalRefs)
	assert.Equal(t, pipeline.StatusNew, got.Status)
	assert.True(t, task.CreatedAt.Equal(got.CreatedAt), "CreatedAt: got = %v, wanted = %v", got.CreatedAt, task.CreatedAt)

	got.Status = pipeline.StatusReadyToProcess
	got.AddExternalRef("https://jira.example.com/browse/ABC-1")
	require.NoError(t, s.SaveTask(ctx, got))

	found, err := s.FindByExternalID(ctx, 1, pipeline.SourceGithubPR, "acme/widgets#4")
	require.NoError(t, err)
	assert.Equal(t, task.ID, found.ID)
	assert.Len(t, found.ExternalRefs, 2)
	assert.False(t, found.UpdatedAt.IsZero())

	_, err = s.FindByExternalID(ctx, 2, pipeline.SourceGithubPR, "acme/widgets#4")
	assert.True(t, errors.Is(err, pipeline.ErrNotFound))

	ready, err := s.ListByStatus(ctx, pipeline.StatusReadyToProcess, 10)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, task.ID, ready[0].ID)

	err = s.SaveTask(ctx, &pipeline.Task{ID: 12345, ProjectID: 1})
	assert.True(t, errors.Is(err, pipeline.ErrNotFound), "SaveTask(unknown id) = %v", err)
}

func outcomes(t *testing.T, s Store) {
	ctx := context.Background()
	task := &pipeline.Task{ProjectID: 1, Name: "outcomes", Status: pipeline.StatusProcessing}
	require.NoError(t, s.SaveTask(ctx, task))

	for _, name := range []string{"Github Context Agent", "Github Code Reviewer Agent"} {
		o := &pipeline.Outcome{
			TaskID:    task.ID,
			AgentID:   3,
			AgentName: name,
			Input:     "in",
			Output:    "out",
			Metrics:   map[string]any{"realTokensCount": 42},
		}
		require.NoError(t, s.SaveOutcome(ctx, o))
		assert.NotZero(t, o.ID)
	}

	got, err := s.ListOutcomes(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Github Context Agent", got[0].AgentName)
	assert.EqualValues(t, 42, got[1].Metrics["realTokensCount"])
	assert.False(t, got[0].CreatedAt.IsZero())
}

func changes(t *testing.T, s Store) {
	ctx := context.Background()
	task := &pipeline.Task{ProjectID: 1, Name: "changes", Status: pipeline.StatusNew}
	require.NoError(t, s.SaveTask(ctx, task))

	_, err := s.GetChange(ctx, task.ID)
	assert.True(t, errors.Is(err, pipeline.ErrNotFound))

	rec := &pipeline.ChangeRecord{
		TaskID:   task.ID,
		Provider: pipeline.ProviderGithub,
		RepoKey:  "acme/widgets",
		Number:   4,
		Title:    "Fix parser",
		State:    pipeline.StateOpen,
		Commits:  []string{"fix: parser"},
		Files:    []pipeline.ChangedFile{{Path: "parse.go", Patch: "@@ -1 +1 @@", Status: "modified"}},
		Reviews: []pipeline.Review{{
			Body:     "earlier",
			Comments: []pipeline.ReviewComment{{Path: "parse.go", Body: "nit", Line: 3}},
		}},
	}
	require.NoError(t, s.SaveChange(ctx, rec))

	rec.Title = "Fix parser (v2)"
	require.NoError(t, s.SaveChange(ctx, rec))

	got, err := s.GetChange(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fix parser (v2)", got.Title)
	assert.Equal(t, rec.Files, got.Files)
	assert.Equal(t, rec.Reviews, got.Reviews)
}

func retention(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Now().Add(-24 * time.Hour).UTC().Truncate(time.Second)

	var ids []int64
	for i := range 4 {
		task := &pipeline.Task{ProjectID: 77, Name: "r", Status: pipeline.StatusCompleted, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, s.SaveTask(ctx, task))
		require.NoError(t, s.SaveOutcome(ctx, &pipeline.Outcome{TaskID: task.ID, AgentName: "a"}))
		ids = append(ids, task.ID)
	}

	n, err := s.CountTasks(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	removed, err := s.DeleteOldest(ctx, 77, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	_, err = s.GetTask(ctx, ids[0])
	assert.True(t, errors.Is(err, pipeline.ErrNotFound))
	left, err := s.GetTask(ctx, ids[3])
	require.NoError(t, err)
	assert.Equal(t, ids[3], left.ID)

	outs, err := s.ListOutcomes(ctx, ids[0])
	require.NoError(t, err)
	assert.Empty(t, outs)

	total, err := s.CountTasks(ctx, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, 1)
}
