/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package changereconciler

import (
	"context"
	"testing"

	"chainguard.dev/reviewpipe/pipeline"
	"chainguard.dev/reviewpipe/pipeline/events"
	"chainguard.dev/reviewpipe/pipeline/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlatform struct {
	provider string
	changes  map[int]pipeline.ChangeRecord
	open     []pipeline.ItemSummary
	fetched  []int
}

func (f *fakePlatform) Provider() string { return f.provider }

func (f *fakePlatform) FetchChangeSet(_ context.Context, _ *pipeline.Connection, number int) (*pipeline.ChangeRecord, error) {
	f.fetched = append(f.fetched, number)
	c, ok := f.changes[number]
	if !ok {
		return nil, pipeline.ErrNotFound
	}
	return &c, nil
}

func (f *fakePlatform) FetchFileContent(context.Context, *pipeline.Connection, *pipeline.ChangeRecord, string) (string, error) {
	return "", nil
}

func (f *fakePlatform) SubmitReview(context.Context, *pipeline.Connection, *pipeline.ChangeRecord, string, []pipeline.InlineComment) error {
	return nil
}

func (f *fakePlatform) ListOpen(_ context.Context, conn *pipeline.Connection) ([]pipeline.ItemSummary, error) {
	if conn.ConfigValue("repository") != "acme/widgets" {
		return nil, nil
	}
	return f.open, nil
}

type completer struct{ completed []int64 }

func (c *completer) MarkCompleted(_ context.Context, id int64) error {
	c.completed = append(c.completed, id)
	return nil
}

func connection(agentType, repo string) pipeline.Connection {
	return pipeline.Connection{
		Config: map[string]string{"repository": repo},
		Agent:  pipeline.AgentConfig{Type: agentType},
	}
}

type fixture struct {
	store     *memstore.Store
	github    *fakePlatform
	completer *completer
	recorder  *events.Recorder
	rec       *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New(
		&pipeline.Project{ID: 1, Name: "widgets", Connections: []pipeline.Connection{
			connection("GithubContextAgent", "acme/widgets"),
			connection("GithubCodeReviewerAgent", "acme/widgets"),
		}},
		&pipeline.Project{ID: 2, Name: "other", Connections: []pipeline.Connection{
			connection("GithubContextAgent", "acme/other"),
		}},
		&pipeline.Project{ID: 3, Name: "gitlab", Connections: []pipeline.Connection{
			connection("GitlabContextAgent", "https://gitlab.com/acme/widgets"),
		}},
	)
	gh := &fakePlatform{provider: pipeline.ProviderGithub, changes: map[int]pipeline.ChangeRecord{
		4: {
			Provider: pipeline.ProviderGithub,
			RepoKey:  "acme/widgets",
			Number:   4,
			URL:      "https://github.com/acme/widgets/pull/4",
			Title:    "Fix login",
			Body:     "Body",
			Commits:  []string{"first", "second"},
		},
		5: {RepoKey: "acme/widgets", Number: 5, URL: "https://github.com/acme/widgets/pull/5", Title: "Docs"},
	}}
	f := &fixture{store: store, github: gh, completer: &completer{}, recorder: &events.Recorder{}}
	rec, err := New(store, store, store, f.completer, WithPlatform(gh), WithPublisher(f.recorder))
	require.NoError(t, err)
	f.rec = rec
	return f
}

func (f *fixture) onlyTask(t *testing.T, projectID int64, number int) *pipeline.Task {
	t.Helper()
	task, err := f.store.FindByExternalID(context.Background(), projectID, pipeline.SourceGithubPR, ExternalID("acme/widgets", number))
	require.NoError(t, err)
	return task
}

func TestCreateTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.rec.OnExternalItemUpdated(ctx, pipeline.ItemUpdate{
		Provider: pipeline.ProviderGithub, ItemKey: "Acme/Widgets", ItemID: 4, State: "open",
	}))

	task := f.onlyTask(t, 1, 4)
	assert.Equal(t, "widgets #4: Fix login", task.Name)
	assert.Equal(t, "Body\nCommits:\n first,\nsecond", task.Description)
	assert.Equal(t, pipeline.SourceGithubPR, task.Source)
	assert.Equal(t, []string{"https://github.com/acme/widgets/pull/4"}, task.ExternalRefs)
	assert.Equal(t, pipeline.StatusReadyToProcess, task.Status)

	change, err := f.store.GetChange(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fix login", change.Title)

	assert.Equal(t, []pipeline.Event{{Type: pipeline.EventTaskCreated, TaskID: task.ID}}, f.recorder.Events())

	n, err := f.store.CountTasks(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the project watching acme/widgets gets a task")
}

func TestRefreshRequeuesFinishedTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	update := pipeline.ItemUpdate{Provider: pipeline.ProviderGithub, ItemKey: "acme/widgets", ItemID: 4, State: "open"}
	require.NoError(t, f.rec.OnExternalItemUpdated(ctx, update))
	task := f.onlyTask(t, 1, 4)

	// A task that has not run yet only gets a fresh snapshot.
	change := f.github.changes[4]
	change.Title = "Fix login properly"
	f.github.changes[4] = change
	require.NoError(t, f.rec.OnExternalItemUpdated(ctx, update))
	assert.Len(t, f.recorder.Events(), 1)
	got, err := f.store.GetChange(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fix login properly", got.Title)

	for _, status := range []pipeline.Status{pipeline.StatusCompleted, pipeline.StatusFailed} {
		task.Status = status
		require.NoError(t, f.store.SaveTask(ctx, task))
		require.NoError(t, f.rec.OnExternalItemUpdated(ctx, update))
		task = f.onlyTask(t, 1, 4)
		assert.Equal(t, pipeline.StatusReadyToProcess, task.Status, "after %s", status)
	}
	evts := f.recorder.Events()
	require.Len(t, evts, 3)
	assert.Equal(t, pipeline.Event{Type: pipeline.EventTaskUpdated, TaskID: task.ID}, evts[2])
}

func TestClosedCompletesTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Nothing to complete yet.
	require.NoError(t, f.rec.OnExternalItemUpdated(ctx, pipeline.ItemUpdate{Provider: pipeline.ProviderGithub, ItemKey: "acme/widgets", ItemID: 4, State: "closed"}))
	assert.Empty(t, f.completer.completed)
	assert.Empty(t, f.github.fetched)

	require.NoError(t, f.rec.OnExternalItemUpdated(ctx, pipeline.ItemUpdate{Provider: pipeline.ProviderGithub, ItemKey: "acme/widgets", ItemID: 4, State: "open"}))
	task := f.onlyTask(t, 1, 4)
	require.NoError(t, f.rec.OnExternalItemUpdated(ctx, pipeline.ItemUpdate{Provider: pipeline.ProviderGithub, ItemKey: "acme/widgets", ItemID: 4, State: pipeline.StateMerged}))
	assert.Equal(t, []int64{task.ID}, f.completer.completed)
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.rec.OnExternalItemUpdated(ctx, pipeline.ItemUpdate{Provider: pipeline.ProviderGithub, ItemKey: "acme/widgets", ItemID: 4, State: "open"}))
	f.github.open = []pipeline.ItemSummary{{Number: 4}, {Number: 5}}

	created, err := f.rec.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, "widgets #5: Docs", f.onlyTask(t, 1, 5).Name)

	created, err = f.rec.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, created)

	f.github.open = append(f.github.open, pipeline.ItemSummary{Number: 6})
	created, err = f.rec.Sweep(ctx)
	assert.Error(t, err, "change set 6 cannot be fetched")
	assert.Zero(t, created)
}

func TestUnknownProvider(t *testing.T) {
	f := newFixture(t)
	assert.Error(t, f.rec.OnExternalItemUpdated(context.Background(), pipeline.ItemUpdate{Provider: "bitbucket"}))
	assert.Error(t, f.rec.OnExternalItemUpdated(context.Background(), pipeline.ItemUpdate{Provider: pipeline.ProviderGitlab, ItemKey: "https://gitlab.com/acme/widgets"}))
}
