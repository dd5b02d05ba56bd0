/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package orchestrator

import (
	"context"
	"testing"
	"time"

	"chainguard.dev/reviewpipe/agents/message"
	"chainguard.dev/reviewpipe/pipeline"
	"chainguard.dev/reviewpipe/pipeline/store/memstore"
	"chainguard.dev/reviewpipe/workqueue"
	"chainguard.dev/reviewpipe/workqueue/dispatcher"
	"chainguard.dev/reviewpipe/workqueue/inmem"
)

func countingAgent(calls *int) *fakeAgent {
	return &fakeAgent{tag: "CountingAgent", run: func(context.Context, *pipeline.Task, *pipeline.Connection, *message.Conversation) (*pipeline.Outcome, error) {
		*calls++
		return &pipeline.Outcome{Output: "done"}, nil
	}}
}

func TestOnTaskCreatedOrUpdatedOnlyRunsReady(t *testing.T) {
	ctx := context.Background()
	calls := 0
	f := newFixture(t, []pipeline.Agent{countingAgent(&calls)}, connection(1, "CountingAgent"))

	statuses := []pipeline.Status{pipeline.StatusNew, pipeline.StatusProcessing, pipeline.StatusCompleted, pipeline.StatusFailed}
	for _, s := range statuses {
		task := &pipeline.Task{ProjectID: 1, Status: s}
		if err := f.store.SaveTask(ctx, task); err != nil {
			t.Fatal(err)
		}
		if err := f.life.OnTaskCreatedOrUpdated(ctx, task.ID); err != nil {
			t.Errorf("OnTaskCreatedOrUpdated(%s): %v", s, err)
		}
	}
	if calls != 0 {
		t.Errorf("agent calls for non-ready tasks: got = %d, wanted = 0", calls)
	}

	task := f.readyTask(t)
	if err := f.life.OnTaskCreatedOrUpdated(ctx, task.ID); err != nil {
		t.Fatal(err)
	}
	// A duplicate trigger after the run is a no-op.
	if err := f.life.OnTaskCreatedOrUpdated(ctx, task.ID); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("agent calls: got = %d, wanted = 1", calls)
	}
	if err := f.life.OnTaskCreatedOrUpdated(ctx, 4242); err != nil {
		t.Errorf("missing task: got = %v, wanted = nil", err)
	}
}

func TestMarkCompleted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	task := &pipeline.Task{ProjectID: 1, Status: pipeline.StatusNew}
	if err := f.store.SaveTask(ctx, task); err != nil {
		t.Fatal(err)
	}
	if err := f.life.MarkCompleted(ctx, task.ID); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if err := f.life.MarkCompleted(ctx, task.ID); err != nil {
		t.Fatalf("MarkCompleted twice: %v", err)
	}
	got, _ := f.store.GetTask(ctx, task.ID)
	if got.Status != pipeline.StatusCompleted {
		t.Errorf("status: got = %s, wanted = COMPLETED", got.Status)
	}
	if n := len(f.pub.Events()); n != 1 {
		t.Errorf("events: got = %d, wanted = 1", n)
	}
}

func TestRetention(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	base := time.Now().Add(-time.Hour)

	var ids []int64
	for i := range 6 {
		project := int64(1)
		if i >= 4 {
			project = 2
		}
		task := &pipeline.Task{ProjectID: project, Status: pipeline.StatusCompleted, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.SaveTask(ctx, task); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, task.ID)
	}

	// Global ceiling 5 drops the oldest task; project 1 ceiling 2 then drops one more.
	r := Retention{GlobalLimit: 5, ProjectLimit: 2}
	if err := r.Apply(ctx, store, ids[3]); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	total, _ := store.CountTasks(ctx, 0)
	if total != 4 {
		t.Errorf("total tasks: got = %d, wanted = 4", total)
	}
	for _, id := range ids[:2] {
		if _, err := store.GetTask(ctx, id); err == nil {
			t.Errorf("task %d survived retention", id)
		}
	}
	if n, _ := store.CountTasks(ctx, 1); n != 2 {
		t.Errorf("project 1 tasks: got = %d, wanted = 2", n)
	}

	// A disabled policy touches nothing.
	if err := (Retention{}).Apply(ctx, store, ids[3]); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.CountTasks(ctx, 0); n != 4 {
		t.Errorf("total after no-op: got = %d, wanted = 4", n)
	}
}

func TestTaskKeys(t *testing.T) {
	id, err := ParseTaskKey(TaskKey(42))
	if err != nil || id != 42 {
		t.Errorf("ParseTaskKey(TaskKey(42)): got = %d, %v", id, err)
	}
	for _, bad := range []string{"42", "task/", "task/x", "other/1"} {
		if _, err := ParseTaskKey(bad); err == nil {
			t.Errorf("ParseTaskKey(%q): got = nil, wanted error", bad)
		}
	}
}

func TestQueueReadyAndDispatch(t *testing.T) {
	ctx := context.Background()
	calls := 0
	f := newFixture(t, []pipeline.Agent{countingAgent(&calls)}, connection(1, "CountingAgent"))
	first, second := f.readyTask(t), f.readyTask(t)

	q := inmem.New()
	n, err := f.life.QueueReady(ctx, q, 0)
	if err != nil || n != 2 {
		t.Fatalf("QueueReady: got = %d, %v", n, err)
	}
	if err := q.Queue(ctx, "garbage", workqueue.Options{}); err != nil {
		t.Fatal(err)
	}

	// Concurrency 1 keeps the counting agent free of races.
	for range 3 {
		if err := dispatcher.HandleAsync(ctx, q, 1, 0, f.life.Process, 3)(); err != nil {
			t.Fatalf("HandleAsync: %v", err)
		}
	}
	if calls != 2 {
		t.Errorf("agent calls: got = %d, wanted = 2", calls)
	}
	for _, id := range []int64{first.ID, second.ID} {
		got, _ := f.store.GetTask(ctx, id)
		if got.Status != pipeline.StatusCompleted {
			t.Errorf("task %d: got = %s, wanted = COMPLETED", id, got.Status)
		}
	}
	if _, err := q.Get(ctx, "garbage"); err == nil {
		t.Error("malformed key should be dropped")
	}
}
