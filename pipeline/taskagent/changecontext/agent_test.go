/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package changecontext

import (
	"context"
	"testing"

	"chainguard.dev/reviewpipe/agents/message"
	"chainguard.dev/reviewpipe/pipeline"
	"chainguard.dev/reviewpipe/pipeline/store/memstore"
	"github.com/google/go-cmp/cmp"
)

func change(taskID int64) *pipeline.ChangeRecord {
	return &pipeline.ChangeRecord{
		TaskID: taskID,
		Files: []pipeline.ChangedFile{
			{Path: "a.go", Status: "modified", Patch: "@@ -1 +1 @@\n-a\n+b\n\\ No newline at end of file\n"},
			{Path: "bin/tool", Status: "added"},
		},
		Reviews: []pipeline.Review{
			{Body: "Please add tests."},
			{Comments: []pipeline.ReviewComment{
				{Path: "a.go", Body: "typo", Line: 3},
				{Path: "a.go", Body: "extract this", Line: 9, StartLine: 5},
			}},
		},
	}
}

func TestGithubContext(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	if err := store.SaveChange(ctx, change(1)); err != nil {
		t.Fatalf("SaveChange() = %v", err)
	}
	conn := &pipeline.Connection{Config: map[string]string{"repository": "acme/widgets", "codeDescription": "A Go service."}}
	conv := message.NewConversation()

	out, err := NewGithub(store).ProcessTask(ctx, &pipeline.Task{ID: 1}, conn, conv)
	if err != nil {
		t.Fatalf("ProcessTask() = %v", err)
	}

	want := []message.Message{
		message.User("Project code description: A Go service."),
		message.Assistant("Previously provided reviews: \nPlease add tests.\nCode blocks comments: \n" +
			"a.go(line 3):\ntypo\na.go(From line 5 to line 9):\nextract this"),
		message.User("Pull request code changes: \n" +
			"modified \"a.go\"\n```\n@@ -1 +1 @@\n-a\n+b\n```\n" +
			"added \"bin/tool\"\n"),
	}
	if diff := cmp.Diff(want, conv.Messages()); diff != "" {
		t.Errorf("conversation (-want +got):\n%s", diff)
	}
	if got, want := out.Input, "a.go\nbin/tool"; got != want {
		t.Errorf("Input: got = %q, wanted = %q", got, want)
	}
	if got, want := out.Output, want[0].Content+"\n"+want[1].Content+"\n"+want[2].Content; got != want {
		t.Errorf("Output: got = %q, wanted = %q", got, want)
	}
}

func TestGitlabContextSkipsReviews(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	if err := store.SaveChange(ctx, change(2)); err != nil {
		t.Fatalf("SaveChange() = %v", err)
	}
	conv := message.NewConversation()

	if _, err := NewGitlab(store).ProcessTask(ctx, &pipeline.Task{ID: 2}, &pipeline.Connection{}, conv); err != nil {
		t.Fatalf("ProcessTask() = %v", err)
	}
	if got := conv.Len(); got != 1 {
		t.Fatalf("messages: got = %d, wanted = 1", got)
	}
	if got := conv.At(0).Content; got[:len("Merge request code changes: \n")] != "Merge request code changes: \n" {
		t.Errorf("header: got = %q", got)
	}
}

func TestNoChangeSet(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	store.SaveChange(ctx, &pipeline.ChangeRecord{TaskID: 4})
	conn := &pipeline.Connection{Agent: pipeline.AgentConfig{Extra: map[string]string{"codeDescription": "CLI"}}}

	for _, id := range []int64{3, 4} {
		conv := message.NewConversation()
		out, err := NewGithub(store).ProcessTask(ctx, &pipeline.Task{ID: id}, conn, conv)
		if err != nil {
			t.Fatalf("ProcessTask(%d) = %v", id, err)
		}
		if out != nil {
			t.Errorf("ProcessTask(%d): got outcome %+v, wanted nil", id, out)
		}
		if diff := cmp.Diff([]string{"Project code description: CLI"}, conv.Contents()); diff != "" {
			t.Errorf("conversation (-want +got):\n%s", diff)
		}
	}
}

func TestRequiredFields(t *testing.T) {
	err := pipeline.ValidateConnection(NewGitlab(memstore.New()), &pipeline.Connection{})
	if err == nil {
		t.Fatal("ValidateConnection() = nil, wanted missing repository")
	}
	if got, want := NewGithub(nil).Name(), "Github Context Agent"; got != want {
		t.Errorf("Name(): got = %q, wanted = %q", got, want)
	}
}
