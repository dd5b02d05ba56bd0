/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package codereview

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"chainguard.dev/reviewpipe/agents/completion"
	"chainguard.dev/reviewpipe/agents/message"
	"chainguard.dev/reviewpipe/agents/tokens"
	"chainguard.dev/reviewpipe/agents/toolcall"
	"chainguard.dev/reviewpipe/pipeline"
	"chainguard.dev/reviewpipe/pipeline/store/memstore"
	"chainguard.dev/reviewpipe/platforms"
	"github.com/google/go-cmp/cmp"
)

type request struct {
	msgs  []message.Message
	tools []string
}

// scripted replays completions in order, repeating the last one.
type scripted struct {
	mu       sync.Mutex
	replies  []*completion.Completion
	requests []request
}

func (s *scripted) Complete(_ context.Context, _ completion.Credential, msgs []message.Message, tools ...toolcall.Definition) (*completion.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := request{msgs: msgs}
	for _, t := range tools {
		r.tools = append(r.tools, t.Name)
	}
	s.requests = append(s.requests, r)
	return s.replies[min(len(s.requests), len(s.replies))-1], nil
}

func text(content string) *completion.Completion {
	return &completion.Completion{
		Choices: []completion.Choice{{Message: message.Assistant(content), FinishReason: completion.FinishStop}},
		Usage:   completion.Usage{TotalTokens: 7},
	}
}

func toolUse(calls ...message.ToolCall) *completion.Completion {
	m := message.Assistant("")
	m.ToolCalls = calls
	return &completion.Completion{
		Choices: []completion.Choice{{Message: m, FinishReason: completion.FinishToolCalls}},
		Usage:   completion.Usage{TotalTokens: 5},
	}
}

type submission struct {
	summary  string
	comments []pipeline.InlineComment
}

type fakePlatform struct {
	files     map[string]string
	submitted []submission
	err       error
}

func (f *fakePlatform) Provider() string { return "fake" }

func (f *fakePlatform) FetchChangeSet(context.Context, *pipeline.Connection, int) (*pipeline.ChangeRecord, error) {
	return nil, pipeline.ErrNotFound
}

func (f *fakePlatform) FetchFileContent(_ context.Context, _ *pipeline.Connection, _ *pipeline.ChangeRecord, path string) (string, error) {
	content, ok := f.files[path]
	if !ok {
		return "", errors.New("file not found")
	}
	return content, nil
}

func (f *fakePlatform) SubmitReview(_ context.Context, _ *pipeline.Connection, _ *pipeline.ChangeRecord, summary string, comments []pipeline.InlineComment) error {
	if f.err != nil {
		return f.err
	}
	f.submitted = append(f.submitted, submission{summary: summary, comments: comments})
	return nil
}

func (f *fakePlatform) ListOpen(context.Context, *pipeline.Connection) ([]pipeline.ItemSummary, error) {
	return nil, nil
}

func setup(t *testing.T) (*memstore.Store, *pipeline.Task) {
	t.Helper()
	store := memstore.New()
	if err := store.SaveChange(context.Background(), &pipeline.ChangeRecord{TaskID: 1, URL: "https://github.com/acme/widgets/pull/4"}); err != nil {
		t.Fatalf("SaveChange() = %v", err)
	}
	return store, &pipeline.Task{ID: 1}
}

func byteCounter() *tokens.Counter {
	return tokens.WithEncoder(func(s string) (int, error) { return len(s), nil })
}

func TestGithubReview(t *testing.T) {
	store, task := setup(t)
	client := &scripted{replies: []*completion.Completion{
		toolUse(
			message.ToolCall{ID: "c1", Name: ToolAddComment, Arguments: `{"path":"a.go","start_line":2,"line":"4","body":"off by one"}`},
			message.ToolCall{ID: "c2", Name: ToolGetFileContent, Arguments: `{"path":"a.go"}`},
			message.ToolCall{ID: "c3", Name: ToolAddComment, Arguments: `{"path":"a.go"}`},
		),
		text("One problem found."),
	}}
	platform := &fakePlatform{files: map[string]string{"a.go": "package a"}}
	agent, err := NewGithub(client, platform, store, WithRoundPause(0), WithCounter(byteCounter()))
	if err != nil {
		t.Fatalf("NewGithub() = %v", err)
	}
	conn := &pipeline.Connection{Config: map[string]string{"reviewCommentPrefix": "AI"}}
	conv := message.NewConversation(message.User("Pull request code changes: ..."))

	out, err := agent.ProcessTask(context.Background(), task, conn, conv)
	if err != nil {
		t.Fatalf("ProcessTask() = %v", err)
	}

	if got := len(client.requests); got != 2 {
		t.Fatalf("completions: got = %d, wanted = 2", got)
	}
	first := client.requests[0]
	if diff := cmp.Diff([]string{ToolAddComment, ToolGetFileContent}, first.tools); diff != "" {
		t.Errorf("offered tools (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]message.Message{message.System(GithubPrompt), message.User("Pull request code changes: ...")}, first.msgs); diff != "" {
		t.Errorf("first request (-want +got):\n%s", diff)
	}

	results := client.requests[1].msgs[3:]
	wantResults := []string{
		"Saved comment to a.go at line 4 with body: off by one",
		"package a",
		"line parameter is required",
	}
	if diff := cmp.Diff(wantResults, message.Contents(results)); diff != "" {
		t.Errorf("tool results (-want +got):\n%s", diff)
	}

	wantSub := []submission{{
		summary:  "One problem found.",
		comments: []pipeline.InlineComment{{Path: "a.go", Body: "off by one", Line: 4, StartLine: 2}},
	}}
	if diff := cmp.Diff(wantSub, platform.submitted, cmp.AllowUnexported(submission{})); diff != "" {
		t.Errorf("submitted (-want +got):\n%s", diff)
	}

	wantOut := "AI\nOne problem found.\n" + `{"path":"a.go","body":"off by one","line":4,"start_line":2}`
	if out.Output != wantOut {
		t.Errorf("Output: got = %q, wanted = %q", out.Output, wantOut)
	}
	if !strings.HasPrefix(out.Input, GithubPrompt+"\nPull request code changes: ...") {
		t.Errorf("Input: got = %q", out.Input)
	}
	if got, want := out.Metrics["outputTokens"], len("One problem found."); got != want {
		t.Errorf("outputTokens: got = %v, wanted = %v", got, want)
	}
	if got, want := out.Metrics["realTokensCount"], int64(12); got != want {
		t.Errorf("realTokensCount: got = %v, wanted = %v", got, want)
	}
}

func TestGitlabReviewWithoutTools(t *testing.T) {
	store, task := setup(t)
	client := &scripted{replies: []*completion.Completion{text("BOT VALIDATION PASSED")}}
	platform := &fakePlatform{}
	agent, err := NewGitlab(client, platform, store, WithRoundPause(0), WithCounter(byteCounter()))
	if err != nil {
		t.Fatalf("NewGitlab() = %v", err)
	}
	conn := &pipeline.Connection{Config: map[string]string{
		"maxToolCalls": "0",
		"sampleInput":  "diff",
		"sampleOutput": "looks fine",
	}}
	conv := message.NewConversation(message.User("Merge request code changes: ..."))

	out, err := agent.ProcessTask(context.Background(), task, conn, conv)
	if err != nil {
		t.Fatalf("ProcessTask() = %v", err)
	}
	if got := len(client.requests); got != 1 {
		t.Fatalf("completions: got = %d, wanted = 1", got)
	}
	if got := client.requests[0].tools; got != nil {
		t.Errorf("tools offered with maxToolCalls=0: %v", got)
	}
	want := []message.Message{
		message.System(GitlabPrompt),
		message.User("diff"),
		message.System("looks fine"),
		message.User("Merge request code changes: ..."),
	}
	if diff := cmp.Diff(want, client.requests[0].msgs); diff != "" {
		t.Errorf("request (-want +got):\n%s", diff)
	}
	if len(platform.submitted) != 1 || platform.submitted[0].summary != "BOT VALIDATION PASSED" {
		t.Errorf("submitted: got = %+v", platform.submitted)
	}
	if got, want := out.Output, "\nBOT VALIDATION PASSED"; got != want {
		t.Errorf("Output: got = %q, wanted = %q", got, want)
	}
}

func TestGitlabOffersNoCommentTool(t *testing.T) {
	store, task := setup(t)
	client := &scripted{replies: []*completion.Completion{text("ok")}}
	agent, err := NewGitlab(client, &fakePlatform{}, store, WithRoundPause(0))
	if err != nil {
		t.Fatalf("NewGitlab() = %v", err)
	}
	// Tool names in user or assistant turns do not declare tools here.
	conv := message.NewConversation(message.Assistant("I will call " + ToolAddComment))
	conn := &pipeline.Connection{Config: map[string]string{"systemPrompt": "Review."}}

	if _, err := agent.ProcessTask(context.Background(), task, conn, conv); err != nil {
		t.Fatalf("ProcessTask() = %v", err)
	}
	if got := client.requests[0].tools; got != nil {
		t.Errorf("tools: got = %v, wanted none", got)
	}
	if got := client.requests[0].msgs[0].Content; got != "Review." {
		t.Errorf("system prompt: got = %q", got)
	}
}

func TestBudgetExceeded(t *testing.T) {
	store, task := setup(t)
	platform := &fakePlatform{}
	agent, err := NewGithub(&scripted{replies: []*completion.Completion{text("x")}}, platform, store, WithCounter(byteCounter()))
	if err != nil {
		t.Fatalf("NewGithub() = %v", err)
	}
	conn := &pipeline.Connection{Config: map[string]string{"maxInputTokens": "10"}}

	_, err = agent.ProcessTask(context.Background(), task, conn, message.NewConversation())
	if err == nil || !strings.Contains(err.Error(), "budget is 10") {
		t.Errorf("ProcessTask() = %v, wanted budget error", err)
	}
	if len(platform.submitted) != 0 {
		t.Error("review submitted despite the budget error")
	}
}

func TestNoChangeSetSkips(t *testing.T) {
	client := &scripted{replies: []*completion.Completion{text("x")}}
	agent, err := NewGithub(client, &fakePlatform{}, memstore.New())
	if err != nil {
		t.Fatalf("NewGithub() = %v", err)
	}
	out, err := agent.ProcessTask(context.Background(), &pipeline.Task{ID: 9}, &pipeline.Connection{}, message.NewConversation())
	if err != nil || out != nil {
		t.Errorf("ProcessTask() = %v, %v; wanted nil, nil", out, err)
	}
	if len(client.requests) != 0 {
		t.Error("completion called without a change set")
	}
}

func TestSubmissionFailure(t *testing.T) {
	store, task := setup(t)
	serr := &platforms.SubmissionError{Provider: "github", Target: "acme/widgets#4", Err: errors.New("422")}
	agent, err := NewGithub(&scripted{replies: []*completion.Completion{text("x")}}, &fakePlatform{err: serr}, store, WithCounter(byteCounter()))
	if err != nil {
		t.Fatalf("NewGithub() = %v", err)
	}
	_, err = agent.ProcessTask(context.Background(), task, &pipeline.Connection{}, message.NewConversation(message.User("diff")))
	var got *platforms.SubmissionError
	if !errors.As(err, &got) {
		t.Errorf("ProcessTask() = %v, wanted *SubmissionError", err)
	}
}

func TestFieldsAndNames(t *testing.T) {
	agent, err := NewGitlab(&scripted{}, &fakePlatform{}, memstore.New())
	if err != nil {
		t.Fatalf("NewGitlab() = %v", err)
	}
	if got, want := agent.Name(), "Gitlab Code Reviewer Agent"; got != want {
		t.Errorf("Name(): got = %q, wanted = %q", got, want)
	}
	var cerr *pipeline.ConfigurationError
	if err := pipeline.ValidateConnection(agent, &pipeline.Connection{}); !errors.As(err, &cerr) || cerr.Field != "gitlabToken" {
		t.Errorf("ValidateConnection() = %v, wanted missing gitlabToken", err)
	}
	if _, err := NewGithub(nil, &fakePlatform{}, memstore.New()); err == nil {
		t.Error("NewGithub(nil client) = nil, wanted error")
	}
}

func TestLimits(t *testing.T) {
	for _, tt := range []struct {
		budget, calls      string
		wantBudget, wantRn int
	}{
		{"", "", 100000, 15},
		{"0", "0", 100000, 0},
		{"abc", "-3", 100000, 15},
		{"5000", "4", 5000, 4},
	} {
		b, r := limits(&pipeline.Connection{Config: map[string]string{"maxInputTokens": tt.budget, "maxToolCalls": tt.calls}})
		if b != tt.wantBudget || r != tt.wantRn {
			t.Errorf("limits(%q, %q): got = %d, %d, wanted = %d, %d", tt.budget, tt.calls, b, r, tt.wantBudget, tt.wantRn)
		}
	}
}
