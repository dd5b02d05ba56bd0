/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package completion

import (
	"strings"
	"testing"

	"chainguard.dev/reviewpipe/agents/message"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func choiceWith(content string) Choice {
	return Choice{Message: message.Assistant(content), FinishReason: FinishStop}
}

var ignoreIDs = cmpopts.IgnoreFields(message.ToolCall{}, "ID")

func TestRecoverMultiToolUse(t *testing.T) {
	c := choiceWith("```multi_tool_use.parallel```\n```json\n" +
		`{"tool_uses":[{"recipient_name":"functions.getFileContent","parameters":"{\"path\":\"a.go\"}"}]}` + "```")

	if n := RecoverMultiToolUse(&c); n != 1 {
		t.Fatalf("RecoverMultiToolUse(): got = %d, wanted = 1", n)
	}
	if c.FinishReason != FinishToolCalls {
		t.Errorf("finish reason: got = %q, wanted = %q", c.FinishReason, FinishToolCalls)
	}
	if c.Message.Content != "" {
		t.Errorf("content: got = %q, wanted empty", c.Message.Content)
	}
	want := []message.ToolCall{{Name: "getFileContent", Arguments: `{"path":"a.go"}`}}
	if diff := cmp.Diff(want, c.Message.ToolCalls, ignoreIDs); diff != "" {
		t.Errorf("tool calls (-want, +got): %s", diff)
	}
	if !strings.HasPrefix(c.Message.ToolCalls[0].ID, "call_") {
		t.Errorf("tool call id: got = %q, wanted call_ prefix", c.Message.ToolCalls[0].ID)
	}

	// Idempotent on its own output.
	before := c
	before.Message = c.Message.Clone()
	if n := RecoverMultiToolUse(&c); n != 0 {
		t.Errorf("second RecoverMultiToolUse(): got = %d, wanted = 0", n)
	}
	if diff := cmp.Diff(before, c); diff != "" {
		t.Errorf("second pass changed the choice (-want, +got): %s", diff)
	}
}

func TestRecoverMultiToolUseSkipsInvalidEntries(t *testing.T) {
	c := choiceWith("```multi_tool_use.parallel```\n```json\n" + `{"tool_uses":[
		{"recipient_name":"functions.getFileContent","parameters":"{not json"},
		{"recipient_name":"functions.addReviewCommentToCodeBlock","parameters":{"path":"b.go","line":3,"body":"typo"}}
	]}` + "\n```")

	if n := RecoverMultiToolUse(&c); n != 1 {
		t.Fatalf("RecoverMultiToolUse(): got = %d, wanted = 1", n)
	}
	want := []message.ToolCall{{Name: "addReviewCommentToCodeBlock", Arguments: `{"path":"b.go","line":3,"body":"typo"}`}}
	if diff := cmp.Diff(want, c.Message.ToolCalls, ignoreIDs); diff != "" {
		t.Errorf("tool calls (-want, +got): %s", diff)
	}
}

func TestRecoverKeepsArgumentsVerbatim(t *testing.T) {
	c := choiceWith("```multi_tool_use.parallel```\n```json\n" + `{"tool_uses":[
		{"recipient_name":"functions.lookup","parameters":"{ \"id\": 12345678901234567891, \"ratio\": 1.50e0 }"}
	]}` + "\n```")

	if n := RecoverMultiToolUse(&c); n != 1 {
		t.Fatalf("RecoverMultiToolUse(): got = %d, wanted = 1", n)
	}
	if got, want := c.Message.ToolCalls[0].Arguments, `{"id":12345678901234567891,"ratio":1.50e0}`; got != want {
		t.Errorf("arguments: got = %s, wanted = %s", got, want)
	}
}

func TestRecoverMultiToolUseNoTrigger(t *testing.T) {
	for _, content := range []string{
		"Looks good to me.",
		"```go\nfmt.Println()\n```",
		"```multi_tool_use.parallel```\nnot json at all",
		"",
	} {
		c := choiceWith(content)
		if n := RecoverMultiToolUse(&c); n != 0 {
			t.Errorf("RecoverMultiToolUse(%q): got = %d, wanted = 0", content, n)
		}
		if c.Message.Content != content || c.FinishReason != FinishStop {
			t.Errorf("RecoverMultiToolUse(%q) modified the choice: %+v", content, c)
		}
	}
}

func TestRecoverInlineToolCalls(t *testing.T) {
	c := choiceWith(`I will look at the file.
<tool_call>{"name":"getFileContent","arguments":{"path":"a.go"}}</tool_call>
<tool_call>
{"name":"functions.getFileContent","arguments":"{\"path\":\"b.go\"}"}
</tool_call>
<tool_call>{"arguments":{}}</tool_call>
multi_tool_use.parallel`)

	if n := RecoverInlineToolCalls(&c); n != 2 {
		t.Fatalf("RecoverInlineToolCalls(): got = %d, wanted = 2", n)
	}
	want := []message.ToolCall{
		{Name: "getFileContent", Arguments: `{"path":"a.go"}`},
		{Name: "getFileContent", Arguments: `{"path":"b.go"}`},
	}
	if diff := cmp.Diff(want, c.Message.ToolCalls, ignoreIDs); diff != "" {
		t.Errorf("tool calls (-want, +got): %s", diff)
	}
	if c.Message.Content != "I will look at the file." {
		t.Errorf("content: got = %q, wanted = %q", c.Message.Content, "I will look at the file.")
	}
	if c.FinishReason != FinishToolCalls {
		t.Errorf("finish reason: got = %q, wanted = %q", c.FinishReason, FinishToolCalls)
	}

	if n := RecoverInlineToolCalls(&c); n != 0 {
		t.Errorf("second RecoverInlineToolCalls(): got = %d, wanted = 0", n)
	}
}

func TestRecoverInlineToolCallsOnlyInvalid(t *testing.T) {
	c := choiceWith("before <tool_call>{broken</tool_call> after")
	if n := RecoverInlineToolCalls(&c); n != 0 {
		t.Fatalf("RecoverInlineToolCalls(): got = %d, wanted = 0", n)
	}
	if c.FinishReason != FinishStop {
		t.Errorf("finish reason: got = %q, wanted = %q", c.FinishReason, FinishStop)
	}
	if c.Message.Content != "before  after" {
		t.Errorf("content: got = %q, wanted tags stripped", c.Message.Content)
	}
}
