/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package completion

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"chainguard.dev/reviewpipe/agents/message"
	"chainguard.dev/reviewpipe/agents/result"
	"github.com/google/uuid"
)

const (
	// multiToolMarker is the fenced label some models emit instead of
	// structured parallel tool calls.
	multiToolMarker = "multi_tool_use.parallel"
	functionsPrefix = "functions."
)

// A Pass rewrites a choice whose content encodes tool calls as plain text.
// It returns the number of tool calls it recovered; zero means the choice
// was left untouched.
type Pass struct {
	Name  string
	Apply func(*Choice) int
}

// DefaultPasses are applied in order to every choice of every completion.
var DefaultPasses = []Pass{
	{Name: "multi_tool_use", Apply: RecoverMultiToolUse},
	{Name: "inline_tool_call", Apply: RecoverInlineToolCalls},
}

func newCallID() string {
	return "call_" + uuid.NewString()
}

type multiToolBody struct {
	ToolUses []struct {
		RecipientName string          `json:"recipient_name"`
		Parameters    json.RawMessage `json:"parameters"`
	} `json:"tool_uses"`
}

// RecoverMultiToolUse handles content of the form
//
//	```multi_tool_use.parallel```
//	```json
//	{"tool_uses":[{"recipient_name":"functions.X","parameters":"{...}"}]}
//	```
//
// Parameters may be a JSON-encoded string or an object. Entries whose
// parameters are not valid JSON are skipped.
func RecoverMultiToolUse(c *Choice) int {
	label, rest, ok := result.OpenFence(c.Message.Content)
	if !ok || label != multiToolMarker {
		return 0
	}
	body := strings.TrimSpace(strings.TrimSuffix(result.ExtractJSON(rest), "```"))

	var parsed multiToolBody
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return 0
	}

	var calls []message.ToolCall
	for _, use := range parsed.ToolUses {
		name := strings.TrimPrefix(use.RecipientName, functionsPrefix)
		args, ok := normalizeArguments(use.Parameters)
		if name == "" || !ok {
			continue
		}
		calls = append(calls, message.ToolCall{ID: newCallID(), Name: name, Arguments: args})
	}
	if len(calls) == 0 {
		return 0
	}

	c.Message.Content = ""
	c.Message.ToolCalls = append(c.Message.ToolCalls, calls...)
	c.FinishReason = FinishToolCalls
	return len(calls)
}

var (
	inlineToolCall = regexp.MustCompile(`(?s)<tool_call>\s*(.*?)\s*</tool_call>`)
	bareMarker     = regexp.MustCompile(`\b` + regexp.QuoteMeta(multiToolMarker) + `\b`)
)

type inlineBody struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// RecoverInlineToolCalls handles <tool_call>{"name":..,"arguments":..}</tool_call>
// pairs embedded in the content. Every pair is removed from the content,
// along with bare multi_tool_use.parallel tokens; bodies without a name or
// with invalid arguments are dropped.
func RecoverInlineToolCalls(c *Choice) int {
	content := c.Message.Content
	matches := inlineToolCall.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return 0
	}

	var calls []message.ToolCall
	for _, m := range matches {
		var body inlineBody
		if err := json.Unmarshal([]byte(m[1]), &body); err != nil || body.Name == "" {
			continue
		}
		args, ok := normalizeArguments(body.Arguments)
		if !ok {
			continue
		}
		calls = append(calls, message.ToolCall{
			ID:        newCallID(),
			Name:      strings.TrimPrefix(body.Name, functionsPrefix),
			Arguments: args,
		})
	}

	content = inlineToolCall.ReplaceAllString(content, "")
	content = bareMarker.ReplaceAllString(content, "")
	c.Message.Content = strings.TrimSpace(content)

	if len(calls) > 0 {
		c.Message.ToolCalls = append(c.Message.ToolCalls, calls...)
		c.FinishReason = FinishToolCalls
	}
	return len(calls)
}

// normalizeArguments accepts arguments encoded either as a JSON object or as
// a string holding a JSON document, and returns compact JSON text.
func normalizeArguments(raw json.RawMessage) (string, bool) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return "{}", true
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		raw = json.RawMessage(strings.TrimSpace(s))
		if len(raw) == 0 {
			return "{}", true
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", false
	}
	return buf.String(), true
}
