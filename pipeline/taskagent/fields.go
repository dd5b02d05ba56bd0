/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package taskagent

import (
	"strconv"
	"strings"

	"chainguard.dev/reviewpipe/agents/message"
	"chainguard.dev/reviewpipe/pipeline"
)

// Field keys shared by several agents.
const (
	FieldRepository      = "repository"
	FieldCodeDescription = "codeDescription"
	FieldSystemPrompt    = "systemPrompt"
	FieldSampleInput     = "sampleInput"
	FieldSampleOutput    = "sampleOutput"
	FieldAIBaseURL       = "aiBaseUrl"
)

// SampleFields are the few-shot fields of the LLM backed agents.
func SampleFields() []pipeline.FieldSpec {
	return []pipeline.FieldSpec{
		{Key: FieldSampleInput, Label: "Sample input", Type: pipeline.FieldText},
		{Key: FieldSampleOutput, Label: "Sample output", Type: pipeline.FieldText},
	}
}

// AIBaseURLField lets a connection point at an OpenAI compatible endpoint.
var AIBaseURLField = pipeline.FieldSpec{
	Key:         FieldAIBaseURL,
	Label:       "AI base URL",
	Description: `e.g. "https://api.openai.com/v1", "http://localai/v1"`,
	Type:        pipeline.FieldString,
}

// Samples returns the few-shot turns configured on conn, or nothing unless
// both the input and the output are set. The output turn takes role.
func Samples(conn *pipeline.Connection, role message.Role) []message.Message {
	in, out := conn.ConfigValue(FieldSampleInput), conn.ConfigValue(FieldSampleOutput)
	if in == "" || out == "" {
		return nil
	}
	return []message.Message{message.User(in), {Role: role, Content: out}}
}

// IntValue parses the integer setting field of conn. Blank or malformed
// values yield def.
func IntValue(conn *pipeline.Connection, field string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(conn.ConfigValue(field)))
	if err != nil {
		return def
	}
	return n
}
