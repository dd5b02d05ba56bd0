/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package codereview

import (
	"context"
	"fmt"
	"sync"

	"chainguard.dev/reviewpipe/agents/agenttrace"
	"chainguard.dev/reviewpipe/agents/toolcall"
	"chainguard.dev/reviewpipe/pipeline"
)

// Tool names. The model is offered a tool only when its name occurs in the
// prompt.
const (
	ToolAddComment     = "addReviewCommentToCodeBlock"
	ToolGetFileContent = "getFileContent"
)

type commentArgs struct {
	Path      string `json:"path" jsonschema:"required,description=The relative path to the file that necessitates a comment"`
	StartLine int    `json:"start_line,omitempty" jsonschema:"description=The start line of the code block. Omit for a single line comment"`
	Line      int    `json:"line" jsonschema:"required,description=The last line of the code block to comment on"`
	Body      string `json:"body" jsonschema:"required,description=The text of the review comment"`
}

type fileArgs struct {
	Path string `json:"path" jsonschema:"required,description=The relative path to the file"`
}

// commentSink collects the inline comments of one review run.
type commentSink struct {
	mu       sync.Mutex
	comments []pipeline.InlineComment
}

func (s *commentSink) all() []pipeline.InlineComment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.comments
}

func (s *commentSink) tool() toolcall.Tool {
	return toolcall.Tool{
		Def: toolcall.DefinitionFor[commentArgs](ToolAddComment,
			"Add a review comment to a specific block of code in the pull request diff"),
		Handler: func(_ context.Context, call toolcall.ToolCall, _ *agenttrace.Trace[string]) (string, error) {
			path, err := toolcall.Param[string](call, "path")
			if err != nil {
				return "", err
			}
			line, err := toolcall.Param[int](call, "line")
			if err != nil {
				return "", err
			}
			body, err := toolcall.Param[string](call, "body")
			if err != nil {
				return "", err
			}
			start, err := toolcall.OptionalParam(call, "start_line", 0)
			if err != nil {
				return "", err
			}

			s.mu.Lock()
			s.comments = append(s.comments, pipeline.InlineComment{Path: path, Body: body, Line: line, StartLine: start})
			s.mu.Unlock()
			return fmt.Sprintf("Saved comment to %s at line %d with body: %s", path, line, body), nil
		},
	}
}

func fileContentTool(platform pipeline.ReviewPlatform, conn *pipeline.Connection, change *pipeline.ChangeRecord) toolcall.Tool {
	return toolcall.Tool{
		Def: toolcall.DefinitionFor[fileArgs](ToolGetFileContent,
			"Get the content of a file at the head of the change"),
		Handler: func(ctx context.Context, call toolcall.ToolCall, _ *agenttrace.Trace[string]) (string, error) {
			path, err := toolcall.Param[string](call, "path")
			if err != nil {
				return "", err
			}
			content, err := platform.FetchFileContent(ctx, conn, change, path)
			if err != nil {
				return "Error: " + err.Error(), nil
			}
			return content, nil
		},
	}
}
