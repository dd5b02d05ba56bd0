/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package agenttrace records what happens inside an agentic tool loop.

  - ExecutionContext: task and agent metadata used to enrich spans and metrics
  - Trace[T]: one tool loop run, from prompt to result
  - ToolCall[T]: an individual tool invocation within a trace
  - Tracer[T]: creates traces and receives them once complete

# Usage

	ctx = agenttrace.WithExecutionContext(ctx, agenttrace.ExecutionContext{
		TaskID:    42,
		AgentType: "GithubCodeReviewerAgent",
		Source:    "github-pr",
	})

	trace := agenttrace.StartTrace[string](ctx, prompt)
	tc := trace.StartToolCall("call_1", "getFileContent", map[string]any{"path": "main.go"})
	tc.Complete(content, nil)
	trace.Complete(summary, nil)

Without a tracer in the context, completed traces are logged at debug level.
*/
package agenttrace
