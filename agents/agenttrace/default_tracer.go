/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"

	"github.com/chainguard-dev/clog"
)

// NewDefaultTracer creates a tracer that logs completed traces to clog at debug level.
func NewDefaultTracer[T any](ctx context.Context) Tracer[T] {
	logger := clog.FromContext(ctx)

	return Callbacks[T]{func(trace *Trace[T]) {
		logger.With(
			"trace_id", trace.ID,
			"task", trace.ExecContext.TaskKey(),
			"agent_type", trace.ExecContext.AgentType,
			"duration_ms", trace.Duration().Milliseconds(),
			"tool_calls", len(trace.ToolCalls),
		).Debug("Tool loop trace completed", "trace", trace.String())
	}}
}
