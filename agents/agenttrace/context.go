/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
)

// ExecutionContext describes which task and agent an LLM interaction
// belongs to. It enriches spans and metrics.
type ExecutionContext struct {
	TaskID    int64  `json:"task_id,omitempty"`
	ProjectID int64  `json:"project_id,omitempty"`
	AgentType string `json:"agent_type,omitempty"` // e.g. "GithubCodeReviewerAgent"
	Source    string `json:"source,omitempty"`     // e.g. "github-pr"
	Round     int    `json:"round,omitempty"`      // tool loop round, 1-based
}

// TaskKey renders the task identity as "task:<id>", or "" when unset.
func (e ExecutionContext) TaskKey() string {
	if e.TaskID == 0 {
		return ""
	}
	return "task:" + strconv.FormatInt(e.TaskID, 10)
}

// EnrichAttributes adds execution context attributes to the provided base attributes.
//
// Only bounded labels are added. TaskID stays out of metrics since every task
// would create a new time series; it is kept on spans instead.
func (e ExecutionContext) EnrichAttributes(baseAttrs []attribute.KeyValue) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, len(baseAttrs), len(baseAttrs)+3)
	copy(attrs, baseAttrs)

	if e.AgentType != "" {
		attrs = append(attrs, attribute.String("agent_type", e.AgentType))
	}
	if e.Source != "" {
		attrs = append(attrs, attribute.String("source", e.Source))
	}
	attrs = append(attrs, attribute.Int("round", e.Round))

	return attrs
}

// Enricher adapts EnrichAttributes to a context-driven metrics enricher.
func Enricher(ctx context.Context, baseAttrs []attribute.KeyValue) []attribute.KeyValue {
	return GetExecutionContext(ctx).EnrichAttributes(baseAttrs)
}

type contextKey string

const executionContextKey contextKey = "execution_context"

// WithExecutionContext adds execution context to the Go context
func WithExecutionContext(ctx context.Context, execCtx ExecutionContext) context.Context {
	return context.WithValue(ctx, executionContextKey, execCtx)
}

// WithRound returns ctx with the round of its execution context replaced.
func WithRound(ctx context.Context, round int) context.Context {
	execCtx := GetExecutionContext(ctx)
	execCtx.Round = round
	return WithExecutionContext(ctx, execCtx)
}

// GetExecutionContext retrieves execution context from the Go context
func GetExecutionContext(ctx context.Context) ExecutionContext {
	if val := ctx.Value(executionContextKey); val != nil {
		if execCtx, ok := val.(ExecutionContext); ok {
			return execCtx
		}
	}
	return ExecutionContext{}
}
