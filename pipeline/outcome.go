/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import "time"

// Outcome records what one agent produced for a task. Outcomes are
// immutable once saved.
type Outcome struct {
	ID        int64          `json:"id"`
	TaskID    int64          `json:"task_id"`
	AgentID   int64          `json:"agent_id,omitempty"`
	AgentName string         `json:"agent_name"`
	Input     string         `json:"input"`
	Output    string         `json:"output"`
	Metrics   map[string]any `json:"metrics,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// OutcomeFromOutput returns an outcome carrying only output.
func OutcomeFromOutput(output string) *Outcome {
	return &Outcome{Output: output}
}
