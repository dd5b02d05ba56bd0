/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	taskRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewpipe_task_runs_total",
			Help: "Task runs by final status",
		},
		[]string{"status"},
	)

	agentInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewpipe_agent_invocations_total",
			Help: "Agent invocations by result (ok, skipped, error)",
		},
		[]string{"agent_type", "result"},
	)

	agentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reviewpipe_agent_duration_seconds",
			Help:    "Time spent in a single agent invocation",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"agent_type"},
	)

	retentionDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reviewpipe_retention_deleted_tasks_total",
			Help: "Tasks removed by the retention policy",
		},
	)
)
