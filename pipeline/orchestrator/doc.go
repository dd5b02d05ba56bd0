/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package orchestrator runs a task through its project's ordered agents and
// drives the task lifecycle around those runs.
//
// An Orchestrator threads one conversation through every connection of the
// project, persists each outcome, and ends the run Completed or Failed.
// A Lifecycle reacts to task events: it runs tasks that are ready, applies
// retention after completion, and marks tasks completed when their external
// item closes.
package orchestrator
