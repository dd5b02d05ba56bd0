/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package taskagent holds what the agent implementations under it share.
// Each subpackage provides pipeline.Agent values keyed by a stable type
// tag:
//
//   - changecontext: GithubContextAgent, GitlabContextAgent
//   - jiracontext: JiraContextAgent
//   - transform: TransformContextAgent
//   - codereview: GithubCodeReviewerAgent, GitlabCodeReviewerAgent
//   - slacknotify: SlackNotificationAgent
package taskagent
