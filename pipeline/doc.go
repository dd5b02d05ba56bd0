/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package pipeline defines the task domain shared by the orchestrator, the
agents and the stores.

A Task is one unit of work, usually a pull or merge request. A Project
lists Connections in the order they run; each Connection binds an
AgentConfig (credentials and defaults) to per-project settings. An Agent
processes a task given its connection and the conversation that the run
threads through every agent, and may return an Outcome to persist.

Collaborators the agents depend on are declared here as interfaces:
stores, review platforms, ticket providers, notification transports and the
event publisher.
*/
package pipeline
