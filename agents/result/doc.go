/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package result pulls fenced payloads out of model responses. The
// completion client uses it to recover tool calls that a model wrote into
// its text instead of the tool call fields.
package result
