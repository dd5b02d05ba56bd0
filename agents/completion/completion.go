/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package completion

import (
	"context"
	"fmt"

	"chainguard.dev/reviewpipe/agents/message"
	"chainguard.dev/reviewpipe/agents/toolcall"
)

// FinishReason is the provider-independent reason a completion stopped.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
	FinishError     FinishReason = "error"
)

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Choice is one candidate answer.
type Choice struct {
	Index        int             `json:"index"`
	Message      message.Message `json:"message"`
	FinishReason FinishReason    `json:"finish_reason"`
}

// Completion is the canonical response shape every adapter normalizes to.
type Completion struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// First returns the first choice, or a zero choice when there is none.
func (c *Completion) First() Choice {
	if c == nil || len(c.Choices) == 0 {
		return Choice{Message: message.Assistant(""), FinishReason: FinishStop}
	}
	return c.Choices[0]
}

// Credential selects the model and endpoint for a call.
type Credential struct {
	APIURL string
	Token  string
	Model  string
}

// Request is what an adapter translates into a provider call.
type Request struct {
	Credential
	Messages []message.Message
	Tools    []toolcall.Definition
}

// Adapter speaks one provider wire protocol.
type Adapter interface {
	// Source names the provider family. It partitions the response cache.
	Source() string
	// Complete performs one request/response exchange and normalizes the
	// result. Recovery passes run in the Client, not in the adapter.
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// ProviderError wraps a failure reported by a provider or its transport.
type ProviderError struct {
	Provider   string
	Model      string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s completion for %s failed with status %d: %v", e.Provider, e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s completion for %s failed: %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// HTTPStatus exposes the status code to retry classifiers.
func (e *ProviderError) HTTPStatus() int { return e.StatusCode }
