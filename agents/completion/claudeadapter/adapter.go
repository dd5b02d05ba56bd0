/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package claudeadapter speaks the Anthropic Messages protocol.
package claudeadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"chainguard.dev/reviewpipe/agents/completion"
	"chainguard.dev/reviewpipe/agents/message"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
)

// Source is the cache partition for Claude responses.
const Source = "anthropic"

// Adapter translates canonical requests to Anthropic Messages calls.
type Adapter struct {
	maxTokens     int64
	clientOptions []option.RequestOption
}

var _ completion.Adapter = (*Adapter)(nil)

// Option is a functional option for configuring the adapter
type Option func(*Adapter) error

// WithMaxTokens sets the maximum tokens for responses
func WithMaxTokens(tokens int64) Option {
	return func(a *Adapter) error {
		if tokens <= 0 {
			return fmt.Errorf("max tokens must be positive, got %d", tokens)
		}
		a.maxTokens = tokens
		return nil
	}
}

// WithClientOptions appends SDK request options to every call.
func WithClientOptions(opts ...option.RequestOption) Option {
	return func(a *Adapter) error {
		a.clientOptions = append(a.clientOptions, opts...)
		return nil
	}
}

// New returns a Claude adapter.
func New(opts ...Option) (*Adapter, error) {
	a := &Adapter{maxTokens: 4096}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return a, nil
}

func (a *Adapter) Source() string { return Source }

func (a *Adapter) client(cred completion.Credential) anthropic.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cred.Token),
		// Retries are decided by the completion client.
		option.WithMaxRetries(0),
	}
	if cred.APIURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(cred.APIURL, "/")+"/"))
	}
	return anthropic.NewClient(append(opts, a.clientOptions...)...)
}

// Complete implements completion.Adapter.
func (a *Adapter) Complete(ctx context.Context, req completion.Request) (*completion.Completion, error) {
	client := a.client(req.Credential)
	msg, err := client.Messages.New(ctx, a.BuildParams(req))
	if err != nil {
		pe := &completion.ProviderError{Provider: Source, Model: req.Model, Err: err}
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			pe.StatusCode = apiErr.StatusCode
		}
		return nil, pe
	}
	return Normalize(msg), nil
}

// BuildParams translates a canonical request: system messages become the
// top-level system prompt, tool results become user turns of tool_result
// blocks, and any role other than assistant is sent as user.
func (a *Adapter) BuildParams(req completion.Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: a.maxTokens,
		Messages:  []anthropic.MessageParam{},
	}

	for _, m := range req.Messages {
		if m.Role == message.RoleSystem {
			if m.Content != "" {
				params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
			}
			continue
		}

		role := anthropic.MessageParamRoleUser
		var blocks []anthropic.ContentBlockParamUnion
		switch m.Role {
		case message.RoleAssistant:
			role = anthropic.MessageParamRoleAssistant
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: rawArguments(tc.Arguments),
					},
				})
			}
		case message.RoleTool:
			blocks = append(blocks, anthropic.ContentBlockParamUnion{
				OfToolResult: &anthropic.ToolResultBlockParam{
					ToolUseID: m.ToolCallID,
					Content: []anthropic.ToolResultBlockParamContentUnion{{
						OfText: &anthropic.TextBlockParam{Text: nonEmpty(m.Content)},
					}},
				},
			})
		default:
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
		}
		if len(blocks) == 0 {
			continue
		}

		// Consecutive turns of one role are merged; tool results for one
		// assistant turn must arrive in a single user turn.
		if n := len(params.Messages); n > 0 && params.Messages[n-1].Role == role {
			params.Messages[n-1].Content = append(params.Messages[n-1].Content, blocks...)
			continue
		}
		params.Messages = append(params.Messages, anthropic.MessageParam{Role: role, Content: blocks})
	}

	for _, def := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Type:       constant.Object("object"),
					Properties: def.Properties(),
					Required:   def.Required(),
				},
			},
		})
	}
	return params
}

// Normalize converts a Claude message into the canonical completion shape.
// The finish reason is tool_calls whenever a tool_use block is present.
func Normalize(msg *anthropic.Message) *completion.Completion {
	out := message.Assistant("")
	var text []string
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, message.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}
	out.Content = strings.Join(text, "\n")

	finish := completion.FinishStop
	switch {
	case len(out.ToolCalls) > 0:
		finish = completion.FinishToolCalls
	case msg.StopReason == anthropic.StopReasonMaxTokens:
		finish = completion.FinishLength
	case msg.StopReason == anthropic.StopReasonRefusal:
		finish = completion.FinishError
	}

	in, outTokens := msg.Usage.InputTokens, msg.Usage.OutputTokens
	return &completion.Completion{
		ID:    msg.ID,
		Model: string(msg.Model),
		Choices: []completion.Choice{{
			Index:        0,
			Message:      out,
			FinishReason: finish,
		}},
		Usage: completion.Usage{
			PromptTokens:     in,
			CompletionTokens: outTokens,
			TotalTokens:      in + outTokens,
		},
	}
}

func rawArguments(args string) json.RawMessage {
	if strings.TrimSpace(args) == "" || !json.Valid([]byte(args)) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(args)
}

func nonEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
