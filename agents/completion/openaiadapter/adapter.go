/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package openaiadapter speaks the OpenAI chat completions protocol. It is
// the fallback adapter for any model without a more specific route.
package openaiadapter

import (
	"context"
	"errors"
	"strings"

	"chainguard.dev/reviewpipe/agents/completion"
	"chainguard.dev/reviewpipe/agents/message"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Source is the cache partition for chat completions responses.
const Source = "openai"

// Adapter translates canonical requests to chat completions calls.
type Adapter struct {
	clientOptions []option.RequestOption
}

var _ completion.Adapter = (*Adapter)(nil)

// New returns an OpenAI-compatible adapter. The request options are applied
// after the per-call credential.
func New(opts ...option.RequestOption) *Adapter {
	return &Adapter{clientOptions: opts}
}

func (a *Adapter) Source() string { return Source }

// Complete implements completion.Adapter.
func (a *Adapter) Complete(ctx context.Context, req completion.Request) (*completion.Completion, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(req.Token),
		option.WithMaxRetries(0),
	}
	if req.APIURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(req.APIURL, "/")+"/"))
	}
	client := openai.NewClient(append(opts, a.clientOptions...)...)

	resp, err := client.Chat.Completions.New(ctx, BuildParams(req))
	if err != nil {
		pe := &completion.ProviderError{Provider: Source, Model: req.Model, Err: err}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			pe.StatusCode = apiErr.StatusCode
		}
		return nil, pe
	}
	return Normalize(resp), nil
}

// BuildParams translates a canonical request. Empty content is sent as "-"
// since some compatible servers reject empty strings.
func BuildParams(req completion.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)),
	}

	for _, m := range req.Messages {
		content := m.Content
		if content == "" {
			content = "-"
		}
		switch m.Role {
		case message.RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(content))
		case message.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				params.Messages = append(params.Messages, openai.AssistantMessage(content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{
				Content: openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(content)},
			}
			for _, tc := range m.ToolCalls {
				args := tc.Arguments
				if strings.TrimSpace(args) == "" {
					args = "{}"
				}
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: args,
					},
				})
			}
			params.Messages = append(params.Messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case message.RoleTool:
			params.Messages = append(params.Messages, openai.ToolMessage(content, m.ToolCallID))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(content))
		}
	}

	for _, def := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  shared.FunctionParameters(def.Schema()),
			},
		})
	}
	return params
}

// Normalize converts a chat completion into the canonical shape.
func Normalize(resp *openai.ChatCompletion) *completion.Completion {
	out := &completion.Completion{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: completion.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, c := range resp.Choices {
		msg := message.Assistant(c.Message.Content)
		for _, tc := range c.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, message.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		out.Choices = append(out.Choices, completion.Choice{
			Index:        int(c.Index),
			Message:      msg,
			FinishReason: finishReason(c.FinishReason, len(msg.ToolCalls) > 0),
		})
	}
	return out
}

func finishReason(reason string, hasTools bool) completion.FinishReason {
	switch {
	case hasTools, reason == "tool_calls", reason == "function_call":
		return completion.FinishToolCalls
	case reason == "length":
		return completion.FinishLength
	case reason == "stop", reason == "":
		return completion.FinishStop
	default:
		// content_filter and anything newer.
		return completion.FinishError
	}
}
