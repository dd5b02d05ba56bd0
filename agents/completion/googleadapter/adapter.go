/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package googleadapter speaks the Gemini generateContent protocol through
// the genai SDK.
package googleadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"chainguard.dev/reviewpipe/agents/completion"
	"chainguard.dev/reviewpipe/agents/message"
	"chainguard.dev/reviewpipe/agents/toolcall"
	"github.com/google/uuid"
	"google.golang.org/genai"
)

// Source is the cache partition for Gemini responses.
const Source = "google"

const (
	roleUser  = "user"
	roleModel = "model"
)

// Adapter translates canonical requests to generateContent calls.
type Adapter struct {
	// client, when set, serves every request regardless of credential.
	// Vertex deployments use this with project and location configured.
	client *genai.Client
}

var _ completion.Adapter = (*Adapter)(nil)

// Option is a functional option for configuring the adapter
type Option func(*Adapter) error

// WithClient pins a preconfigured client, for example one using the Vertex
// AI backend with application default credentials.
func WithClient(c *genai.Client) Option {
	return func(a *Adapter) error {
		if c == nil {
			return errors.New("genai client cannot be nil")
		}
		a.client = c
		return nil
	}
}

// New returns a Gemini adapter.
func New(opts ...Option) (*Adapter, error) {
	a := &Adapter{}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return a, nil
}

func (a *Adapter) Source() string { return Source }

func (a *Adapter) clientFor(ctx context.Context, cred completion.Credential) (*genai.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:  cred.Token,
		Backend: genai.BackendGeminiAPI,
	}
	if cred.APIURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimSuffix(cred.APIURL, "/") + "/"}
	}
	return genai.NewClient(ctx, cfg)
}

// Complete implements completion.Adapter.
func (a *Adapter) Complete(ctx context.Context, req completion.Request) (*completion.Completion, error) {
	client, err := a.clientFor(ctx, req.Credential)
	if err != nil {
		return nil, &completion.ProviderError{Provider: Source, Model: req.Model, Err: err}
	}

	contents, config := BuildRequest(req)
	resp, err := client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, &completion.ProviderError{
			Provider:   Source,
			Model:      req.Model,
			StatusCode: statusOf(err),
			Err:        err,
		}
	}
	return Normalize(req.Model, resp), nil
}

// BuildRequest translates a canonical request into Gemini contents and
// generation config. Assistant turns become "model" turns and tool results
// become function responses in a "user" turn.
func BuildRequest(req completion.Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{}
	var contents []*genai.Content

	// Function responses must carry the name of the call they answer.
	callNames := map[string]string{}

	for _, m := range req.Messages {
		role := roleUser
		var parts []*genai.Part
		switch m.Role {
		case message.RoleSystem:
			if m.Content == "" {
				continue
			}
			if config.SystemInstruction == nil {
				config.SystemInstruction = &genai.Content{}
			}
			config.SystemInstruction.Parts = append(config.SystemInstruction.Parts, &genai.Part{Text: m.Content})
			continue
		case message.RoleAssistant:
			role = roleModel
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				callNames[tc.ID] = tc.Name
				args, err := toolcall.ParseArguments(tc.Arguments)
				if err != nil {
					args = map[string]any{}
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: args,
				}})
			}
		case message.RoleTool:
			parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     callNames[m.ToolCallID],
				Response: map[string]any{"output": m.Content},
			}})
		default:
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
		}
		if len(parts) == 0 {
			continue
		}
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, def := range req.Tools {
			decls = append(decls, declaration(def))
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return contents, config
}

func declaration(def toolcall.Definition) *genai.FunctionDeclaration {
	schema := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(def.Parameters)),
		Required:   def.Required(),
	}
	for _, p := range def.Parameters {
		schema.Properties[p.Name] = &genai.Schema{
			Type:        mapSchemaType(p.Type),
			Description: p.Description,
		}
	}
	return &genai.FunctionDeclaration{
		Name:        def.Name,
		Description: def.Description,
		Parameters:  schema,
	}
}

func mapSchemaType(t string) genai.Type {
	switch t {
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

// Normalize converts a Gemini response into the canonical shape. Function
// calls without an id get a generated one so tool results can refer back.
func Normalize(model string, resp *genai.GenerateContentResponse) *completion.Completion {
	out := &completion.Completion{ID: resp.ResponseID, Model: model}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = completion.Usage{
			PromptTokens:     int64(u.PromptTokenCount),
			CompletionTokens: int64(u.CandidatesTokenCount),
			TotalTokens:      int64(u.TotalTokenCount),
		}
		if out.Usage.TotalTokens == 0 {
			out.Usage.TotalTokens = out.Usage.PromptTokens + out.Usage.CompletionTokens
		}
	}

	for i, cand := range resp.Candidates {
		msg := message.Assistant("")
		var text []string
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				switch {
				case part.Thought:
				case part.FunctionCall != nil:
					id := part.FunctionCall.ID
					if id == "" {
						id = "call_" + uuid.NewString()
					}
					args, _ := json.Marshal(part.FunctionCall.Args)
					if part.FunctionCall.Args == nil {
						args = []byte("{}")
					}
					msg.ToolCalls = append(msg.ToolCalls, message.ToolCall{
						ID:        id,
						Name:      part.FunctionCall.Name,
						Arguments: string(args),
					})
				case part.Text != "":
					text = append(text, part.Text)
				}
			}
		}
		msg.Content = strings.Join(text, "")

		finish := completion.FinishStop
		switch {
		case len(msg.ToolCalls) > 0:
			finish = completion.FinishToolCalls
		case cand.FinishReason == genai.FinishReasonMaxTokens:
			finish = completion.FinishLength
		case cand.FinishReason != "" && cand.FinishReason != genai.FinishReasonStop &&
			cand.FinishReason != genai.FinishReasonUnspecified:
			// Safety, recitation and other blocked candidates.
			finish = completion.FinishError
		}
		out.Choices = append(out.Choices, completion.Choice{Index: i, Message: msg, FinishReason: finish})
	}
	return out
}

// statusOf recovers an HTTP status from a genai error. Errors that do not
// carry one are classified by message the way Vertex reports them.
func statusOf(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr.Code != 0 {
		return apiErrPtr.Code
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "RESOURCE_EXHAUSTED"),
		strings.Contains(msg, "Resource exhausted"),
		strings.Contains(msg, "quota exceeded"),
		strings.Contains(msg, "429"):
		return http.StatusTooManyRequests
	case strings.Contains(msg, "Overloaded"),
		strings.Contains(msg, "UNAVAILABLE"),
		strings.Contains(msg, "503"):
		return http.StatusServiceUnavailable
	case strings.Contains(msg, "DEADLINE_EXCEEDED"),
		strings.Contains(msg, "504"):
		return http.StatusGatewayTimeout
	}
	return 0
}
