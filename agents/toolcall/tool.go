/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolcall

import (
	"context"
	"encoding/json"
	"fmt"

	"chainguard.dev/reviewpipe/agents/agenttrace"
	"chainguard.dev/reviewpipe/agents/schema"
	"chainguard.dev/reviewpipe/agents/toolcall/params"
)

// ToolCall is a provider-independent representation of a tool call with
// its arguments already decoded.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// Definition describes a tool's schema (name, description, parameters).
type Definition struct {
	Name        string
	Description string
	Parameters  []Parameter
}

// Parameter describes a single tool parameter.
type Parameter struct {
	Name        string
	Type        string // "string", "integer", "boolean", "number"
	Description string
	Required    bool
}

// Properties renders the parameters as JSON schema properties.
func (d Definition) Properties() map[string]any {
	props := make(map[string]any, len(d.Parameters))
	for _, p := range d.Parameters {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
	}
	return props
}

// Required lists the names of the required parameters in declaration order.
func (d Definition) Required() []string {
	var req []string
	for _, p := range d.Parameters {
		if p.Required {
			req = append(req, p.Name)
		}
	}
	return req
}

// Schema renders the parameters as a JSON schema object.
func (d Definition) Schema() map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": d.Properties(),
	}
	if req := d.Required(); len(req) > 0 {
		s["required"] = req
	}
	return s
}

// DefinitionFor builds a Definition whose parameters are reflected from the
// fields of Args. Field order, descriptions and required markers come from
// the json and jsonschema struct tags.
func DefinitionFor[Args any](name, description string) Definition {
	def := Definition{Name: name, Description: description}
	for _, f := range schema.Fields(schema.ReflectType[Args]()) {
		def.Parameters = append(def.Parameters, Parameter{
			Name:        f.Name,
			Type:        f.Type,
			Description: f.Description,
			Required:    f.Required,
		})
	}
	return def
}

// Handler executes a tool call and returns the text handed back to the model.
// A returned error is reported to the model as the tool result.
type Handler func(ctx context.Context, call ToolCall, trace *agenttrace.Trace[string]) (string, error)

// Tool pairs a definition with the handler that serves it.
type Tool struct {
	Def     Definition
	Handler Handler
}

// ParseArguments decodes the raw JSON arguments of a tool call. An empty
// argument string decodes to an empty map.
func ParseArguments(raw string) (map[string]any, error) {
	args := map[string]any{}
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	return args, nil
}

// Param extracts a required parameter from the tool call args.
func Param[T any](call ToolCall, name string) (T, error) {
	return params.Extract[T](call.Args, name)
}

// OptionalParam extracts an optional parameter from the tool call args.
func OptionalParam[T any](call ToolCall, name string, defaultValue T) (T, error) {
	return params.ExtractOptional[T](call.Args, name, defaultValue)
}
