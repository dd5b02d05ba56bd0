/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package orchestrator

import (
	"errors"
	"fmt"
	"slices"

	"chainguard.dev/reviewpipe/pipeline"
)

// Registry is the closed set of agents known to the service, keyed by type
// tag.
type Registry struct {
	agents map[string]pipeline.Agent
}

// NewRegistry registers agents in order.
func NewRegistry(agents ...pipeline.Agent) (*Registry, error) {
	r := &Registry{agents: make(map[string]pipeline.Agent, len(agents))}
	for _, a := range agents {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a, rejecting a second agent with the same type tag.
func (r *Registry) Register(a pipeline.Agent) error {
	tag := a.Type()
	if tag == "" {
		return errors.New("agent type cannot be empty")
	}
	if _, ok := r.agents[tag]; ok {
		return fmt.Errorf("agent type %q already registered", tag)
	}
	r.agents[tag] = a
	return nil
}

// Get returns the agent for a type tag.
func (r *Registry) Get(tag string) (pipeline.Agent, bool) {
	a, ok := r.agents[tag]
	return a, ok
}

// Types lists the registered tags in sorted order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.agents))
	for tag := range r.agents {
		out = append(out, tag)
	}
	slices.Sort(out)
	return out
}

// Validate checks every connection of p against its agent's declared
// fields. All problems are reported together.
func (r *Registry) Validate(p *pipeline.Project) error {
	var errs []error
	for i := range p.Connections {
		conn := &p.Connections[i]
		a, ok := r.agents[conn.Agent.Type]
		if !ok {
			errs = append(errs, &pipeline.ConfigurationError{
				Agent:  conn.Agent.Type,
				Reason: "unknown agent type",
			})
			continue
		}
		if err := pipeline.ValidateConnection(a, conn); err != nil {
			errs = append(errs, fmt.Errorf("project %q connection %d: %w", p.Name, conn.ID, err))
		}
	}
	return errors.Join(errs...)
}
