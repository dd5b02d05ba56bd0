/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package definition loads projects, agents and their connections from a
// YAML pipeline file.
//
//	agents:
//	  - name: reviewer
//	    type: GithubCodeReviewerAgent
//	    accessKey: ${ANTHROPIC_API_KEY}
//	    accessName: claude-sonnet-4-5
//	    extra:
//	      githubToken: ${GITHUB_TOKEN}
//	projects:
//	  - id: 1
//	    name: widgets
//	    connections:
//	      - agent: github-context
//	        config:
//	          repository: acme/widgets
//	      - agent: reviewer
//
// ${VAR} references are expanded before parsing.
package definition

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"chainguard.dev/reviewpipe/pipeline"
	"gopkg.in/yaml.v3"
)

type file struct {
	Agents   []pipeline.AgentConfig `yaml:"agents"`
	Projects []project              `yaml:"projects"`
}

type project struct {
	ID          int64        `yaml:"id"`
	Name        string       `yaml:"name"`
	Connections []connection `yaml:"connections"`
}

type connection struct {
	ID     int64             `yaml:"id"`
	Agent  string            `yaml:"agent"`
	Config map[string]string `yaml:"config"`
}

// LoadFile reads the pipeline file at path, expanding variables from the
// process environment.
func LoadFile(path string) ([]*pipeline.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	projects, err := Load(data, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return projects, nil
}

// Load parses a pipeline file. Agents are referenced by name; connection
// positions follow list order. Unset agent and connection IDs are numbered
// from 1 in file order.
func Load(data []byte, getenv func(string) string) ([]*pipeline.Project, error) {
	expanded := os.Expand(string(data), getenv)

	var f file
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing pipeline: %w", err)
	}

	agents := make(map[string]pipeline.AgentConfig, len(f.Agents))
	for i, a := range f.Agents {
		if a.Name == "" {
			return nil, fmt.Errorf("agent %d has no name", i+1)
		}
		if a.Type == "" {
			return nil, fmt.Errorf("agent %q has no type", a.Name)
		}
		if _, ok := agents[a.Name]; ok {
			return nil, fmt.Errorf("agent %q defined twice", a.Name)
		}
		if a.ID == 0 {
			a.ID = int64(i + 1)
		}
		agents[a.Name] = a
	}

	if len(f.Projects) == 0 {
		return nil, errors.New("no projects defined")
	}
	var nextConn int64
	seen := map[int64]bool{}
	out := make([]*pipeline.Project, 0, len(f.Projects))
	for _, p := range f.Projects {
		if p.ID <= 0 {
			return nil, fmt.Errorf("project %q needs a positive id", p.Name)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("project id %d used twice", p.ID)
		}
		seen[p.ID] = true

		proj := &pipeline.Project{ID: p.ID, Name: p.Name}
		for i, c := range p.Connections {
			agent, ok := agents[c.Agent]
			if !ok {
				return nil, fmt.Errorf("project %q: unknown agent %q", p.Name, c.Agent)
			}
			nextConn++
			id := c.ID
			if id == 0 {
				id = nextConn
			}
			proj.Connections = append(proj.Connections, pipeline.Connection{
				ID:        id,
				ProjectID: p.ID,
				Position:  i,
				Config:    c.Config,
				Agent:     agent,
			})
		}
		out = append(out, proj)
	}
	return out, nil
}
