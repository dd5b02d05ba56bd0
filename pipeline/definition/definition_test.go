/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package definition

import (
	"testing"

	"chainguard.dev/reviewpipe/pipeline"
	"github.com/google/go-cmp/cmp"
)

const pipelineYAML = `
agents:
  - name: github-context
    type: GithubContextAgent
  - name: reviewer
    type: GithubCodeReviewerAgent
    accessKey: ${API_KEY}
    accessName: claude-sonnet-4-5
    extra:
      githubToken: ${GITHUB_TOKEN}
projects:
  - id: 7
    name: widgets
    connections:
      - agent: github-context
        config:
          repository: acme/widgets
      - agent: reviewer
        config:
          reviewCommentPrefix: "AI review"
`

func TestLoad(t *testing.T) {
	env := map[string]string{"API_KEY": "sk-123", "GITHUB_TOKEN": "ghp"}
	got, err := Load([]byte(pipelineYAML), func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	want := []*pipeline.Project{{
		ID:   7,
		Name: "widgets",
		Connections: []pipeline.Connection{{
			ID:        1,
			ProjectID: 7,
			Position:  0,
			Config:    map[string]string{"repository": "acme/widgets"},
			Agent:     pipeline.AgentConfig{ID: 1, Name: "github-context", Type: "GithubContextAgent"},
		}, {
			ID:        2,
			ProjectID: 7,
			Position:  1,
			Config:    map[string]string{"reviewCommentPrefix": "AI review"},
			Agent: pipeline.AgentConfig{
				ID:         2,
				Name:       "reviewer",
				Type:       "GithubCodeReviewerAgent",
				AccessKey:  "sk-123",
				AccessName: "claude-sonnet-4-5",
				Extra:      map[string]string{"githubToken": "ghp"},
			},
		}},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() (-want +got):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	for name, data := range map[string]string{
		"unknown agent":  "projects:\n  - id: 1\n    connections:\n      - agent: nope\n",
		"no projects":    "agents:\n  - name: a\n    type: T\n",
		"missing id":     "projects:\n  - name: p\n",
		"duplicate id":   "projects:\n  - id: 1\n  - id: 1\n",
		"untyped agent":  "agents:\n  - name: a\nprojects:\n  - id: 1\n",
		"unknown field":  "projects:\n  - id: 1\n    colour: red\n",
		"duplicate name": "agents:\n  - name: a\n    type: T\n  - name: a\n    type: U\nprojects:\n  - id: 1\n",
	} {
		if _, err := Load([]byte(data), func(string) string { return "" }); err == nil {
			t.Errorf("Load(%s) = nil, wanted error", name)
		}
	}
}
