/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"strings"

	"chainguard.dev/reviewpipe/agents/completion"
)

// Project groups tasks and the ordered agent chain that processes them.
type Project struct {
	ID          int64        `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Connections []Connection `json:"connections" yaml:"connections"`
}

// AgentConfig is a reusable agent definition: its type tag, credentials and
// default settings.
type AgentConfig struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
	// AccessKey is the secret the agent authenticates with (API token or
	// webhook URL).
	AccessKey string `json:"-" yaml:"accessKey"`
	// AccessName identifies the account or model used with AccessKey.
	AccessName string            `json:"access_name,omitempty" yaml:"accessName"`
	Extra      map[string]string `json:"extra,omitempty" yaml:"extra"`
}

// Connection attaches an agent to a project at a position in its chain.
type Connection struct {
	ID        int64             `json:"id" yaml:"id"`
	ProjectID int64             `json:"project_id" yaml:"-"`
	Position  int               `json:"position" yaml:"-"`
	Config    map[string]string `json:"config,omitempty" yaml:"config"`
	Agent     AgentConfig       `json:"agent" yaml:"agent"`
}

// ConfigValue returns the connection setting for field, falling back to
// the agent default when the connection leaves it unset or blank.
func (c *Connection) ConfigValue(field string) string {
	if v := c.Config[field]; strings.TrimSpace(v) != "" {
		return v
	}
	return c.Agent.Extra[field]
}

// RawConfig returns the value stored for field, blank or not, on the
// connection or else on the agent. ok is false when neither sets it.
func (c *Connection) RawConfig(field string) (v string, ok bool) {
	if v, ok = c.Config[field]; ok {
		return v, true
	}
	v, ok = c.Agent.Extra[field]
	return v, ok
}

// Credential is the completion credential configured on the connection:
// base URL from aiBaseUrl, token from the access key and model from the
// access name.
func (c *Connection) Credential() completion.Credential {
	return completion.Credential{
		APIURL: c.ConfigValue("aiBaseUrl"),
		Token:  c.Agent.AccessKey,
		Model:  c.Agent.AccessName,
	}
}
