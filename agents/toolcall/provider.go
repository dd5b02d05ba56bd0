/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolcall

import (
	"maps"
	"slices"
)

// Set is a collection of tools keyed by name.
type Set map[string]Tool

// ToolProvider supplies tools to an agent. Providers compose with Merge.
type ToolProvider interface {
	Tools() Set
}

// Add registers a tool under its definition name.
func (s Set) Add(t Tool) Set {
	s[t.Def.Name] = t
	return s
}

// Names returns the tool names in sorted order.
func (s Set) Names() []string {
	return slices.Sorted(maps.Keys(s))
}

// Definitions returns the tool definitions sorted by name.
func (s Set) Definitions() []Definition {
	defs := make([]Definition, 0, len(s))
	for _, name := range s.Names() {
		defs = append(defs, s[name].Def)
	}
	return defs
}

// Subset returns the tools whose names are listed. Unknown names are ignored.
func (s Set) Subset(names []string) Set {
	out := make(Set, len(names))
	for _, n := range names {
		if t, ok := s[n]; ok {
			out[n] = t
		}
	}
	return out
}

// Merge combines the tools of several providers. Later providers win on
// name collisions.
func Merge(providers ...ToolProvider) Set {
	out := Set{}
	for _, p := range providers {
		maps.Copy(out, p.Tools())
	}
	return out
}
