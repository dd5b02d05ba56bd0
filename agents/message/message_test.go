/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package message

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMatchesMetadata(t *testing.T) {
	m := User("issue").WithMetadata("type", "jira-issue").WithMetadata("hasComments", "Y")

	tests := []struct {
		name  string
		rules map[string]string
		want  bool
	}{
		{"no rules", nil, true},
		{"one rule", map[string]string{"type": "jira-issue"}, true},
		{"all rules", map[string]string{"type": "jira-issue", "hasComments": "Y"}, true},
		{"value differs", map[string]string{"hasComments": "N"}, false},
		{"key missing", map[string]string{"source": "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.MatchesMetadata(tt.rules); got != tt.want {
				t.Errorf("MatchesMetadata(%v): got = %v, wanted = %v", tt.rules, got, tt.want)
			}
		})
	}
}

func TestWithMetadataDoesNotAlias(t *testing.T) {
	a := User("x").WithMetadata("k", "1")
	b := a.WithMetadata("k", "2")
	if a.Metadata["k"] != "1" {
		t.Errorf("original metadata changed: got = %q, wanted = 1", a.Metadata["k"])
	}
	if b.Metadata["k"] != "2" {
		t.Errorf("copy metadata: got = %q, wanted = 2", b.Metadata["k"])
	}
}

func TestConversation(t *testing.T) {
	c := NewConversation(System("sys"))
	c.Append(User("u1"), Assistant("a1"))

	if c.Len() != 3 {
		t.Fatalf("Len(): got = %d, wanted = 3", c.Len())
	}

	snapshot := c.Messages()
	snapshot[0].Content = "mutated"
	if c.At(0).Content != "sys" {
		t.Errorf("Messages() returned an alias: At(0) = %q", c.At(0).Content)
	}

	c.Set(1, User("u1-rewritten"))
	if diff := cmp.Diff([]string{"sys", "u1-rewritten", "a1"}, c.Contents()); diff != "" {
		t.Errorf("Contents() (-want, +got): %s", diff)
	}
	if got, want := Transcript(c.Messages()), "sys\nu1-rewritten\na1"; got != want {
		t.Errorf("Transcript(): got = %q, wanted = %q", got, want)
	}
}

func TestConversationTruncate(t *testing.T) {
	c := NewConversation(System("sys"), User("u"), Assistant("a"))
	c.Truncate(5)
	if c.Len() != 3 {
		t.Errorf("Truncate past end: got = %d, wanted = 3", c.Len())
	}
	c.Truncate(1)
	if diff := cmp.Diff([]string{"sys"}, c.Contents()); diff != "" {
		t.Errorf("Contents() (-want, +got): %s", diff)
	}
}
