/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import "time"

// Review platforms.
const (
	ProviderGithub = "github"
	ProviderGitlab = "gitlab"
)

// Change set states.
const (
	StateOpen   = "open"
	StateClosed = "closed"
	StateMerged = "merged"
)

// ChangeRecord is a snapshot of an external change set bound to a task.
type ChangeRecord struct {
	TaskID    int64         `json:"task_id"`
	Provider  string        `json:"provider"`
	RepoKey   string        `json:"repo_key"`
	Number    int           `json:"number"`
	URL       string        `json:"url"`
	Title     string        `json:"title"`
	Body      string        `json:"body"`
	State     string        `json:"state"`
	HeadRef   string        `json:"head_ref"`
	BaseRef   string        `json:"base_ref"`
	Author    string        `json:"author"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Commits   []string      `json:"commits,omitempty"`
	Files     []ChangedFile `json:"files,omitempty"`
	Reviews   []Review      `json:"reviews,omitempty"`
}

// Open reports whether the change set still accepts reviews.
func (c *ChangeRecord) Open() bool {
	return c.State == "" || c.State == StateOpen || c.State == "opened"
}

// ChangedFile is one file of a change set.
type ChangedFile struct {
	Path      string `json:"path"`
	Patch     string `json:"patch"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// Review is a previously submitted review on a change set.
type Review struct {
	Body     string          `json:"body"`
	Comments []ReviewComment `json:"comments,omitempty"`
}

// ReviewComment is an inline comment on a code block.
type ReviewComment struct {
	Path      string `json:"path"`
	Body      string `json:"body"`
	Line      int    `json:"line,omitempty"`
	StartLine int    `json:"start_line,omitempty"`
}

// ItemUpdate reports that an external change set was opened, changed or
// closed. ItemKey is the repository key ("owner/repo" for GitHub, the
// repository URL for GitLab) and ItemID the change number.
type ItemUpdate struct {
	Provider string `json:"provider"`
	ItemKey  string `json:"item_key"`
	ItemID   int    `json:"item_id"`
	State    string `json:"state"`
}

// Closed reports whether the update ends the change set.
func (u ItemUpdate) Closed() bool {
	return u.State == StateClosed || u.State == StateMerged
}
