/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitlab

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"chainguard.dev/reviewpipe/pipeline"
	"chainguard.dev/reviewpipe/platforms"
	"github.com/chainguard-dev/clog"
	"github.com/waigani/diffparser"
)

type mergeRequest struct {
	IID          int       `json:"iid"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	State        string    `json:"state"`
	WebURL       string    `json:"web_url"`
	SourceBranch string    `json:"source_branch"`
	TargetBranch string    `json:"target_branch"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Author       struct {
		Username string `json:"username"`
	} `json:"author"`
}

type diff struct {
	OldPath     string `json:"old_path"`
	NewPath     string `json:"new_path"`
	Diff        string `json:"diff"`
	NewFile     bool   `json:"new_file"`
	DeletedFile bool   `json:"deleted_file"`
}

type commit struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

func repositoryURL(conn *pipeline.Connection) string {
	return strings.TrimRight(conn.ConfigValue("repository"), "/")
}

// MergeRequestURL is the web URL of merge request number in repoURL.
func MergeRequestURL(repoURL string, number int) string {
	return strings.TrimRight(repoURL, "/") + "/merge_requests/" + strconv.Itoa(number)
}

// FetchChangeSet implements pipeline.ReviewPlatform.
func (c *Client) FetchChangeSet(ctx context.Context, conn *pipeline.Connection, number int) (*pipeline.ChangeRecord, error) {
	repoURL := repositoryURL(conn)
	s, err := c.sessionFor(ctx, conn, repoURL)
	if err != nil {
		return nil, err
	}
	base := "merge_requests/" + strconv.Itoa(number)

	var mr mergeRequest
	if err := s.do(ctx, "GET", base, nil, &mr); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("merge request %s!%d: %w", repoURL, number, pipeline.ErrNotFound)
		}
		return nil, err
	}
	var diffs []diff
	if err := s.do(ctx, "GET", base+"/diffs", nil, &diffs); err != nil {
		return nil, err
	}
	var commits []commit
	if err := s.do(ctx, "GET", base+"/commits", nil, &commits); err != nil {
		return nil, err
	}

	rec := &pipeline.ChangeRecord{
		Provider:  pipeline.ProviderGitlab,
		RepoKey:   repoURL,
		Number:    number,
		URL:       mr.WebURL,
		Title:     mr.Title,
		Body:      mr.Description,
		State:     mr.State,
		HeadRef:   mr.SourceBranch,
		BaseRef:   mr.TargetBranch,
		Author:    mr.Author.Username,
		CreatedAt: mr.CreatedAt,
		UpdatedAt: mr.UpdatedAt,
	}
	if rec.URL == "" {
		rec.URL = MergeRequestURL(repoURL, number)
	}
	for _, cm := range commits {
		msg := strings.TrimSpace(cm.Message)
		if msg == "" {
			msg = strings.TrimSpace(cm.Title)
		}
		if msg != "" && !slices.Contains(rec.Commits, msg) {
			rec.Commits = append(rec.Commits, msg)
		}
	}
	for _, d := range diffs {
		if d.Diff == "" {
			continue
		}
		f := pipeline.ChangedFile{Path: d.NewPath, Patch: d.Diff, Status: "modified"}
		if f.Path == "" {
			f.Path = d.OldPath
		}
		switch {
		case d.NewFile:
			f.Status = "created"
		case d.DeletedFile:
			f.Status = "deleted"
		}
		f.Additions, f.Deletions = lineStats(ctx, f.Path, d.Diff)
		rec.Files = append(rec.Files, f)
	}
	return rec, nil
}

// lineStats counts added and removed lines of a GitLab diff, which carries
// hunks without the file headers diffparser expects.
func lineStats(ctx context.Context, path, patch string) (added, removed int) {
	var body []string
	for l := range strings.SplitSeq(patch, "\n") {
		if l != "" && !strings.HasPrefix(l, `\`) {
			body = append(body, l)
		}
	}
	parsed, err := diffparser.Parse(fmt.Sprintf("diff --git a/%[1]s b/%[1]s\n--- a/%[1]s\n+++ b/%[1]s\n%s", path, strings.Join(body, "\n")))
	if err != nil {
		clog.FromContext(ctx).With("path", path, "error", err).Debug("Unparseable diff")
		return 0, 0
	}
	for _, f := range parsed.Files {
		for _, h := range f.Hunks {
			for _, l := range h.WholeRange.Lines {
				switch l.Mode {
				case diffparser.ADDED:
					added++
				case diffparser.REMOVED:
					removed++
				}
			}
		}
	}
	return added, removed
}

type fileContent struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// FetchFileContent implements pipeline.ReviewPlatform, reading path at the
// source branch. Missing files yield "File not found".
func (c *Client) FetchFileContent(ctx context.Context, conn *pipeline.Connection, change *pipeline.ChangeRecord, path string) (string, error) {
	s, err := c.sessionFor(ctx, conn, change.RepoKey)
	if err != nil {
		return "", err
	}
	var fc fileContent
	err = s.do(ctx, "GET", "repository/files/"+url.PathEscape(strings.TrimPrefix(path, "/"))+"?ref="+url.QueryEscape(change.HeadRef), nil, &fc)
	if isNotFound(err) {
		return "File not found", nil
	}
	if err != nil {
		return "", err
	}
	if fc.Encoding != "" && fc.Encoding != "base64" {
		return fc.Content, nil
	}
	raw, err := base64.StdEncoding.DecodeString(fc.Content)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}
	return string(raw), nil
}

// SubmitReview implements pipeline.ReviewPlatform by posting one merge
// request note. GitLab notes cannot be anchored here, so inline comments
// are folded into the note body.
func (c *Client) SubmitReview(ctx context.Context, conn *pipeline.Connection, change *pipeline.ChangeRecord, summary string, comments []pipeline.InlineComment) error {
	s, err := c.sessionFor(ctx, conn, change.RepoKey)
	if err != nil {
		return err
	}
	body := platforms.Prefix(conn.ConfigValue("reviewCommentPrefix")) + platforms.FoldComments(summary, comments)
	if err := s.do(ctx, "POST", "merge_requests/"+strconv.Itoa(change.Number)+"/notes", map[string]string{"body": body}, nil); err != nil {
		return &platforms.SubmissionError{Provider: pipeline.ProviderGitlab, Target: MergeRequestURL(change.RepoKey, change.Number), Err: err}
	}
	return nil
}

// ListOpen implements pipeline.ReviewPlatform.
func (c *Client) ListOpen(ctx context.Context, conn *pipeline.Connection) ([]pipeline.ItemSummary, error) {
	repoURL := repositoryURL(conn)
	s, err := c.sessionFor(ctx, conn, repoURL)
	if err != nil {
		return nil, err
	}
	var mrs []mergeRequest
	if err := s.do(ctx, "GET", "merge_requests?state=opened&per_page=100", nil, &mrs); err != nil {
		return nil, err
	}
	out := make([]pipeline.ItemSummary, 0, len(mrs))
	for _, mr := range mrs {
		out = append(out, pipeline.ItemSummary{
			Number:    mr.IID,
			Title:     mr.Title,
			URL:       mr.WebURL,
			UpdatedAt: mr.UpdatedAt,
		})
	}
	return out, nil
}
