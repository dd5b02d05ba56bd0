/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package github

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"chainguard.dev/reviewpipe/pipeline"
	"chainguard.dev/reviewpipe/platforms"
	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
)

type pullRequestQuery struct {
	Repository struct {
		PullRequest *struct {
			Title       string
			Body        string
			URL         string
			State       githubv4.PullRequestState
			Author      struct{ Login string }
			HeadRefName string
			BaseRefName string
			CreatedAt   githubv4.DateTime
			Commits     struct {
				Nodes []struct {
					Commit struct {
						Message       string
						CommittedDate githubv4.DateTime
					}
				}
			} `graphql:"commits(last: 100)"`
			Reviews struct {
				Nodes []struct {
					Body     string
					Comments struct {
						Nodes []struct {
							Body      string
							Path      string
							Line      *int
							StartLine *int
						}
					} `graphql:"comments(first: 50)"`
				}
			} `graphql:"reviews(first: 100)"`
		} `graphql:"pullRequest(number: $number)"`
	} `graphql:"repository(owner: $owner, name: $repo)"`
}

// FetchChangeSet implements pipeline.ReviewPlatform. UpdatedAt is the date
// of the newest commit so that metadata edits do not count as changes.
func (c *Client) FetchChangeSet(ctx context.Context, conn *pipeline.Connection, number int) (*pipeline.ChangeRecord, error) {
	owner, repo, err := repository(conn)
	if err != nil {
		return nil, err
	}
	cl, err := c.clientsFor(ctx, conn)
	if err != nil {
		return nil, err
	}

	var q pullRequestQuery
	if err := cl.gql.Query(ctx, &q, map[string]any{
		"owner":  githubv4.String(owner),
		"repo":   githubv4.String(repo),
		"number": githubv4.Int(number),
	}); err != nil {
		return nil, fmt.Errorf("graphql query: %w", err)
	}
	pr := q.Repository.PullRequest
	if pr == nil {
		return nil, fmt.Errorf("pull request %s/%s#%d: %w", owner, repo, number, pipeline.ErrNotFound)
	}

	rec := &pipeline.ChangeRecord{
		Provider:  pipeline.ProviderGithub,
		RepoKey:   owner + "/" + repo,
		Number:    number,
		URL:       pr.URL,
		Title:     pr.Title,
		Body:      pr.Body,
		State:     stateOf(pr.State),
		HeadRef:   pr.HeadRefName,
		BaseRef:   pr.BaseRefName,
		Author:    pr.Author.Login,
		CreatedAt: pr.CreatedAt.Time,
	}
	if rec.URL == "" {
		rec.URL = fmt.Sprintf("https://github.com/%s/%s/pull/%d", owner, repo, number)
	}

	var latest time.Time
	for _, n := range pr.Commits.Nodes {
		if n.Commit.CommittedDate.After(latest) {
			latest = n.Commit.CommittedDate.Time
		}
		if !slices.Contains(rec.Commits, n.Commit.Message) {
			rec.Commits = append(rec.Commits, n.Commit.Message)
		}
	}
	rec.UpdatedAt = latest

	for _, r := range pr.Reviews.Nodes {
		review := pipeline.Review{Body: r.Body}
		for _, cm := range r.Comments.Nodes {
			rc := pipeline.ReviewComment{Path: cm.Path, Body: cm.Body}
			if cm.Line != nil {
				rc.Line = *cm.Line
			}
			if cm.StartLine != nil {
				rc.StartLine = *cm.StartLine
			}
			review.Comments = append(review.Comments, rc)
		}
		rec.Reviews = append(rec.Reviews, review)
	}

	// GraphQL does not expose patches.
	comparison, _, err := cl.rest.Repositories.CompareCommits(ctx, owner, repo, pr.BaseRefName, pr.HeadRefName, nil)
	if err != nil {
		return nil, fmt.Errorf("compare %s...%s: %w", pr.BaseRefName, pr.HeadRefName, err)
	}
	for _, f := range comparison.Files {
		if f.GetFilename() == "" {
			continue
		}
		rec.Files = append(rec.Files, pipeline.ChangedFile{
			Path:      f.GetFilename(),
			Patch:     f.GetPatch(),
			Status:    f.GetStatus(),
			Additions: f.GetAdditions(),
			Deletions: f.GetDeletions(),
		})
	}
	return rec, nil
}

func stateOf(s githubv4.PullRequestState) string {
	switch s {
	case githubv4.PullRequestStateClosed:
		return pipeline.StateClosed
	case githubv4.PullRequestStateMerged:
		return pipeline.StateMerged
	default:
		return pipeline.StateOpen
	}
}

// FetchFileContent implements pipeline.ReviewPlatform, reading path at the
// head branch. Missing files and directories yield "File not found".
func (c *Client) FetchFileContent(ctx context.Context, conn *pipeline.Connection, change *pipeline.ChangeRecord, path string) (string, error) {
	owner, repo, err := platforms.SplitRepository(change.RepoKey)
	if err != nil {
		return "", err
	}
	cl, err := c.clientsFor(ctx, conn)
	if err != nil {
		return "", err
	}
	file, _, _, err := cl.rest.Repositories.GetContents(ctx, owner, repo, strings.TrimPrefix(path, "/"), &github.RepositoryContentGetOptions{Ref: change.HeadRef})
	if isNotFound(err) {
		return "File not found", nil
	}
	if err != nil {
		return "", fmt.Errorf("get contents of %s: %w", path, err)
	}
	if file == nil {
		return "File not found", nil
	}
	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}
	return content, nil
}

type openPullRequestsQuery struct {
	Repository struct {
		PullRequests struct {
			Nodes []struct {
				Number  int
				Title   string
				URL     string
				Commits struct {
					Nodes []struct {
						Commit struct {
							CommittedDate githubv4.DateTime
						}
					}
				} `graphql:"commits(last: 1)"`
			}
		} `graphql:"pullRequests(first: 100, states: OPEN)"`
	} `graphql:"repository(owner: $owner, name: $repo)"`
}

// ListOpen implements pipeline.ReviewPlatform.
func (c *Client) ListOpen(ctx context.Context, conn *pipeline.Connection) ([]pipeline.ItemSummary, error) {
	owner, repo, err := repository(conn)
	if err != nil {
		return nil, err
	}
	cl, err := c.clientsFor(ctx, conn)
	if err != nil {
		return nil, err
	}
	var q openPullRequestsQuery
	if err := cl.gql.Query(ctx, &q, map[string]any{
		"owner": githubv4.String(owner),
		"repo":  githubv4.String(repo),
	}); err != nil {
		return nil, fmt.Errorf("graphql query: %w", err)
	}
	out := make([]pipeline.ItemSummary, 0, len(q.Repository.PullRequests.Nodes))
	for _, n := range q.Repository.PullRequests.Nodes {
		s := pipeline.ItemSummary{Number: n.Number, Title: n.Title, URL: n.URL}
		if len(n.Commits.Nodes) > 0 {
			s.UpdatedAt = n.Commits.Nodes[0].Commit.CommittedDate.Time
		}
		out = append(out, s)
	}
	return out, nil
}
