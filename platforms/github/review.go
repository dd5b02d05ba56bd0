/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package github

import (
	"context"
	"fmt"
	"strings"

	"chainguard.dev/reviewpipe/pipeline"
	"chainguard.dev/reviewpipe/platforms"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

const reviewEvent = "COMMENT"

// NormalizeComment fixes line ranges the model gets wrong: a lone start
// line becomes the line, an empty range collapses, and a reversed range is
// swapped.
func NormalizeComment(c pipeline.InlineComment) pipeline.InlineComment {
	if c.StartLine == 0 {
		return c
	}
	switch {
	case c.Line == 0:
		c.Line, c.StartLine = c.StartLine, 0
	case c.Line == c.StartLine:
		c.StartLine = 0
	case c.Line < c.StartLine:
		c.Line, c.StartLine = c.StartLine, c.Line
	}
	return c
}

// SubmitReview implements pipeline.ReviewPlatform. The review is posted as
// a COMMENT with inline comments; when GitHub rejects the comment
// positions the comments are folded into the body and posted once more.
// The first pending reviewer is asked again afterwards, since posting a
// review clears the request.
func (c *Client) SubmitReview(ctx context.Context, conn *pipeline.Connection, change *pipeline.ChangeRecord, summary string, comments []pipeline.InlineComment) error {
	owner, repo, err := platforms.SplitRepository(change.RepoKey)
	if err != nil {
		return err
	}
	cl, err := c.clientsFor(ctx, conn)
	if err != nil {
		return err
	}
	target := fmt.Sprintf("%s/%s#%d", owner, repo, change.Number)
	log := clog.FromContext(ctx).With("pull_request", target)
	prefix := platforms.Prefix(conn.ConfigValue("reviewCommentPrefix"))

	var reviewer string
	if reviewers, _, err := cl.rest.PullRequests.ListReviewers(ctx, owner, repo, change.Number); err != nil {
		log.With("error", err).Warn("Failed to list requested reviewers")
	} else if len(reviewers.Users) > 0 {
		reviewer = reviewers.Users[0].GetLogin()
	}

	normalized := make([]pipeline.InlineComment, 0, len(comments))
	drafts := make([]*github.DraftReviewComment, 0, len(comments))
	for _, raw := range comments {
		cm := NormalizeComment(raw)
		normalized = append(normalized, cm)
		d := &github.DraftReviewComment{
			Path: github.Ptr(cm.Path),
			Body: github.Ptr(prefix + cm.Body),
		}
		if cm.Line > 0 {
			d.Line = github.Ptr(cm.Line)
		}
		if cm.StartLine > 0 {
			d.StartLine = github.Ptr(cm.StartLine)
		}
		drafts = append(drafts, d)
	}

	_, _, err = cl.rest.PullRequests.CreateReview(ctx, owner, repo, change.Number, &github.PullRequestReviewRequest{
		Body:     github.Ptr(prefix + summary),
		Event:    github.Ptr(reviewEvent),
		Comments: drafts,
	})
	if err != nil {
		if !strings.Contains(err.Error(), "Validation Failed") {
			return &platforms.SubmissionError{Provider: pipeline.ProviderGithub, Target: target, Err: err}
		}
		log.With("error", err).Warn("Review rejected, resubmitting without inline comments")
		if _, _, err := cl.rest.PullRequests.CreateReview(ctx, owner, repo, change.Number, &github.PullRequestReviewRequest{
			Body:  github.Ptr(prefix + platforms.FoldComments(summary, normalized)),
			Event: github.Ptr(reviewEvent),
		}); err != nil {
			return &platforms.SubmissionError{Provider: pipeline.ProviderGithub, Target: target, Err: err}
		}
	}

	if reviewer != "" {
		if _, _, err := cl.rest.PullRequests.RequestReviewers(ctx, owner, repo, change.Number, github.ReviewersRequest{Reviewers: []string{reviewer}}); err != nil {
			log.With("error", err, "reviewer", reviewer).Warn("Failed to re-request reviewer")
		}
	}
	return nil
}
