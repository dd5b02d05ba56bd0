/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package platforms holds what the review platform clients share.
package platforms

import (
	"fmt"
	"strconv"
	"strings"

	"chainguard.dev/reviewpipe/pipeline"
)

// SubmissionError is returned when a review platform rejects a review,
// including the one fallback submission.
type SubmissionError struct {
	Provider string
	Target   string
	Err      error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s rejected review on %s: %v", e.Provider, e.Target, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// APIError is a non-2xx response from a REST API.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// HTTPStatus lets retry classifiers see the status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Prefix normalizes a review comment prefix: trimmed and followed by a
// newline, or empty.
func Prefix(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return raw + "\n"
}

// SplitRepository splits "owner/repo".
func SplitRepository(key string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(strings.Trim(key, "/"), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("repository %q is not in owner/repo form", key)
	}
	return owner, repo, nil
}

// FoldComments renders inline comments as a plain "Per File comments"
// section after summary, for platforms or submissions that cannot anchor
// them to lines.
func FoldComments(summary string, comments []pipeline.InlineComment) string {
	if len(comments) == 0 {
		return summary
	}
	var b strings.Builder
	b.WriteString(summary)
	b.WriteString("\n\nPer File comments\n")
	for _, cm := range comments {
		b.WriteString("\nFile: ")
		b.WriteString(cm.Path)
		b.WriteString(" (")
		if cm.StartLine > 0 {
			b.WriteString(strconv.Itoa(cm.StartLine))
			b.WriteByte(':')
		}
		if cm.Line > 0 {
			b.WriteString(strconv.Itoa(cm.Line))
		} else {
			b.WriteByte('-')
		}
		b.WriteString(")\n")
		b.WriteString(cm.Body)
		b.WriteByte('\n')
	}
	return b.String()
}
