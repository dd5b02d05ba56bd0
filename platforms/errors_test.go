/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package platforms

import (
	"errors"
	"testing"

	"chainguard.dev/reviewpipe/pipeline"
)

func TestPrefix(t *testing.T) {
	for in, want := range map[string]string{
		"":            "",
		"   ":         "",
		"[bot]":       "[bot]\n",
		"  [bot] \n ": "[bot]\n",
	} {
		if got := Prefix(in); got != want {
			t.Errorf("Prefix(%q): got = %q, wanted = %q", in, got, want)
		}
	}
}

func TestSplitRepository(t *testing.T) {
	owner, repo, err := SplitRepository("acme/widgets")
	if err != nil || owner != "acme" || repo != "widgets" {
		t.Errorf("SplitRepository: got = %q, %q, %v", owner, repo, err)
	}
	for _, bad := range []string{"", "acme", "/widgets", "a/b/c"} {
		if _, _, err := SplitRepository(bad); err == nil {
			t.Errorf("SplitRepository(%q): got = nil, wanted error", bad)
		}
	}
}

func TestSubmissionErrorUnwraps(t *testing.T) {
	cause := errors.New("422")
	err := error(&SubmissionError{Provider: "github", Target: "acme/widgets#4", Err: cause})
	if !errors.Is(err, cause) {
		t.Error("SubmissionError does not unwrap")
	}
}

func TestFoldComments(t *testing.T) {
	got := FoldComments("S", []pipeline.InlineComment{
		{Path: "a.go", Body: "one", Line: 8, StartLine: 2},
		{Path: "b.go", Body: "two"},
	})
	want := "S\n\nPer File comments\n\nFile: a.go (2:8)\none\n\nFile: b.go (-)\ntwo\n"
	if got != want {
		t.Errorf("FoldComments() = %q, wanted %q", got, want)
	}
	if got := FoldComments("S", nil); got != "S" {
		t.Errorf("FoldComments(nil) = %q, wanted %q", got, "S")
	}
}
