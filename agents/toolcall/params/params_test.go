/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package params_test

import (
	"testing"

	"chainguard.dev/reviewpipe/agents/toolcall/params"
)

// Arguments as a model sends them for addReviewCommentToCodeBlock.
var comment = map[string]any{
	"path":       "cmd/main.go",
	"line":       float64(42),
	"start_line": "40",
	"body":       "",
	"ratio":      float64(1.5),
	"big":        float64(9999999999),
	"nothing":    nil,
}

func TestExtract(t *testing.T) {
	if got, err := params.Extract[string](comment, "path"); err != nil || got != "cmd/main.go" {
		t.Errorf("Extract(path) = %q, %v", got, err)
	}
	if got, err := params.Extract[string](comment, "body"); err != nil || got != "" {
		t.Errorf("Extract(body) = %q, %v; an empty string is a value", got, err)
	}
	if got, err := params.Extract[int](comment, "line"); err != nil || got != 42 {
		t.Errorf("Extract[int](line) = %d, %v", got, err)
	}
	if got, err := params.Extract[int32](comment, "start_line"); err != nil || got != 40 {
		t.Errorf("Extract[int32](start_line) = %d, %v", got, err)
	}
	if got, err := params.Extract[int64](comment, "big"); err != nil || got != 9999999999 {
		t.Errorf("Extract[int64](big) = %d, %v", got, err)
	}
	if got, err := params.Extract[float64](comment, "ratio"); err != nil || got != 1.5 {
		t.Errorf("Extract[float64](ratio) = %v, %v", got, err)
	}
}

func TestExtractErrors(t *testing.T) {
	for _, name := range []string{"missing", "nothing"} {
		if _, err := params.Extract[string](comment, name); err == nil {
			t.Errorf("Extract(%s) = nil, wanted a required error", name)
		}
	}
	if _, err := params.Extract[int](comment, "ratio"); err == nil {
		t.Error("Extract[int](1.5) = nil, wanted fractional values rejected")
	}
	if _, err := params.Extract[int](comment, "path"); err == nil {
		t.Error("Extract[int](path) = nil, wanted a type error")
	}
	if _, err := params.Extract[bool](comment, "line"); err == nil {
		t.Error("Extract[bool](line) = nil, wanted a type error")
	}
}

func TestExtractOptional(t *testing.T) {
	if got, err := params.ExtractOptional(comment, "missing", 7); err != nil || got != 7 {
		t.Errorf("ExtractOptional(missing) = %d, %v; wanted the default", got, err)
	}
	if got, err := params.ExtractOptional(comment, "nothing", "x"); err != nil || got != "x" {
		t.Errorf("ExtractOptional(null) = %q, %v; wanted the default", got, err)
	}
	if got, err := params.ExtractOptional(comment, "start_line", 0); err != nil || got != 40 {
		t.Errorf("ExtractOptional(start_line) = %d, %v", got, err)
	}
	if _, err := params.ExtractOptional(comment, "path", 0); err == nil {
		t.Error("ExtractOptional[int](path) = nil, wanted a type error")
	}
}
