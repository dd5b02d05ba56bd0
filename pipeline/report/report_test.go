/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package report

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"chainguard.dev/reviewpipe/pipeline"
	"chainguard.dev/reviewpipe/pipeline/store/memstore"
)

func TestTasks(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, task := range []*pipeline.Task{
		{ProjectID: 1, Name: "widgets #4: Fix login", Status: pipeline.StatusCompleted, CreatedAt: created},
		{ProjectID: 2, Name: strings.Repeat("x", 80), Status: pipeline.StatusReadyToProcess, CreatedAt: created},
	} {
		if err := store.SaveTask(ctx, task); err != nil {
			t.Fatalf("SaveTask() = %v", err)
		}
	}
	for _, name := range []string{"Github Context Agent", "Github Code Reviewer Agent"} {
		if err := store.SaveOutcome(ctx, &pipeline.Outcome{TaskID: 1, AgentName: name}); err != nil {
			t.Fatalf("SaveOutcome() = %v", err)
		}
	}

	var buf bytes.Buffer
	if err := Tasks(ctx, &buf, store, store, 0); err != nil {
		t.Fatalf("Tasks() = %v", err)
	}
	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines: got = %d, wanted = 4 (header, separator, 2 rows):\n%s", len(lines), out)
	}
	// Ready tasks are listed before completed ones.
	if !strings.Contains(lines[2], "READY_TO_PROCESS") || !strings.Contains(lines[2], strings.Repeat("x", 57)+"...") {
		t.Errorf("first row: got = %q", lines[2])
	}
	for _, want := range []string{"COMPLETED", "widgets #4: Fix login", "Github Code Reviewer Agent", "2026-03-01T12:00:00Z"} {
		if !strings.Contains(lines[3], want) {
			t.Errorf("second row %q does not contain %q", lines[3], want)
		}
	}
}
