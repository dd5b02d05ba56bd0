/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package report renders task status tables for operators.
package report

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"chainguard.dev/reviewpipe/pipeline"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// Statuses lists task statuses in report order.
var Statuses = []pipeline.Status{
	pipeline.StatusProcessing,
	pipeline.StatusReadyToProcess,
	pipeline.StatusNew,
	pipeline.StatusFailed,
	pipeline.StatusCompleted,
}

const maxNameWidth = 60

func newTable(headers []string, w io.Writer) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{Left: tw.On, Top: tw.Off, Right: tw.On, Bottom: tw.Off},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// Tasks writes up to limit tasks per status (0 for all) as a markdown
// table, with the agent that produced each task's latest outcome.
func Tasks(ctx context.Context, w io.Writer, tasks pipeline.TaskStore, outcomes pipeline.OutcomeStore, limit int) error {
	table := newTable([]string{"ID", "Project", "Status", "Name", "Last agent", "Outcomes", "Updated"}, w)

	for _, status := range Statuses {
		list, err := tasks.ListByStatus(ctx, status, limit)
		if err != nil {
			return fmt.Errorf("list %s tasks: %w", status, err)
		}
		for _, t := range list {
			results, err := outcomes.ListOutcomes(ctx, t.ID)
			if err != nil {
				return fmt.Errorf("list outcomes of task %d: %w", t.ID, err)
			}
			last := "-"
			if len(results) > 0 {
				last = results[len(results)-1].AgentName
			}
			updated := t.UpdatedAt
			if updated.IsZero() {
				updated = t.CreatedAt
			}
			if err := table.Append([]string{
				strconv.FormatInt(t.ID, 10),
				strconv.FormatInt(t.ProjectID, 10),
				status.String(),
				truncate(t.Name, maxNameWidth),
				last,
				strconv.Itoa(len(results)),
				updated.UTC().Format(time.RFC3339),
			}); err != nil {
				return err
			}
		}
	}
	return table.Render()
}
