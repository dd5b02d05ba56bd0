/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"chainguard.dev/reviewpipe/pipeline"
)

const taskColumns = `id, project_id, name, description, source, external_id, external_refs, status, created_at, updated_at, extra`

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*pipeline.Task, error) {
	var (
		t                pipeline.Task
		refs, extra      string
		created, updated string
	)
	if err := row.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Description, &t.Source, &t.ExternalID, &refs, &t.Status, &created, &updated, &extra); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(refs), &t.ExternalRefs); err != nil {
		return nil, fmt.Errorf("task %d external refs: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(extra), &t.Extra); err != nil {
		return nil, fmt.Errorf("task %d extra: %w", t.ID, err)
	}
	var err error
	if t.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) GetTask(ctx context.Context, id int64) (*pipeline.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, pipeline.ErrNotFound)
	}
	return t, err
}

func (s *Store) SaveTask(ctx context.Context, t *pipeline.Task) error {
	refs := t.ExternalRefs
	if refs == nil {
		refs = []string{}
	}
	refsJSON, err := marshal(refs)
	if err != nil {
		return err
	}
	extra := t.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	extraJSON, err := marshal(extra)
	if err != nil {
		return fmt.Errorf("task extra: %w", err)
	}

	if t.ID == 0 {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = s.now()
		}
		res, err := s.db.ExecContext(ctx, `INSERT INTO tasks(project_id, name, description, source, external_id, external_refs, status, created_at, updated_at, extra) VALUES (?,?,?,?,?,?,?,?,?,?)`,
			t.ProjectID, t.Name, t.Description, t.Source, t.ExternalID, refsJSON, t.Status, formatTime(t.CreatedAt), formatTime(t.UpdatedAt), extraJSON)
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		t.ID, err = res.LastInsertId()
		return err
	}

	t.UpdatedAt = s.now()
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET project_id=?, name=?, description=?, source=?, external_id=?, external_refs=?, status=?, updated_at=?, extra=? WHERE id=?`,
		t.ProjectID, t.Name, t.Description, t.Source, t.ExternalID, refsJSON, t.Status, formatTime(t.UpdatedAt), extraJSON, t.ID)
	if err != nil {
		return fmt.Errorf("update task %d: %w", t.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("task %d: %w", t.ID, pipeline.ErrNotFound)
	}
	return nil
}

func (s *Store) FindByExternalID(ctx context.Context, projectID int64, source, externalID string) (*pipeline.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id=? AND source=? AND external_id=? ORDER BY id DESC LIMIT 1`,
		projectID, source, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s/%s: %w", source, externalID, pipeline.ErrNotFound)
	}
	return t, err
}

func (s *Store) ListByStatus(ctx context.Context, status pipeline.Status, limit int) ([]*pipeline.Task, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE status=? ORDER BY created_at, id LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*pipeline.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CountTasks(ctx context.Context, projectID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE ?=0 OR project_id=?`, projectID, projectID).Scan(&n)
	return n, err
}

// DeleteOldest relies on ON DELETE CASCADE for outcomes and changes.
func (s *Store) DeleteOldest(ctx context.Context, projectID int64, limit int) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id IN (
		SELECT id FROM tasks WHERE ?=0 OR project_id=? ORDER BY created_at, id LIMIT ?
	)`, projectID, projectID, limit)
	if err != nil {
		return 0, fmt.Errorf("delete oldest tasks: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
