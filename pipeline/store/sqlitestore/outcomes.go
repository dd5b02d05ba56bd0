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

func (s *Store) SaveOutcome(ctx context.Context, o *pipeline.Outcome) error {
	metrics := o.Metrics
	if metrics == nil {
		metrics = map[string]any{}
	}
	metricsJSON, err := marshal(metrics)
	if err != nil {
		return fmt.Errorf("outcome metrics: %w", err)
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO outcomes(task_id, agent_id, agent_name, input, output, metrics, created_at) VALUES (?,?,?,?,?,?,?)`,
		o.TaskID, o.AgentID, o.AgentName, o.Input, o.Output, metricsJSON, formatTime(o.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	o.ID, err = res.LastInsertId()
	return err
}

func (s *Store) ListOutcomes(ctx context.Context, taskID int64) ([]*pipeline.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, task_id, agent_id, agent_name, input, output, metrics, created_at FROM outcomes WHERE task_id=? ORDER BY id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*pipeline.Outcome{}
	for rows.Next() {
		var (
			o                pipeline.Outcome
			metrics, created string
		)
		if err := rows.Scan(&o.ID, &o.TaskID, &o.AgentID, &o.AgentName, &o.Input, &o.Output, &metrics, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metrics), &o.Metrics); err != nil {
			return nil, fmt.Errorf("outcome %d metrics: %w", o.ID, err)
		}
		if o.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (s *Store) GetChange(ctx context.Context, taskID int64) (*pipeline.ChangeRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM changes WHERE task_id=?`, taskID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("change for task %d: %w", taskID, pipeline.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var c pipeline.ChangeRecord
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, fmt.Errorf("change for task %d: %w", taskID, err)
	}
	return &c, nil
}

func (s *Store) SaveChange(ctx context.Context, c *pipeline.ChangeRecord) error {
	data, err := marshal(c)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO changes(task_id, provider, repo_key, number, state, data) VALUES (?,?,?,?,?,?)
ON CONFLICT(task_id) DO UPDATE SET provider=excluded.provider, repo_key=excluded.repo_key, number=excluded.number, state=excluded.state, data=excluded.data`,
		c.TaskID, c.Provider, c.RepoKey, c.Number, c.State, data)
	if err != nil {
		return fmt.Errorf("save change for task %d: %w", c.TaskID, err)
	}
	return nil
}
