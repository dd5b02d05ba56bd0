/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package sqlitestore

import (
	"context"
	"encoding/json"
	"fmt"

	"chainguard.dev/reviewpipe/pipeline"
)

// PutProject replaces a project together with its connections and the
// agent configs they reference.
func (s *Store) PutProject(ctx context.Context, p *pipeline.Project) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `INSERT INTO projects(id, name) VALUES (?,?) ON CONFLICT(id) DO UPDATE SET name=excluded.name`, p.ID, p.Name); err != nil {
		return fmt.Errorf("save project %d: %w", p.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM connections WHERE project_id=?`, p.ID); err != nil {
		return fmt.Errorf("clear connections of project %d: %w", p.ID, err)
	}

	for i, c := range p.Connections {
		extra, err := marshal(nonNil(c.Agent.Extra))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO agent_configs(id, name, type, access_key, access_name, extra) VALUES (?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, type=excluded.type, access_key=excluded.access_key, access_name=excluded.access_name, extra=excluded.extra`,
			c.Agent.ID, c.Agent.Name, c.Agent.Type, c.Agent.AccessKey, c.Agent.AccessName, extra); err != nil {
			return fmt.Errorf("save agent %d: %w", c.Agent.ID, err)
		}
		config, err := marshal(nonNil(c.Config))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO connections(id, project_id, agent_id, position, config) VALUES (?,?,?,?,?)`,
			c.ID, p.ID, c.Agent.ID, i, config); err != nil {
			return fmt.Errorf("save connection %d: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func (s *Store) GetProject(ctx context.Context, id int64) (*pipeline.Project, error) {
	projects, err := s.loadProjects(ctx, `WHERE p.id=?`, id)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, fmt.Errorf("project %d: %w", id, pipeline.ErrNotFound)
	}
	return projects[0], nil
}

func (s *Store) ListProjects(ctx context.Context) ([]*pipeline.Project, error) {
	return s.loadProjects(ctx, ``)
}

func (s *Store) loadProjects(ctx context.Context, where string, args ...any) ([]*pipeline.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT p.id, p.name, c.id, c.position, c.config, a.id, a.name, a.type, a.access_key, a.access_name, a.extra
FROM projects p
LEFT JOIN connections c ON c.project_id = p.id
LEFT JOIN agent_configs a ON a.id = c.agent_id `+where+`
ORDER BY p.id, c.position`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*pipeline.Project
	for rows.Next() {
		var (
			pid                   int64
			pname                 string
			cid, pos, aid         *int64
			config, aname, atype  *string
			akey, aaccess, aextra *string
		)
		if err := rows.Scan(&pid, &pname, &cid, &pos, &config, &aid, &aname, &atype, &akey, &aaccess, &aextra); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].ID != pid {
			out = append(out, &pipeline.Project{ID: pid, Name: pname})
		}
		if cid == nil || aid == nil {
			continue
		}
		conn := pipeline.Connection{
			ID:        *cid,
			ProjectID: pid,
			Position:  int(*pos),
			Agent: pipeline.AgentConfig{
				ID:         *aid,
				Name:       *aname,
				Type:       *atype,
				AccessKey:  *akey,
				AccessName: *aaccess,
			},
		}
		if err := json.Unmarshal([]byte(*config), &conn.Config); err != nil {
			return nil, fmt.Errorf("connection %d config: %w", conn.ID, err)
		}
		if err := json.Unmarshal([]byte(*aextra), &conn.Agent.Extra); err != nil {
			return nil, fmt.Errorf("agent %d extra: %w", conn.Agent.ID, err)
		}
		p := out[len(out)-1]
		p.Connections = append(p.Connections, conn)
	}
	return out, rows.Err()
}
