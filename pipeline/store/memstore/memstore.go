/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package memstore keeps tasks, outcomes, change records and projects in
// memory. It backs tests and single-process deployments without a
// database.
package memstore

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"chainguard.dev/reviewpipe/pipeline"
)

// Store implements the pipeline stores. Records are copied on the way in
// and out so callers never share memory with the store.
type Store struct {
	mu       sync.Mutex
	nextTask int64
	nextOut  int64
	tasks    map[int64]*pipeline.Task
	outcomes map[int64][]*pipeline.Outcome
	changes  map[int64]*pipeline.ChangeRecord
	projects map[int64]*pipeline.Project
	now      func() time.Time
}

var (
	_ pipeline.TaskStore    = (*Store)(nil)
	_ pipeline.OutcomeStore = (*Store)(nil)
	_ pipeline.ChangeStore  = (*Store)(nil)
	_ pipeline.ProjectStore = (*Store)(nil)
)

// New returns an empty store holding projects.
func New(projects ...*pipeline.Project) *Store {
	s := &Store{
		tasks:    map[int64]*pipeline.Task{},
		outcomes: map[int64][]*pipeline.Outcome{},
		changes:  map[int64]*pipeline.ChangeRecord{},
		projects: map[int64]*pipeline.Project{},
		now:      time.Now,
	}
	for _, p := range projects {
		s.PutProject(p)
	}
	return s
}

// PutProject adds or replaces a project.
func (s *Store) PutProject(p *pipeline.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = cloneProject(p)
}

func (s *Store) GetProject(_ context.Context, id int64) (*pipeline.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %d: %w", id, pipeline.ErrNotFound)
	}
	return cloneProject(p), nil
}

func (s *Store) ListProjects(context.Context) ([]*pipeline.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*pipeline.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, cloneProject(p))
	}
	slices.SortFunc(out, func(a, b *pipeline.Project) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) GetTask(_ context.Context, id int64) (*pipeline.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %d: %w", id, pipeline.ErrNotFound)
	}
	return clone(t), nil
}

func (s *Store) SaveTask(_ context.Context, t *pipeline.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if t.ID == 0 {
		s.nextTask++
		t.ID = s.nextTask
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
	} else if _, ok := s.tasks[t.ID]; !ok {
		return fmt.Errorf("task %d: %w", t.ID, pipeline.ErrNotFound)
	} else {
		t.UpdatedAt = now
	}
	s.tasks[t.ID] = clone(t)
	return nil
}

func (s *Store) FindByExternalID(_ context.Context, projectID int64, source, externalID string) (*pipeline.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.ProjectID == projectID && t.Source == source && t.ExternalID == externalID {
			return clone(t), nil
		}
	}
	return nil, fmt.Errorf("task %s/%s: %w", source, externalID, pipeline.ErrNotFound)
}

func (s *Store) ListByStatus(_ context.Context, status pipeline.Status, limit int) ([]*pipeline.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*pipeline.Task
	for _, t := range s.sortedTasks(0) {
		if t.Status != status {
			continue
		}
		out = append(out, clone(t))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CountTasks(_ context.Context, projectID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sortedTasks(projectID)), nil
}

func (s *Store) DeleteOldest(_ context.Context, projectID int64, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	victims := s.sortedTasks(projectID)
	if limit < len(victims) {
		victims = victims[:limit]
	}
	for _, t := range victims {
		delete(s.tasks, t.ID)
		delete(s.outcomes, t.ID)
		delete(s.changes, t.ID)
	}
	return len(victims), nil
}

// sortedTasks returns the tasks of a project, or all tasks for zero, oldest
// first. Callers hold mu.
func (s *Store) sortedTasks(projectID int64) []*pipeline.Task {
	var out []*pipeline.Task
	for _, t := range s.tasks {
		if projectID == 0 || t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b *pipeline.Task) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func (s *Store) SaveOutcome(_ context.Context, o *pipeline.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOut++
	o.ID = s.nextOut
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now()
	}
	s.outcomes[o.TaskID] = append(s.outcomes[o.TaskID], clone(o))
	return nil
}

func (s *Store) ListOutcomes(_ context.Context, taskID int64) ([]*pipeline.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*pipeline.Outcome, 0, len(s.outcomes[taskID]))
	for _, o := range s.outcomes[taskID] {
		out = append(out, clone(o))
	}
	return out, nil
}

func (s *Store) GetChange(_ context.Context, taskID int64) (*pipeline.ChangeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.changes[taskID]
	if !ok {
		return nil, fmt.Errorf("change for task %d: %w", taskID, pipeline.ErrNotFound)
	}
	return clone(c), nil
}

func (s *Store) SaveChange(_ context.Context, c *pipeline.ChangeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes[c.TaskID] = clone(c)
	return nil
}

// cloneProject copies field by field since access keys are not serialized.
func cloneProject(p *pipeline.Project) *pipeline.Project {
	out := *p
	out.Connections = make([]pipeline.Connection, len(p.Connections))
	for i, c := range p.Connections {
		c.Config = maps.Clone(c.Config)
		c.Agent.Extra = maps.Clone(c.Agent.Extra)
		out.Connections[i] = c
	}
	return &out
}

// clone deep copies through JSON; every record type round-trips.
func clone[T any](v *T) *T {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("memstore: marshal %T: %v", v, err))
	}
	out := new(T)
	if err := json.Unmarshal(b, out); err != nil {
		panic(fmt.Sprintf("memstore: unmarshal %T: %v", v, err))
	}
	return out
}
