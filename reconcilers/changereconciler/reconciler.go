/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package changereconciler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"chainguard.dev/reviewpipe/pipeline"
	"chainguard.dev/reviewpipe/pipeline/taskagent/changecontext"
	"github.com/chainguard-dev/clog"
)

// Completer ends the task of a closed change set.
type Completer interface {
	MarkCompleted(ctx context.Context, taskID int64) error
}

// Reconciler turns external item updates into task changes.
type Reconciler struct {
	tasks     pipeline.TaskStore
	changes   pipeline.ChangeStore
	projects  pipeline.ProjectStore
	completer Completer
	publisher pipeline.Publisher
	platforms map[string]pipeline.ReviewPlatform
}

// Option configures a Reconciler.
type Option func(*Reconciler) error

// WithPlatform serves updates for p.Provider().
func WithPlatform(p pipeline.ReviewPlatform) Option {
	return func(r *Reconciler) error {
		if p == nil {
			return errors.New("platform cannot be nil")
		}
		if _, ok := r.platforms[p.Provider()]; ok {
			return fmt.Errorf("platform %s registered twice", p.Provider())
		}
		r.platforms[p.Provider()] = p
		return nil
	}
}

// WithPublisher sets where task created and updated events go.
func WithPublisher(p pipeline.Publisher) Option {
	return func(r *Reconciler) error {
		if p == nil {
			return errors.New("publisher cannot be nil")
		}
		r.publisher = p
		return nil
	}
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, pipeline.Event) error { return nil }

// New returns a Reconciler.
func New(tasks pipeline.TaskStore, changes pipeline.ChangeStore, projects pipeline.ProjectStore, completer Completer, opts ...Option) (*Reconciler, error) {
	r := &Reconciler{
		tasks:     tasks,
		changes:   changes,
		projects:  projects,
		completer: completer,
		publisher: noopPublisher{},
		platforms: map[string]pipeline.ReviewPlatform{},
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return r, nil
}

// provider describes how tasks of one platform are named and matched.
type provider struct {
	contextType string
	source      string
	sameRepo    func(configured, key string) bool
	taskName    func(key string, number int, title string) string
}

var providers = map[string]provider{
	pipeline.ProviderGithub: {
		contextType: changecontext.GithubType,
		source:      pipeline.SourceGithubPR,
		sameRepo:    strings.EqualFold,
		taskName: func(key string, number int, title string) string {
			_, repo, _ := strings.Cut(key, "/")
			return fmt.Sprintf("%s #%d: %s", repo, number, title)
		},
	},
	pipeline.ProviderGitlab: {
		contextType: changecontext.GitlabType,
		source:      pipeline.SourceGitlabMR,
		sameRepo: func(configured, key string) bool {
			return strings.EqualFold(strings.TrimRight(configured, "/"), strings.TrimRight(key, "/"))
		},
		taskName: func(_ string, number int, title string) string {
			return fmt.Sprintf("#%d: %s", number, title)
		},
	},
}

// ExternalID identifies a change set within a project. Repository keys
// compare case-insensitively.
func ExternalID(repoKey string, number int) string {
	return strings.ToLower(strings.TrimRight(repoKey, "/")) + "#" + strconv.Itoa(number)
}

// binding is a project connection that watches a repository.
type binding struct {
	project *pipeline.Project
	conn    *pipeline.Connection
}

// bindings returns, per project, the first context agent connection of the
// provider watching repoKey. An empty repoKey matches every repository.
func (r *Reconciler) bindings(ctx context.Context, p provider, repoKey string) ([]binding, error) {
	projects, err := r.projects.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	var out []binding
	for _, project := range projects {
		for i := range project.Connections {
			conn := &project.Connections[i]
			if conn.Agent.Type != p.contextType {
				continue
			}
			repo := conn.ConfigValue("repository")
			if repo == "" || (repoKey != "" && !p.sameRepo(repo, repoKey)) {
				continue
			}
			out = append(out, binding{project: project, conn: conn})
			break
		}
	}
	return out, nil
}

// OnExternalItemUpdated applies one update to every project watching the
// repository. A failure in one project does not stop the others.
func (r *Reconciler) OnExternalItemUpdated(ctx context.Context, u pipeline.ItemUpdate) error {
	p, ok := providers[u.Provider]
	if !ok {
		return fmt.Errorf("unknown provider %q", u.Provider)
	}
	platform, ok := r.platforms[u.Provider]
	if !ok {
		return fmt.Errorf("no platform configured for %s", u.Provider)
	}
	log := clog.FromContext(ctx).With("provider", u.Provider, "repo", u.ItemKey, "number", u.ItemID, "state", u.State)

	bound, err := r.bindings(ctx, p, u.ItemKey)
	if err != nil {
		return err
	}
	if len(bound) == 0 {
		log.Info("No project watches this repository")
		return nil
	}

	var errs []error
	for _, b := range bound {
		if err := r.apply(ctx, p, platform, b, u); err != nil {
			log.With("project", b.project.ID, "error", err).Error("Failed to apply item update")
			errs = append(errs, fmt.Errorf("project %d: %w", b.project.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Reconciler) apply(ctx context.Context, p provider, platform pipeline.ReviewPlatform, b binding, u pipeline.ItemUpdate) error {
	task, err := r.tasks.FindByExternalID(ctx, b.project.ID, p.source, ExternalID(u.ItemKey, u.ItemID))
	if err != nil && !errors.Is(err, pipeline.ErrNotFound) {
		return err
	}

	switch {
	case u.Closed():
		if task == nil {
			return nil
		}
		return r.completer.MarkCompleted(ctx, task.ID)
	case task != nil:
		return r.refresh(ctx, platform, b, task, u.ItemID)
	default:
		_, err := r.create(ctx, p, platform, b, u.ItemID)
		return err
	}
}

func (r *Reconciler) refresh(ctx context.Context, platform pipeline.ReviewPlatform, b binding, task *pipeline.Task, number int) error {
	change, err := platform.FetchChangeSet(ctx, b.conn, number)
	if err != nil {
		return fmt.Errorf("fetch change set %d: %w", number, err)
	}
	change.TaskID = task.ID
	if err := r.changes.SaveChange(ctx, change); err != nil {
		return fmt.Errorf("save change set: %w", err)
	}

	if task.Status != pipeline.StatusCompleted && task.Status != pipeline.StatusFailed {
		clog.FromContext(ctx).With("task", task.ID, "status", task.Status.String()).Debug("Refreshed change set, task not finished")
		return nil
	}
	if err := task.Transition(pipeline.StatusReadyToProcess); err != nil {
		return err
	}
	if err := r.tasks.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("save task %d: %w", task.ID, err)
	}
	return r.publisher.Publish(ctx, pipeline.Event{Type: pipeline.EventTaskUpdated, TaskID: task.ID})
}

func (r *Reconciler) create(ctx context.Context, p provider, platform pipeline.ReviewPlatform, b binding, number int) (*pipeline.Task, error) {
	change, err := platform.FetchChangeSet(ctx, b.conn, number)
	if err != nil {
		return nil, fmt.Errorf("fetch change set %d: %w", number, err)
	}

	task := &pipeline.Task{
		ProjectID:   b.project.ID,
		Name:        p.taskName(change.RepoKey, number, change.Title),
		Description: strings.TrimSpace(change.Body + "\nCommits:\n " + strings.Join(change.Commits, ",\n")),
		Source:      p.source,
		ExternalID:  ExternalID(change.RepoKey, number),
		Status:      pipeline.StatusNew,
	}
	task.AddExternalRef(change.URL)
	if err := r.tasks.SaveTask(ctx, task); err != nil {
		return nil, fmt.Errorf("save task: %w", err)
	}

	change.TaskID = task.ID
	if err := r.changes.SaveChange(ctx, change); err != nil {
		return nil, fmt.Errorf("save change set: %w", err)
	}
	if err := task.Transition(pipeline.StatusReadyToProcess); err != nil {
		return nil, err
	}
	if err := r.tasks.SaveTask(ctx, task); err != nil {
		return nil, fmt.Errorf("save task %d: %w", task.ID, err)
	}

	clog.FromContext(ctx).With("task", task.ID, "project", b.project.ID, "change", change.URL).Info("Created task for change set")
	return task, r.publisher.Publish(ctx, pipeline.Event{Type: pipeline.EventTaskCreated, TaskID: task.ID})
}

// Sweep creates tasks for open change sets that no task covers yet, in every
// project with a context agent. It returns the number of tasks created.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	created := 0
	var errs []error
	for name, platform := range r.platforms {
		p, ok := providers[name]
		if !ok {
			continue
		}
		bound, err := r.bindings(ctx, p, "")
		if err != nil {
			return created, err
		}
		for _, b := range bound {
			n, err := r.sweepBinding(ctx, p, platform, b)
			created += n
			if err != nil {
				errs = append(errs, fmt.Errorf("project %d: %w", b.project.ID, err))
			}
		}
	}
	return created, errors.Join(errs...)
}

func (r *Reconciler) sweepBinding(ctx context.Context, p provider, platform pipeline.ReviewPlatform, b binding) (int, error) {
	log := clog.FromContext(ctx).With("project", b.project.Name)
	open, err := platform.ListOpen(ctx, b.conn)
	if err != nil {
		return 0, fmt.Errorf("list open change sets: %w", err)
	}
	repoKey := b.conn.ConfigValue("repository")

	created := 0
	var errs []error
	for _, item := range open {
		_, err := r.tasks.FindByExternalID(ctx, b.project.ID, p.source, ExternalID(repoKey, item.Number))
		if err == nil {
			log.With("number", item.Number).Debug("Change set already has a task")
			continue
		}
		if !errors.Is(err, pipeline.ErrNotFound) {
			errs = append(errs, err)
			continue
		}
		if _, err := r.create(ctx, p, platform, b, item.Number); err != nil {
			log.With("number", item.Number, "error", err).Error("Failed to create task")
			errs = append(errs, err)
			continue
		}
		created++
	}
	return created, errors.Join(errs...)
}
