/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main runs the review pipeline service: webhook intake, task
// dispatch through the agent chains and the periodic sweeps.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chainguard.dev/reviewpipe/agents/completion"
	"chainguard.dev/reviewpipe/agents/completion/claudeadapter"
	"chainguard.dev/reviewpipe/agents/completion/googleadapter"
	"chainguard.dev/reviewpipe/agents/completion/openaiadapter"
	"chainguard.dev/reviewpipe/agents/respcache"
	"chainguard.dev/reviewpipe/agents/retry"
	"chainguard.dev/reviewpipe/pipeline"
	"chainguard.dev/reviewpipe/pipeline/definition"
	"chainguard.dev/reviewpipe/pipeline/events"
	"chainguard.dev/reviewpipe/pipeline/orchestrator"
	"chainguard.dev/reviewpipe/pipeline/report"
	"chainguard.dev/reviewpipe/pipeline/store/sqlitestore"
	"chainguard.dev/reviewpipe/pipeline/taskagent/changecontext"
	"chainguard.dev/reviewpipe/pipeline/taskagent/codereview"
	"chainguard.dev/reviewpipe/pipeline/taskagent/jiracontext"
	"chainguard.dev/reviewpipe/pipeline/taskagent/slacknotify"
	"chainguard.dev/reviewpipe/pipeline/taskagent/transform"
	"chainguard.dev/reviewpipe/platforms/github"
	"chainguard.dev/reviewpipe/platforms/gitlab"
	"chainguard.dev/reviewpipe/platforms/jira"
	"chainguard.dev/reviewpipe/platforms/webhook"
	"chainguard.dev/reviewpipe/reconcilers/changereconciler"
	"chainguard.dev/reviewpipe/workqueue/inmem"
	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/sync/errgroup"
)

type config struct {
	Port        int `env:"PORT,default=8080"`
	MetricsPort int `env:"METRICS_PORT,default=2112"`

	DatabasePath string `env:"DATABASE_PATH,default=reviewpipe.db"`
	PipelineFile string `env:"PIPELINE_FILE,required"`

	// NATS carries task events between replicas. Without it events are
	// handled in process.
	NatsURL    string `env:"NATS_URL"`
	NatsPrefix string `env:"NATS_PREFIX,default=reviewpipe"`

	GithubWebhookSecret string `env:"GITHUB_WEBHOOK_SECRET"`
	GitlabWebhookToken  string `env:"GITLAB_WEBHOOK_TOKEN"`

	// GitHub Enterprise endpoints and App credentials, all optional.
	GithubAPIURL         string `env:"GITHUB_API_URL"`
	GithubGraphQLURL     string `env:"GITHUB_GRAPHQL_URL"`
	GithubAppID          int64  `env:"GITHUB_APP_ID"`
	GithubInstallationID int64  `env:"GITHUB_INSTALLATION_ID"`
	GithubAppKeyPath     string `env:"GITHUB_APP_KEY_PATH"`

	ClaudeMaxTokens   int64 `env:"CLAUDE_MAX_TOKENS,default=4096"`
	CompletionRetries int   `env:"COMPLETION_RETRIES,default=0"`

	Concurrency   int           `env:"CONCURRENCY,default=4"`
	MaxAttempts   int           `env:"MAX_ATTEMPTS,default=3"`
	AgentTimeout  time.Duration `env:"AGENT_TIMEOUT,default=10m"`
	ReadyInterval time.Duration `env:"READY_SWEEP_INTERVAL,default=1m"`
	SweepInterval time.Duration `env:"CHANGE_SWEEP_INTERVAL,default=15m"`

	GlobalTaskLimit  int `env:"TASK_LIMIT,default=0"`
	ProjectTaskLimit int `env:"PROJECT_TASK_LIMIT,default=0"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		clog.FatalContextf(ctx, "processing config: %v", err)
	}

	store, err := sqlitestore.Open(ctx, cfg.DatabasePath)
	if err != nil {
		clog.FatalContextf(ctx, "opening database: %v", err)
	}
	defer store.Close()

	client, err := newCompletionClient(&cfg, respcache.New(store))
	if err != nil {
		clog.FatalContextf(ctx, "creating completion client: %v", err)
	}

	ghOpts := []github.Option{}
	if cfg.GithubAPIURL != "" {
		ghOpts = append(ghOpts, github.WithEndpoints(cfg.GithubAPIURL, cfg.GithubGraphQLURL))
	}
	if cfg.GithubAppID != 0 {
		key, err := os.ReadFile(cfg.GithubAppKeyPath)
		if err != nil {
			clog.FatalContextf(ctx, "reading GitHub App key: %v", err)
		}
		ghOpts = append(ghOpts, github.WithAppInstallation(cfg.GithubAppID, cfg.GithubInstallationID, key))
	}
	gh, err := github.New(ghOpts...)
	if err != nil {
		clog.FatalContextf(ctx, "creating GitHub client: %v", err)
	}
	gl, err := gitlab.New()
	if err != nil {
		clog.FatalContextf(ctx, "creating GitLab client: %v", err)
	}
	tickets, err := jira.New()
	if err != nil {
		clog.FatalContextf(ctx, "creating Jira client: %v", err)
	}
	poster, err := webhook.NewPoster()
	if err != nil {
		clog.FatalContextf(ctx, "creating notification poster: %v", err)
	}

	ghReviewer, err := codereview.NewGithub(client, gh, store)
	if err != nil {
		clog.FatalContextf(ctx, "creating GitHub reviewer: %v", err)
	}
	glReviewer, err := codereview.NewGitlab(client, gl, store)
	if err != nil {
		clog.FatalContextf(ctx, "creating GitLab reviewer: %v", err)
	}
	registry, err := orchestrator.NewRegistry(
		changecontext.NewGithub(store),
		changecontext.NewGitlab(store),
		jiracontext.New(tickets, store),
		transform.New(client),
		ghReviewer,
		glReviewer,
		slacknotify.New(poster, store),
	)
	if err != nil {
		clog.FatalContextf(ctx, "registering agents: %v", err)
	}

	projects, err := definition.LoadFile(cfg.PipelineFile)
	if err != nil {
		clog.FatalContextf(ctx, "loading pipeline: %v", err)
	}
	for _, p := range projects {
		if err := registry.Validate(p); err != nil {
			clog.FatalContextf(ctx, "invalid project %q: %v", p.Name, err)
		}
		if err := store.PutProject(ctx, p); err != nil {
			clog.FatalContextf(ctx, "storing project %q: %v", p.Name, err)
		}
	}
	clog.InfoContextf(ctx, "Loaded %d projects, agents: %v", len(projects), registry.Types())

	queue := inmem.New()
	routes := &router{queue: queue}
	publisher := pipeline.Publisher(routes)
	var bus *events.Bus
	if cfg.NatsURL != "" {
		if bus, err = events.Connect(cfg.NatsURL, events.WithPrefix(cfg.NatsPrefix)); err != nil {
			clog.FatalContextf(ctx, "connecting to NATS: %v", err)
		}
		defer bus.Close()
		publisher = bus
	}

	orch, err := orchestrator.New(registry, store, store, store,
		orchestrator.WithPublisher(publisher),
		orchestrator.WithAgentTimeout(cfg.AgentTimeout),
	)
	if err != nil {
		clog.FatalContextf(ctx, "creating orchestrator: %v", err)
	}
	lifecycle := orchestrator.NewLifecycle(orch, orchestrator.Retention{
		GlobalLimit:  cfg.GlobalTaskLimit,
		ProjectLimit: cfg.ProjectTaskLimit,
	})
	routes.lifecycle = lifecycle
	if bus != nil {
		unsubscribe, err := bus.Subscribe(ctx, "reviewpipe", routes.Handle,
			pipeline.EventTaskCreated, pipeline.EventTaskUpdated, pipeline.EventTaskCompleted)
		if err != nil {
			clog.FatalContextf(ctx, "subscribing to task events: %v", err)
		}
		defer unsubscribe()
	}

	rec, err := changereconciler.New(store, store, store, lifecycle,
		changereconciler.WithPlatform(gh),
		changereconciler.WithPlatform(gl),
		changereconciler.WithPublisher(publisher),
	)
	if err != nil {
		clog.FatalContextf(ctx, "creating change reconciler: %v", err)
	}

	hooks, err := webhook.NewHandler(rec.OnExternalItemUpdated,
		webhook.WithGithubSecret(cfg.GithubWebhookSecret),
		webhook.WithGitlabToken(cfg.GitlabWebhookToken),
	)
	if err != nil {
		clog.FatalContextf(ctx, "creating webhook handler: %v", err)
	}
	mux := http.NewServeMux()
	hooks.Register(mux)
	mux.HandleFunc("GET /tasks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		if err := report.Tasks(r.Context(), w, store, store, 50); err != nil {
			clog.FromContext(r.Context()).With("error", err).Error("Rendering task report failed")
			http.Error(w, "report failed", http.StatusInternalServerError)
		}
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", promhttp.Handler())

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return serve(ctx, cfg.Port, mux) })
	eg.Go(func() error { return serve(ctx, cfg.MetricsPort, metricsMux) })
	eg.Go(func() error {
		return dispatchLoop(ctx, queue, lifecycle, cfg.Concurrency, cfg.MaxAttempts)
	})
	eg.Go(func() error {
		return every(ctx, cfg.ReadyInterval, "ready sweep", func(ctx context.Context) error {
			_, err := lifecycle.QueueReady(ctx, queue, 0)
			return err
		})
	})
	eg.Go(func() error {
		return every(ctx, cfg.SweepInterval, "change sweep", func(ctx context.Context) error {
			created, err := rec.Sweep(ctx)
			if created > 0 {
				clog.InfoContextf(ctx, "Change sweep created %d tasks", created)
			}
			return err
		})
	})

	clog.InfoContextf(ctx, "Serving webhooks on port %d, metrics on port %d", cfg.Port, cfg.MetricsPort)
	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		clog.FatalContextf(ctx, "server failed: %v", err)
	}
}

func newCompletionClient(cfg *config, cache *respcache.Cache) (*completion.Client, error) {
	claude, err := claudeadapter.New(claudeadapter.WithMaxTokens(cfg.ClaudeMaxTokens))
	if err != nil {
		return nil, err
	}
	gemini, err := googleadapter.New()
	if err != nil {
		return nil, err
	}
	opts := []completion.Option{
		completion.WithAdapter("claude-", claude),
		completion.WithAdapter("gemini-", gemini),
		completion.WithCache(cache),
	}
	if cfg.CompletionRetries > 0 {
		rc := retry.DefaultRetryConfig()
		rc.MaxRetries = cfg.CompletionRetries
		opts = append(opts, completion.WithRetryConfig(rc))
	}
	return completion.New(openaiadapter.New(), opts...)
}

func serve(ctx context.Context, port int, h http.Handler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
