/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package webhook carries notifications out to chat webhooks and change
// set updates in from source hosting webhooks.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"chainguard.dev/reviewpipe/pipeline"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

// Routes served by Handler.
const (
	GithubRoute = "/api/webhook/github/pr_update"
	GitlabRoute = "/api/webhook/gitlab/mr_update"
)

// Sink receives accepted updates. It should hand them off quickly; the
// sender is answered only after it returns.
type Sink func(context.Context, pipeline.ItemUpdate) error

// Handler turns webhook deliveries into pipeline.ItemUpdate values. Both
// routes accept a compact JSON body as well as the platform's native
// pull or merge request event.
type Handler struct {
	sink         Sink
	githubSecret []byte
	gitlabToken  string
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler) error

// WithGithubSecret validates native GitHub deliveries against the webhook
// secret.
func WithGithubSecret(secret string) HandlerOption {
	return func(h *Handler) error {
		h.githubSecret = []byte(secret)
		return nil
	}
}

// WithGitlabToken requires native GitLab deliveries to carry token in
// X-Gitlab-Token.
func WithGitlabToken(token string) HandlerOption {
	return func(h *Handler) error {
		h.gitlabToken = token
		return nil
	}
}

// NewHandler returns a Handler that passes updates to sink.
func NewHandler(sink Sink, opts ...HandlerOption) (*Handler, error) {
	if sink == nil {
		return nil, errors.New("sink cannot be nil")
	}
	h := &Handler{sink: sink}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return h, nil
}

// Register adds the webhook routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST "+GithubRoute, h.github)
	mux.HandleFunc("POST "+GitlabRoute, h.gitlab)
}

var errInvalidPayload = errors.New("invalid payload")

func (h *Handler) github(w http.ResponseWriter, r *http.Request) {
	var (
		u   *pipeline.ItemUpdate
		err error
	)
	if github.WebHookType(r) != "" {
		u, err = h.nativeGithub(r)
	} else {
		u, err = compactGithub(r)
	}
	h.finish(w, r, u, err)
}

func compactGithub(r *http.Request) (*pipeline.ItemUpdate, error) {
	var body struct {
		Owner  string `json:"owner"`
		Repo   string `json:"repo"`
		PRID   int    `json:"prId"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
		return nil, errInvalidPayload
	}
	if body.Owner == "" || body.Repo == "" || body.PRID <= 0 || body.Status == "" {
		return nil, errInvalidPayload
	}
	return &pipeline.ItemUpdate{
		Provider: pipeline.ProviderGithub,
		ItemKey:  body.Owner + "/" + body.Repo,
		ItemID:   body.PRID,
		State:    strings.ToLower(body.Status),
	}, nil
}

func (h *Handler) nativeGithub(r *http.Request) (*pipeline.ItemUpdate, error) {
	payload, err := github.ValidatePayload(r, h.githubSecret)
	if err != nil {
		return nil, errInvalidPayload
	}
	event, err := github.ParseWebHook(github.WebHookType(r), payload)
	if err != nil {
		return nil, errInvalidPayload
	}
	pr, ok := event.(*github.PullRequestEvent)
	if !ok {
		// ping and unrelated events are acknowledged and dropped.
		return nil, nil
	}
	u := &pipeline.ItemUpdate{
		Provider: pipeline.ProviderGithub,
		ItemKey:  pr.GetRepo().GetFullName(),
		ItemID:   pr.GetNumber(),
	}
	switch pr.GetAction() {
	case "closed":
		u.State = pipeline.StateClosed
		if pr.GetPullRequest().GetMerged() {
			u.State = pipeline.StateMerged
		}
	case "opened", "reopened", "synchronize", "ready_for_review", "edited":
		u.State = pipeline.StateOpen
	default:
		return nil, nil
	}
	if u.ItemKey == "" || u.ItemID <= 0 {
		return nil, errInvalidPayload
	}
	return u, nil
}

func (h *Handler) gitlab(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RepoURL string `json:"repoURL"`
		MRID    int    `json:"mrId"`
		PRID    int    `json:"prId"`
		Status  string `json:"status"`

		ObjectKind string `json:"object_kind"`
		Project    struct {
			WebURL string `json:"web_url"`
		} `json:"project"`
		ObjectAttributes struct {
			IID   int    `json:"iid"`
			State string `json:"state"`
		} `json:"object_attributes"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
		h.finish(w, r, nil, errInvalidPayload)
		return
	}

	u := &pipeline.ItemUpdate{Provider: pipeline.ProviderGitlab}
	if r.Header.Get("X-Gitlab-Event") != "" {
		if h.gitlabToken != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Gitlab-Token")), []byte(h.gitlabToken)) != 1 {
			h.finish(w, r, nil, errInvalidPayload)
			return
		}
		if body.ObjectKind != "merge_request" {
			h.finish(w, r, nil, nil)
			return
		}
		u.ItemKey, u.ItemID, u.State = body.Project.WebURL, body.ObjectAttributes.IID, body.ObjectAttributes.State
	} else {
		u.ItemKey, u.ItemID, u.State = body.RepoURL, body.MRID, body.Status
		if u.ItemID == 0 {
			u.ItemID = body.PRID
		}
	}
	u.ItemKey = strings.TrimRight(u.ItemKey, "/")
	u.State = strings.ToLower(u.State)
	if u.ItemKey == "" || u.ItemID <= 0 || u.State == "" {
		h.finish(w, r, nil, errInvalidPayload)
		return
	}
	h.finish(w, r, u, nil)
}

func (h *Handler) finish(w http.ResponseWriter, r *http.Request, u *pipeline.ItemUpdate, err error) {
	ctx := r.Context()
	log := clog.FromContext(ctx).With("path", r.URL.Path)
	if err != nil {
		log.With("error", err).Warn("Rejected webhook delivery")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid payload"})
		return
	}
	if u != nil {
		log = log.With("provider", u.Provider, "item", u.ItemKey, "id", u.ItemID, "state", u.State)
		if err := h.sink(ctx, *u); err != nil {
			log.With("error", err).Error("Failed to accept item update")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "update not accepted"})
			return
		}
		log.Info("Accepted item update")
	}
	writeJSON(w, http.StatusAccepted, struct{}{})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
