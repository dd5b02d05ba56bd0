/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package gitlab implements pipeline.ReviewPlatform for GitLab merge
// requests over the v4 REST API. A connection's "repository" value is the
// project's web URL; the API root is derived from it, so self-hosted
// instances need no extra configuration.
package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chainguard.dev/reviewpipe/agents/retry"
	"chainguard.dev/reviewpipe/pipeline"
	"chainguard.dev/reviewpipe/platforms"
	"golang.org/x/oauth2"
)

// Client talks to GitLab on behalf of a connection. The token is the
// connection's "gitlabToken" value, else the agent access key.
type Client struct {
	base     http.RoundTripper
	retryCfg retry.RetryConfig
}

var _ pipeline.ReviewPlatform = (*Client)(nil)

// Option configures a Client.
type Option func(*Client) error

// WithTransport sets the base transport for outgoing requests.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) error {
		if rt == nil {
			return errors.New("transport cannot be nil")
		}
		c.base = rt
		return nil
	}
}

// WithRetryConfig sets how throttled requests are retried.
func WithRetryConfig(cfg retry.RetryConfig) Option {
	return func(c *Client) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid retry config: %w", err)
		}
		c.retryCfg = cfg
		return nil
	}
}

// New returns a Client.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		base: http.DefaultTransport,
		retryCfg: retry.RetryConfig{
			MaxRetries:  3,
			BaseBackoff: 500 * time.Millisecond,
			MaxBackoff:  5 * time.Second,
			MaxJitter:   200 * time.Millisecond,
		},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return c, nil
}

// Provider implements pipeline.ReviewPlatform.
func (c *Client) Provider() string { return pipeline.ProviderGitlab }

// ProjectAPI returns the project API root for a repository web URL, for
// example https://gitlab.com/api/v4/projects/group%2Fproject/.
func ProjectAPI(repoURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(repoURL))
	if err != nil {
		return "", fmt.Errorf("invalid repository url %q: %w", repoURL, err)
	}
	path := strings.Trim(u.Path, "/")
	if u.Host == "" || path == "" {
		return "", fmt.Errorf("repository url %q has no host or project path", repoURL)
	}
	api := &url.URL{Scheme: u.Scheme, User: u.User, Host: u.Host, Path: "/api/v4"}
	if u.Host == "gitlab.com" {
		api = &url.URL{Scheme: "https", Host: "gitlab.com", Path: "/api/v4"}
	}
	if api.Scheme == "" {
		api.Scheme = "https"
	}
	return api.String() + "/projects/" + url.PathEscape(path) + "/", nil
}

func isNotFound(err error) bool {
	var ae *platforms.APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusNotFound
}

type session struct {
	hc       *http.Client
	api      string
	retryCfg retry.RetryConfig
}

func (c *Client) sessionFor(ctx context.Context, conn *pipeline.Connection, repoURL string) (*session, error) {
	api, err := ProjectAPI(repoURL)
	if err != nil {
		return nil, err
	}
	token := conn.ConfigValue("gitlabToken")
	if token == "" {
		token = conn.Agent.AccessKey
	}
	if token == "" {
		return nil, fmt.Errorf("connection %d has no GitLab credentials", conn.ID)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: c.base})
	return &session{
		hc:       oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})),
		api:      api,
		retryCfg: c.retryCfg,
	}, nil
}

// do sends a JSON request relative to the project API root and decodes the
// response into out when it is non-nil.
func (s *session) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}
	return retry.Do(ctx, s.retryCfg, "gitlab "+method+" "+path, retry.Throttled, func() error {
		req, err := http.NewRequestWithContext(ctx, method, s.api+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := s.hc.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &platforms.APIError{Method: method, URL: req.URL.Redacted(), StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
		return nil
	})
}
