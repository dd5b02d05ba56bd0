/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package github implements pipeline.ReviewPlatform for GitHub pull
// requests. Pull request details and listings come from the GraphQL API;
// diffs, file contents and reviews go through REST.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"chainguard.dev/reviewpipe/pipeline"
	"chainguard.dev/reviewpipe/platforms"
	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

// Client talks to GitHub on behalf of a connection. Credentials come from
// the connection's "githubToken" value, then the agent access key, then the
// GitHub App installation when one is configured.
type Client struct {
	restURL    *url.URL
	graphqlURL string
	base       http.RoundTripper
	app        http.RoundTripper
}

var _ pipeline.ReviewPlatform = (*Client)(nil)

// Option configures a Client.
type Option func(*Client) error

// WithEndpoints points the client at a GitHub Enterprise server or a test
// double. restURL is the REST API root; graphqlURL the GraphQL endpoint.
func WithEndpoints(restURL, graphqlURL string) Option {
	return func(c *Client) error {
		u, err := url.Parse(strings.TrimSuffix(restURL, "/") + "/")
		if err != nil {
			return fmt.Errorf("invalid REST url: %w", err)
		}
		if graphqlURL == "" {
			return errors.New("graphql url cannot be empty")
		}
		c.restURL = u
		c.graphqlURL = graphqlURL
		return nil
	}
}

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

// WithAppInstallation authenticates as a GitHub App installation when a
// connection carries no token of its own.
func WithAppInstallation(appID, installationID int64, privateKey []byte) Option {
	return func(c *Client) error {
		tr, err := ghinstallation.New(c.base, appID, installationID, privateKey)
		if err != nil {
			return fmt.Errorf("github app transport: %w", err)
		}
		if c.restURL != nil {
			tr.BaseURL = strings.TrimSuffix(c.restURL.String(), "/")
		}
		c.app = tr
		return nil
	}
}

// New returns a Client for github.com unless WithEndpoints says otherwise.
func New(opts ...Option) (*Client, error) {
	c := &Client{base: http.DefaultTransport}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return c, nil
}

// Provider implements pipeline.ReviewPlatform.
func (c *Client) Provider() string { return pipeline.ProviderGithub }

type clients struct {
	rest *github.Client
	gql  *githubv4.Client
}

func (c *Client) clientsFor(ctx context.Context, conn *pipeline.Connection) (*clients, error) {
	var hc *http.Client
	token := conn.ConfigValue("githubToken")
	if token == "" {
		token = conn.Agent.AccessKey
	}
	switch {
	case token != "":
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: c.base})
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	case c.app != nil:
		hc = &http.Client{Transport: c.app}
	default:
		return nil, fmt.Errorf("connection %d has no GitHub credentials", conn.ID)
	}

	rest := github.NewClient(hc)
	gql := githubv4.NewClient(hc)
	if c.restURL != nil {
		rest.BaseURL = c.restURL
		gql = githubv4.NewEnterpriseClient(c.graphqlURL, hc)
	}
	return &clients{rest: rest, gql: gql}, nil
}

func repository(conn *pipeline.Connection) (string, string, error) {
	return platforms.SplitRepository(conn.ConfigValue("repository"))
}

func isNotFound(err error) bool {
	var er *github.ErrorResponse
	return errors.As(err, &er) && er.Response != nil && er.Response.StatusCode == http.StatusNotFound
}
