/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package jira implements pipeline.TicketProvider over the Jira REST API
// (version 2). The host comes from the connection's "jiraHost" value.
// An agent with an AccessName authenticates with basic auth (user and API
// token); without one the AccessKey is sent as a personal access token.
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"chainguard.dev/reviewpipe/agents/retry"
	"chainguard.dev/reviewpipe/pipeline"
	"chainguard.dev/reviewpipe/platforms"
	"golang.org/x/oauth2"
)

// Client loads Jira issues.
type Client struct {
	base     http.RoundTripper
	retryCfg retry.RetryConfig
}

var _ pipeline.TicketProvider = (*Client)(nil)

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
			BaseBackoff: time.Second,
			MaxBackoff:  10 * time.Second,
			MaxJitter:   250 * time.Millisecond,
		},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return c, nil
}

// DetectReferences implements pipeline.TicketProvider. Matching ignores
// case and accepts a space instead of the dash ("abc 12" is ABC-12).
func (c *Client) DetectReferences(text string, projects []string) []string {
	keys := make([]string, 0, len(projects))
	for _, p := range projects {
		if p = strings.TrimSpace(p); p != "" {
			keys = append(keys, regexp.QuoteMeta(strings.ToUpper(p)))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	re := regexp.MustCompile(`\b(?:` + strings.Join(keys, "|") + `)[- ]\d+`)

	var out []string
	for _, m := range re.FindAllString(strings.ToUpper(text), -1) {
		m = strings.ReplaceAll(m, " ", "-")
		if !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	return out
}

// NormalizeHost turns a bare site name ("acme"), a host
// ("acme.atlassian.net") or a URL into a base URL.
func NormalizeHost(raw string) (string, error) {
	host := strings.TrimRight(strings.TrimSpace(raw), "/")
	if host == "" {
		return "", errors.New("jira host is not configured")
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	u, err := url.Parse(host)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("invalid jira host %q", raw)
	}
	// Bare site names are Jira Cloud tenants.
	if name := u.Hostname(); !strings.Contains(name, ".") && name != "localhost" && u.Port() == "" {
		u.Host = name + ".atlassian.net"
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// BrowseURL implements pipeline.TicketProvider.
func (c *Client) BrowseURL(conn *pipeline.Connection, key string) string {
	host, err := NormalizeHost(conn.ConfigValue("jiraHost"))
	if err != nil {
		return ""
	}
	return host + "/browse/" + key
}

var (
	mentionRE = regexp.MustCompile(`\[~accountid:.*?]`)
	thanksRE  = regexp.MustCompile(`(?i)Thanks.`)
)

// CleanComment drops account mentions and thank-you notes.
func CleanComment(body string) string {
	body = mentionRE.ReplaceAllString(body, "")
	body = thanksRE.ReplaceAllString(body, "")
	return strings.TrimSpace(body)
}

type issue struct {
	Key    string `json:"key"`
	Fields *struct {
		Summary     string `json:"summary"`
		Description string `json:"description"`
	} `json:"fields"`
}

type comments struct {
	Comments []struct {
		Body string `json:"body"`
	} `json:"comments"`
}

// LoadItem implements pipeline.TicketProvider. An issue without fields
// yields nil and no error; a missing issue yields pipeline.ErrNotFound.
func (c *Client) LoadItem(ctx context.Context, conn *pipeline.Connection, key string) (*pipeline.TicketItem, error) {
	host, err := NormalizeHost(conn.ConfigValue("jiraHost"))
	if err != nil {
		return nil, err
	}
	hc := c.httpClient(ctx, conn)
	api := host + "/rest/api/2/issue/" + url.PathEscape(key)

	var is issue
	if err := c.get(ctx, hc, conn, api+"?fields=description,summary", &is); err != nil {
		return nil, fmt.Errorf("load issue %s: %w", key, err)
	}
	if is.Fields == nil {
		return nil, nil
	}
	var cs comments
	if err := c.get(ctx, hc, conn, api+"/comment", &cs); err != nil {
		return nil, fmt.Errorf("load comments of %s: %w", key, err)
	}

	item := &pipeline.TicketItem{
		Key:         key,
		Summary:     is.Fields.Summary,
		Description: is.Fields.Description,
		URL:         host + "/browse/" + key,
	}
	for _, cm := range cs.Comments {
		item.Comments = append(item.Comments, CleanComment(cm.Body))
	}
	return item, nil
}

func (c *Client) httpClient(ctx context.Context, conn *pipeline.Connection) *http.Client {
	if conn.Agent.AccessName != "" {
		return &http.Client{Transport: c.base}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: c.base})
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: conn.Agent.AccessKey}))
}

func (c *Client) get(ctx context.Context, hc *http.Client, conn *pipeline.Connection, u string, out any) error {
	return retry.Do(ctx, c.retryCfg, "jira GET", retry.Throttled, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if conn.Agent.AccessName != "" {
			req.SetBasicAuth(conn.Agent.AccessName, conn.Agent.AccessKey)
		}
		resp, err := hc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode == http.StatusNotFound {
			return pipeline.ErrNotFound
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &platforms.APIError{Method: req.Method, URL: req.URL.Redacted(), StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		return json.Unmarshal(body, out)
	})
}
