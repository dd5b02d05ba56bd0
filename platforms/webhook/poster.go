/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chainguard.dev/reviewpipe/agents/retry"
	"chainguard.dev/reviewpipe/pipeline"
	"chainguard.dev/reviewpipe/platforms"
)

// Poster sends notifications to incoming webhooks (Slack and compatible
// chat services) as {"text": ...} JSON.
type Poster struct {
	hc       *http.Client
	retryCfg retry.RetryConfig
}

var _ pipeline.NotificationTransport = (*Poster)(nil)

// PosterOption configures a Poster.
type PosterOption func(*Poster) error

// WithHTTPClient sets the client used for posting.
func WithHTTPClient(hc *http.Client) PosterOption {
	return func(p *Poster) error {
		if hc == nil {
			return errors.New("http client cannot be nil")
		}
		p.hc = hc
		return nil
	}
}

// WithPostRetry sets how throttled posts are retried.
func WithPostRetry(cfg retry.RetryConfig) PosterOption {
	return func(p *Poster) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid retry config: %w", err)
		}
		p.retryCfg = cfg
		return nil
	}
}

// NewPoster returns a Poster.
func NewPoster(opts ...PosterOption) (*Poster, error) {
	p := &Poster{
		hc: &http.Client{Timeout: 30 * time.Second},
		retryCfg: retry.RetryConfig{
			MaxRetries:  2,
			BaseBackoff: time.Second,
			MaxBackoff:  5 * time.Second,
			MaxJitter:   250 * time.Millisecond,
		},
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return p, nil
}

// Post implements pipeline.NotificationTransport.
func (p *Poster) Post(ctx context.Context, target, text string) (string, error) {
	if strings.TrimSpace(target) == "" {
		return "", errors.New("webhook url is not configured")
	}
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	return retry.RetryWithBackoff(ctx, p.retryCfg, "webhook post", retry.Throttled, func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
		if err != nil {
			return "", fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := p.hc.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return "", fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return "", &platforms.APIError{Method: req.Method, URL: req.URL.Scheme + "://" + req.URL.Host, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		return string(body), nil
	})
}
