/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package completion

import (
	"errors"
	"fmt"

	"chainguard.dev/reviewpipe/agents/respcache"
	"chainguard.dev/reviewpipe/agents/retry"
)

// Option is a functional option for configuring the client
type Option func(*Client) error

// WithAdapter routes models starting with prefix to a.
func WithAdapter(prefix string, a Adapter) Option {
	return func(c *Client) error {
		if prefix == "" {
			return errors.New("adapter prefix cannot be empty")
		}
		if a == nil {
			return fmt.Errorf("adapter for prefix %q cannot be nil", prefix)
		}
		for _, r := range c.routes {
			if r.prefix == prefix {
				return fmt.Errorf("duplicate adapter prefix %q", prefix)
			}
		}
		c.routes = append(c.routes, route{prefix: prefix, adapter: a})
		return nil
	}
}

// WithCache enables the response cache.
func WithCache(cache *respcache.Cache) Option {
	return func(c *Client) error {
		c.cache = cache
		return nil
	}
}

// WithRetryConfig retries throttled provider responses (429, 503, 504, 529).
// By default provider failures are returned on the first attempt.
func WithRetryConfig(cfg retry.RetryConfig) Option {
	return func(c *Client) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid retry config: %w", err)
		}
		c.retryConfig = cfg
		return nil
	}
}

// WithPasses replaces the recovery passes applied to every completion.
func WithPasses(passes ...Pass) Option {
	return func(c *Client) error {
		for _, p := range passes {
			if p.Apply == nil {
				return fmt.Errorf("recovery pass %q has no Apply function", p.Name)
			}
		}
		c.passes = passes
		return nil
	}
}
