/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chainguard.dev/reviewpipe/agents/agenttrace"
	"chainguard.dev/reviewpipe/agents/message"
	"chainguard.dev/reviewpipe/agents/metrics"
	"chainguard.dev/reviewpipe/agents/respcache"
	"chainguard.dev/reviewpipe/agents/retry"
	"chainguard.dev/reviewpipe/agents/toolcall"
	"github.com/chainguard-dev/clog"
)

// VariationTools is the cache variation key for requests that carry tools.
const VariationTools = "tools"

// Completer is the interface agents and the tool loop depend on.
type Completer interface {
	Complete(ctx context.Context, cred Credential, msgs []message.Message, tools ...toolcall.Definition) (*Completion, error)
}

type route struct {
	prefix  string
	adapter Adapter
}

// Client routes completion requests to an adapter by model name, serves
// repeated conversations from the response cache and normalizes malformed
// tool call encodings.
type Client struct {
	routes       []route
	fallback     Adapter
	cache        *respcache.Cache
	passes       []Pass
	retryConfig  retry.RetryConfig
	genaiMetrics *metrics.GenAI
}

var _ Completer = (*Client)(nil)

// New returns a client that sends models without a matching prefix route to
// fallback.
func New(fallback Adapter, opts ...Option) (*Client, error) {
	if fallback == nil {
		return nil, errors.New("fallback adapter cannot be nil")
	}
	genaiMetrics := metrics.NewGenAI("chainguard.dev/reviewpipe/completion")
	genaiMetrics.SetAttributeEnricher(agenttrace.Enricher)

	c := &Client{
		fallback:     fallback,
		passes:       DefaultPasses,
		retryConfig:  retry.NoRetry(),
		genaiMetrics: genaiMetrics,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return c, nil
}

// AdapterFor returns the adapter that serves model. The longest matching
// prefix wins.
func (c *Client) AdapterFor(model string) Adapter {
	var best *route
	for i, r := range c.routes {
		if strings.HasPrefix(model, r.prefix) && (best == nil || len(r.prefix) > len(best.prefix)) {
			best = &c.routes[i]
		}
	}
	if best == nil {
		return c.fallback
	}
	return best.adapter
}

// Complete sends msgs to the model named by cred and returns the normalized
// completion. Provider failures are returned as *ProviderError.
func (c *Client) Complete(ctx context.Context, cred Credential, msgs []message.Message, tools ...toolcall.Definition) (*Completion, error) {
	adapter := c.AdapterFor(cred.Model)
	source := adapter.Source()
	log := clog.FromContext(ctx).With("model", cred.Model, "source", source)

	variation := ""
	if len(tools) > 0 {
		variation = VariationTools
	}

	var cached Completion
	if c.cache.Get(ctx, source, msgs, variation, &cached) {
		log.Debug("Serving completion from cache")
		c.genaiMetrics.RecordCacheHit(ctx, cred.Model, source)
		return &cached, nil
	}

	req := Request{Credential: cred, Messages: msgs, Tools: tools}
	resp, err := retry.RetryWithBackoff(ctx, c.retryConfig, "completion", retry.Throttled, func() (*Completion, error) {
		return adapter.Complete(ctx, req)
	})
	if err != nil {
		var pe *ProviderError
		if !errors.As(err, &pe) {
			err = &ProviderError{Provider: source, Model: cred.Model, Err: err}
		}
		return nil, err
	}

	for i := range resp.Choices {
		for _, pass := range c.passes {
			if n := pass.Apply(&resp.Choices[i]); n > 0 {
				log.With("pass", pass.Name, "tool_calls", n).Info("Recovered tool calls from completion text")
				c.genaiMetrics.RecordRecoveredToolCalls(ctx, cred.Model, pass.Name, n)
			}
		}
	}

	c.genaiMetrics.RecordTokens(ctx, cred.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	log.With(
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"finish_reason", resp.First().FinishReason,
	).Debug("Completion received")

	c.cache.Put(ctx, source, msgs, variation, resp)
	return resp, nil
}
