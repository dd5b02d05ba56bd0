/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package tokens estimates the prompt size of a conversation so that the
// tool loop can enforce an input budget before calling a provider.
package tokens

import (
	"context"
	"fmt"
	"sync"

	"chainguard.dev/reviewpipe/agents/message"
	"github.com/chainguard-dev/clog"
	"github.com/pkoukk/tiktoken-go"
)

const (
	// perMessageOverhead approximates the role and framing tokens of a message.
	perMessageOverhead = 4
	// replyPriming approximates the tokens that prime the assistant reply.
	replyPriming = 2
	// Model is the model whose encoding is used for counting.
	Model = "gpt-4"
)

// Encoder returns the number of tokens in text.
type Encoder func(text string) (int, error)

// Counter counts tokens with a BPE encoder, falling back to a character
// estimate when the encoder cannot be loaded or fails.
// A Counter is safe for concurrent use.
type Counter struct {
	once    sync.Once
	load    func() (Encoder, error)
	encoder Encoder
}

// NewCounter returns a counter backed by the gpt-4 (cl100k_base) encoding.
// The encoding is loaded on first use.
func NewCounter() *Counter {
	return &Counter{load: loadTiktoken}
}

// WithEncoder returns a counter backed by enc. A nil enc always estimates.
func WithEncoder(enc Encoder) *Counter {
	return &Counter{load: func() (Encoder, error) {
		if enc == nil {
			return nil, fmt.Errorf("no encoder")
		}
		return enc, nil
	}}
}

func loadTiktoken() (Encoder, error) {
	enc, err := tiktoken.EncodingForModel(Model)
	if err != nil {
		return nil, fmt.Errorf("loading %s encoding: %w", Model, err)
	}
	return func(text string) (int, error) {
		return len(enc.Encode(text, nil, nil)), nil
	}, nil
}

func (c *Counter) init(ctx context.Context) {
	c.once.Do(func() {
		enc, err := c.load()
		if err != nil {
			clog.FromContext(ctx).With("error", err).Warn("Token encoder unavailable, estimating from length")
			return
		}
		c.encoder = enc
	})
}

// Estimate is the fallback token count: a quarter of the byte length.
func Estimate(text string) int {
	return len(text) / 4
}

// Count returns the number of tokens in text. It never fails.
func (c *Counter) Count(ctx context.Context, text string) (n int) {
	c.init(ctx)
	if c.encoder == nil {
		return Estimate(text)
	}
	defer func() {
		if r := recover(); r != nil {
			n = Estimate(text)
		}
	}()
	n, err := c.encoder(text)
	if err != nil {
		return Estimate(text)
	}
	return n
}

// CountMessages returns the token count of a conversation. Messages with
// empty content contribute nothing; every other message contributes its
// content tokens plus the framing overhead and reply priming.
func (c *Counter) CountMessages(ctx context.Context, msgs []message.Message) int {
	total := 0
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		total += perMessageOverhead + c.Count(ctx, m.Content) + replyPriming
	}
	return total
}
