/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package respcache memoizes completions by the exact conversation that
// produced them. Entries are write-once and never invalidated.
package respcache

import (
	"context"
	"crypto/md5" //nolint:gosec // content addressing, not security
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chainguard.dev/reviewpipe/agents/message"
	"github.com/chainguard-dev/clog"
)

// ErrMiss is returned by a Store when no entry exists for a key.
var ErrMiss = errors.New("cache miss")

// Entry is one cached completion.
type Entry struct {
	Key       string    // hex md5 of the serialized messages and variation key
	Source    string    // provider family that produced the output, e.g. "openai"
	Input     string    // serialized messages, kept for inspection
	Output    string    // serialized completion
	CreatedAt time.Time
}

// Store persists cache entries. Save must keep the first entry written for a
// key and silently ignore later ones.
type Store interface {
	Lookup(ctx context.Context, source, key string) (*Entry, error)
	Save(ctx context.Context, e Entry) error
}

// Cache looks up and records completions in a Store.
type Cache struct {
	store Store
	now   func() time.Time
}

// New returns a cache backed by store.
func New(store Store) *Cache {
	return &Cache{store: store, now: time.Now}
}

// Key derives the cache key for a conversation and variation key.
func Key(msgs []message.Message, variationKey string) (string, []byte, error) {
	input, err := json.Marshal(msgs)
	if err != nil {
		return "", nil, fmt.Errorf("serializing messages: %w", err)
	}
	sum := md5.Sum(append(input[:len(input):len(input)], variationKey...)) //nolint:gosec
	return hex.EncodeToString(sum[:]), input, nil
}

// Get decodes the cached output for msgs into out and reports whether there
// was a usable hit. Serialization and store failures are treated as misses.
func (c *Cache) Get(ctx context.Context, source string, msgs []message.Message, variationKey string, out any) bool {
	if c == nil {
		return false
	}
	key, _, err := Key(msgs, variationKey)
	if err != nil {
		return false
	}
	e, err := c.store.Lookup(ctx, source, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			clog.FromContext(ctx).With("error", err, "key", key).Warn("Response cache lookup failed")
		}
		return false
	}
	if err := json.Unmarshal([]byte(e.Output), out); err != nil {
		clog.FromContext(ctx).With("error", err, "key", key).Warn("Discarding undecodable cache entry")
		return false
	}
	return true
}

// Put records v as the output for msgs. Failures are logged and dropped.
func (c *Cache) Put(ctx context.Context, source string, msgs []message.Message, variationKey string, v any) {
	if c == nil {
		return
	}
	key, input, err := Key(msgs, variationKey)
	if err != nil {
		return
	}
	output, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.store.Save(ctx, Entry{
		Key:       key,
		Source:    source,
		Input:     string(input),
		Output:    string(output),
		CreatedAt: c.now(),
	}); err != nil {
		clog.FromContext(ctx).With("error", err, "key", key).Warn("Failed to persist cached response")
	}
}
