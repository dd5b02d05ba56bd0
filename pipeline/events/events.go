/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package events carries task lifecycle notifications over NATS.
//
// Subjects are "<prefix>.<event type>", e.g. "reviewpipe.task.completed".
// Delivery is at least once; consumers re-fetch the task and rely on its
// status to stay idempotent.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"chainguard.dev/reviewpipe/agents/retry"
	"chainguard.dev/reviewpipe/pipeline"
	"github.com/chainguard-dev/clog"
	"github.com/nats-io/nats.go"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "reviewpipe"

// Bus publishes and consumes pipeline.Events on a NATS connection.
type Bus struct {
	nc       *nats.Conn
	prefix   string
	retryCfg retry.RetryConfig
	now      func() time.Time
}

var _ pipeline.Publisher = (*Bus)(nil)

// Option configures a Bus.
type Option func(*Bus) error

// WithPrefix sets the subject prefix.
func WithPrefix(prefix string) Option {
	return func(b *Bus) error {
		if prefix == "" {
			return errors.New("subject prefix cannot be empty")
		}
		b.prefix = prefix
		return nil
	}
}

// WithRetryConfig sets how failed publishes are retried.
func WithRetryConfig(cfg retry.RetryConfig) Option {
	return func(b *Bus) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid retry config: %w", err)
		}
		b.retryCfg = cfg
		return nil
	}
}

// New wraps an established connection.
func New(nc *nats.Conn, opts ...Option) (*Bus, error) {
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}
	b := &Bus{
		nc:     nc,
		prefix: DefaultPrefix,
		retryCfg: retry.RetryConfig{
			MaxRetries:  3,
			BaseBackoff: 200 * time.Millisecond,
			MaxBackoff:  2 * time.Second,
			MaxJitter:   100 * time.Millisecond,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return b, nil
}

// Connect dials url with reconnects enabled and returns a Bus on it.
// The Bus owns the connection; Close releases it.
func Connect(url string, opts ...Option) (*Bus, error) {
	nc, err := nats.Connect(url,
		nats.Name("reviewpipe"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	b, err := New(nc, opts...)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return b, nil
}

// Close drains the underlying connection.
func (b *Bus) Close() error {
	return b.nc.Drain()
}

func (b *Bus) subject(t pipeline.EventType) string {
	return b.prefix + "." + string(t)
}

// Publish implements pipeline.Publisher.
func (b *Bus) Publish(ctx context.Context, e pipeline.Event) error {
	if e.At.IsZero() {
		e.At = b.now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := b.subject(e.Type)

	retryable := func(err error) bool {
		return !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubject)
	}
	if err := retry.Do(ctx, b.retryCfg, "nats publish", retryable, func() error {
		return b.nc.Publish(subject, data)
	}); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	clog.FromContext(ctx).With("subject", subject, "task_id", e.TaskID).Debug("Published task event")
	return nil
}

// Handler consumes one event. Returned errors are logged; the event is not
// redelivered.
type Handler func(ctx context.Context, e pipeline.Event) error

// Subscribe delivers events of the given types to h in a queue group, so
// each event reaches one member of the group. The returned function
// unsubscribes.
func (b *Bus) Subscribe(ctx context.Context, queue string, h Handler, types ...pipeline.EventType) (func() error, error) {
	log := clog.FromContext(ctx)
	var subs []*nats.Subscription
	unsubscribe := func() error {
		var errs []error
		for _, s := range subs {
			errs = append(errs, s.Unsubscribe())
		}
		return errors.Join(errs...)
	}

	for _, t := range types {
		sub, err := b.nc.QueueSubscribe(b.subject(t), queue, func(msg *nats.Msg) {
			var e pipeline.Event
			if err := json.Unmarshal(msg.Data, &e); err != nil {
				log.With("subject", msg.Subject, "error", err).Warn("Dropping undecodable event")
				return
			}
			if err := h(ctx, e); err != nil {
				log.With("subject", msg.Subject, "task_id", e.TaskID, "error", err).Error("Event handler failed")
			}
		})
		if err != nil {
			_ = unsubscribe()
			return nil, fmt.Errorf("subscribe %s: %w", b.subject(t), err)
		}
		subs = append(subs, sub)
	}
	// Make sure the server has registered the interest before returning.
	if err := b.nc.Flush(); err != nil {
		_ = unsubscribe()
		return nil, fmt.Errorf("flush subscriptions: %w", err)
	}
	return unsubscribe, nil
}

// Recorder is an in-process Publisher that keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []pipeline.Event
}

var _ pipeline.Publisher = (*Recorder)(nil)

// Publish implements pipeline.Publisher.
func (r *Recorder) Publish(_ context.Context, e pipeline.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []pipeline.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pipeline.Event(nil), r.events...)
}
