/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package dispatcher drains a workqueue.Interface with bounded concurrency.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"chainguard.dev/reviewpipe/workqueue"
	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
)

// Callback processes one key.
type Callback func(ctx context.Context, key string, opts workqueue.Options) error

// HandleAsync starts up to concurrency minus the in-progress count keys
// (further capped by batchSize when positive) and returns a future that
// waits for them. Orphaned in-progress keys are requeued first.
//
// A nil callback result completes the key. A failure requeues it, or
// dead-letters it once maxRetry attempts were made (maxRetry 0 retries
// forever). Non-retriable errors complete the key.
func HandleAsync(ctx context.Context, q workqueue.Interface, concurrency, batchSize int, f Callback, maxRetry int) func() error {
	log := clog.FromContext(ctx)

	wip, next, _, err := q.Enumerate(ctx)
	if err != nil {
		return func() error { return fmt.Errorf("enumerate() = %w", err) }
	}

	// Cleanup must outlive a cancelled parent, otherwise keys stay stuck
	// in progress across a shutdown.
	cleanupCtx := context.WithoutCancel(ctx)

	active := 0
	for _, k := range wip {
		if !k.IsOrphaned() {
			active++
			continue
		}
		log.With("key", k.Name()).Warn("Requeueing orphaned key")
		if err := k.Requeue(cleanupCtx); err != nil {
			log.With("key", k.Name(), "error", err).Error("Failed to requeue orphaned key")
		}
	}

	slots := concurrency - active
	if batchSize > 0 {
		slots = min(slots, batchSize)
	}
	if slots <= 0 || len(next) == 0 {
		return func() error { return nil }
	}
	if len(next) > slots {
		next = next[:slots]
	}

	var eg errgroup.Group
	eg.SetLimit(slots)
	for _, k := range next {
		eg.Go(func() error {
			owned, err := k.Start(ctx)
			if err != nil {
				log.With("key", k.Name(), "error", err).Warn("Failed to start key")
				return nil
			}
			handle(ctx, cleanupCtx, q, owned, f, maxRetry)
			return nil
		})
	}
	return eg.Wait
}

func handle(ctx, cleanupCtx context.Context, q workqueue.Interface, owned workqueue.OwnedInProgressKey, f Callback, maxRetry int) {
	log := clog.FromContext(ctx).With("key", owned.Name(), "attempt", owned.GetAttempts())

	err := f(ctx, owned.Name(), workqueue.Options{Priority: owned.Priority()})

	if keys := workqueue.GetQueueKeys(err); keys != nil {
		for _, qk := range keys {
			opts := workqueue.Options{Priority: qk.Priority}
			if qk.DelaySeconds > 0 {
				opts.NotBefore = time.Now().Add(time.Duration(qk.DelaySeconds) * time.Second)
			}
			if err := q.Queue(cleanupCtx, qk.Key, opts); err != nil {
				log.With("queue_key", qk.Key, "error", err).Error("Failed to queue follow-up key")
				requeue(cleanupCtx, log, owned)
				return
			}
		}
		complete(cleanupCtx, log, owned)
		return
	}

	if delay, ok := workqueue.GetRequeueDelay(err); ok {
		if err := owned.RequeueWithOptions(cleanupCtx, workqueue.Options{
			Priority:  owned.Priority(),
			NotBefore: time.Now().Add(delay),
		}); err != nil {
			log.With("error", err).Error("Failed to requeue key")
		}
		return
	}

	switch {
	case err == nil:
		complete(cleanupCtx, log, owned)
	case workqueue.IsNonRetriable(err):
		log.With("error", err).Warn("Dropping key after non-retriable error")
		complete(cleanupCtx, log, owned)
	case maxRetry > 0 && owned.GetAttempts() >= maxRetry:
		log.With("error", err).Error("Dead-lettering key after max attempts")
		if err := owned.Deadletter(cleanupCtx); err != nil {
			log.With("error", err).Error("Failed to dead-letter key")
		}
	default:
		log.With("error", err).Warn("Key failed, requeueing")
		requeue(cleanupCtx, log, owned)
	}
}

func complete(ctx context.Context, log *clog.Logger, k workqueue.OwnedInProgressKey) {
	if err := k.Complete(ctx); err != nil {
		log.With("error", err).Error("Failed to complete key")
	}
}

func requeue(ctx context.Context, log *clog.Logger, k workqueue.OwnedInProgressKey) {
	if err := k.Requeue(ctx); err != nil {
		log.With("error", err).Error("Failed to requeue key")
	}
}
