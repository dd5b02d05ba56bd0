/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"time"

	"chainguard.dev/reviewpipe/pipeline"
	"chainguard.dev/reviewpipe/pipeline/orchestrator"
	"chainguard.dev/reviewpipe/workqueue"
	"chainguard.dev/reviewpipe/workqueue/dispatcher"
	"github.com/chainguard-dev/clog"
)

// router turns task events into work: created and updated tasks are queued
// for the dispatcher, completed tasks trigger retention. It is the
// publisher when no event bus is configured and the bus handler otherwise.
type router struct {
	queue     workqueue.Interface
	lifecycle *orchestrator.Lifecycle
}

var _ pipeline.Publisher = (*router)(nil)

func (r *router) Publish(ctx context.Context, e pipeline.Event) error {
	return r.Handle(ctx, e)
}

func (r *router) Handle(ctx context.Context, e pipeline.Event) error {
	switch e.Type {
	case pipeline.EventTaskCreated, pipeline.EventTaskUpdated:
		return r.queue.Queue(ctx, orchestrator.TaskKey(e.TaskID), workqueue.Options{})
	case pipeline.EventTaskCompleted:
		if r.lifecycle == nil {
			return nil
		}
		return r.lifecycle.OnTaskCompleted(ctx, e.TaskID)
	default:
		clog.FromContext(ctx).With("type", e.Type, "task_id", e.TaskID).Warn("Ignoring unknown event")
		return nil
	}
}

const dispatchInterval = time.Second

// dispatchLoop drains the queue until ctx is done.
func dispatchLoop(ctx context.Context, q workqueue.Interface, l *orchestrator.Lifecycle, concurrency, maxAttempts int) error {
	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()
	for {
		if err := dispatcher.HandleAsync(ctx, q, concurrency, 0, l.Process, maxAttempts)(); err != nil {
			clog.FromContext(ctx).With("error", err).Error("Dispatch failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// every runs fn immediately and then on each tick. Failures are logged and
// do not stop the loop.
func every(ctx context.Context, interval time.Duration, name string, fn func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := fn(ctx); err != nil {
			clog.FromContext(ctx).With("loop", name, "error", err).Error("Periodic run failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
