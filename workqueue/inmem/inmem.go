/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package inmem is a process-local workqueue.Interface.
package inmem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"chainguard.dev/reviewpipe/workqueue"
)

type entry struct {
	key       string
	priority  int64
	notBefore time.Time
	queuedAt  time.Time
	attempts  int
}

// Queue keeps keys in memory. In-progress keys are never orphaned because
// they share the lifetime of the process.
type Queue struct {
	mu         sync.Mutex
	queued     map[string]*entry
	inProgress map[string]*entry
	dead       map[string]*entry
	now        func() time.Time
}

var _ workqueue.Interface = (*Queue)(nil)

// New returns an empty queue.
func New() *Queue {
	return &Queue{
		queued:     map[string]*entry{},
		inProgress: map[string]*entry{},
		dead:       map[string]*entry{},
		now:        time.Now,
	}
}

// Queue adds key, or merges opts into an already queued key by keeping the
// higher priority and the earlier start time.
func (q *Queue) Queue(_ context.Context, key string, opts workqueue.Options) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queueLocked(&entry{key: key, priority: opts.Priority, notBefore: opts.NotBefore, queuedAt: q.now()})
	return nil
}

func (q *Queue) queueLocked(e *entry) {
	existing, ok := q.queued[e.key]
	if !ok {
		delete(q.dead, e.key)
		q.queued[e.key] = e
		return
	}
	existing.priority = max(existing.priority, e.priority)
	if e.notBefore.Before(existing.notBefore) {
		existing.notBefore = e.notBefore
	}
	existing.attempts = max(existing.attempts, e.attempts)
}

// Enumerate returns in-progress keys and the ready queued keys, highest
// priority first. A key that is in progress is not offered again until it
// finishes.
func (q *Queue) Enumerate(context.Context) ([]workqueue.ObservedInProgressKey, []workqueue.QueuedKey, []workqueue.DeadLetteredKey, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()

	wip := make([]workqueue.ObservedInProgressKey, 0, len(q.inProgress))
	for _, e := range q.inProgress {
		wip = append(wip, &ownedKey{q: q, e: e, ctx: context.Background()})
	}

	var ready []*entry
	for k, e := range q.queued {
		if _, busy := q.inProgress[k]; busy || e.notBefore.After(now) {
			continue
		}
		ready = append(ready, e)
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].priority != ready[j].priority {
			return ready[i].priority > ready[j].priority
		}
		return ready[i].queuedAt.Before(ready[j].queuedAt)
	})
	next := make([]workqueue.QueuedKey, 0, len(ready))
	for _, e := range ready {
		next = append(next, &queuedKey{q: q, key: e.key, priority: e.priority})
	}

	dead := make([]workqueue.DeadLetteredKey, 0, len(q.dead))
	for _, e := range q.dead {
		dead = append(dead, &deadKey{name: e.key, attempts: e.attempts})
	}
	return wip, next, dead, nil
}

// Get implements workqueue.Interface.
func (q *Queue) Get(_ context.Context, key string) (*workqueue.KeyState, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ks := &workqueue.KeyState{Name: key}
	if e, ok := q.queued[key]; ok {
		ks.Queued, ks.Attempts, ks.Priority = true, e.attempts, e.priority
	}
	if e, ok := q.inProgress[key]; ok {
		ks.InProgress, ks.Attempts, ks.Priority = true, e.attempts, e.priority
	}
	if e, ok := q.dead[key]; ok {
		ks.Dead, ks.Attempts = true, e.attempts
	}
	if !ks.Queued && !ks.InProgress && !ks.Dead {
		return nil, fmt.Errorf("%q: %w", key, workqueue.ErrNotFound)
	}
	return ks, nil
}

type queuedKey struct {
	q        *Queue
	key      string
	priority int64
}

func (k *queuedKey) Name() string    { return k.key }
func (k *queuedKey) Priority() int64 { return k.priority }

func (k *queuedKey) Start(ctx context.Context) (workqueue.OwnedInProgressKey, error) {
	k.q.mu.Lock()
	defer k.q.mu.Unlock()
	e, ok := k.q.queued[k.key]
	if !ok {
		return nil, fmt.Errorf("start %q: %w", k.key, workqueue.ErrNotFound)
	}
	if _, busy := k.q.inProgress[k.key]; busy {
		return nil, fmt.Errorf("start %q: already in progress", k.key)
	}
	delete(k.q.queued, k.key)
	e.attempts++
	k.q.inProgress[k.key] = e
	return &ownedKey{q: k.q, e: e, ctx: ctx}, nil
}

type ownedKey struct {
	q   *Queue
	e   *entry
	ctx context.Context
}

var _ workqueue.OwnedInProgressKey = (*ownedKey)(nil)

func (k *ownedKey) Name() string             { return k.e.key }
func (k *ownedKey) Priority() int64          { return k.e.priority }
func (k *ownedKey) GetAttempts() int         { return k.e.attempts }
func (k *ownedKey) Context() context.Context { return k.ctx }
func (k *ownedKey) IsOrphaned() bool         { return false }

// release removes the key from in-progress if this handle still owns it.
func (k *ownedKey) release() bool {
	if cur, ok := k.q.inProgress[k.e.key]; ok && cur == k.e {
		delete(k.q.inProgress, k.e.key)
		return true
	}
	return false
}

func (k *ownedKey) Complete(context.Context) error {
	k.q.mu.Lock()
	defer k.q.mu.Unlock()
	k.release()
	return nil
}

func (k *ownedKey) Requeue(ctx context.Context) error {
	return k.RequeueWithOptions(ctx, workqueue.Options{Priority: k.e.priority})
}

func (k *ownedKey) RequeueWithOptions(_ context.Context, opts workqueue.Options) error {
	k.q.mu.Lock()
	defer k.q.mu.Unlock()
	if !k.release() {
		return fmt.Errorf("requeue %q: %w", k.e.key, workqueue.ErrNotFound)
	}
	k.q.queueLocked(&entry{
		key:       k.e.key,
		priority:  opts.Priority,
		notBefore: opts.NotBefore,
		queuedAt:  k.q.now(),
		attempts:  k.e.attempts,
	})
	return nil
}

func (k *ownedKey) Deadletter(context.Context) error {
	k.q.mu.Lock()
	defer k.q.mu.Unlock()
	if !k.release() {
		return fmt.Errorf("deadletter %q: %w", k.e.key, workqueue.ErrNotFound)
	}
	k.q.dead[k.e.key] = k.e
	return nil
}

type deadKey struct {
	name     string
	attempts int
}

func (k *deadKey) Name() string     { return k.name }
func (k *deadKey) GetAttempts() int { return k.attempts }
