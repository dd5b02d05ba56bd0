/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package dispatcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"chainguard.dev/reviewpipe/workqueue"
	"chainguard.dev/reviewpipe/workqueue/inmem"
)

func state(t *testing.T, q workqueue.Interface, key string) *workqueue.KeyState {
	t.Helper()
	ks, err := q.Get(context.Background(), key)
	if errors.Is(err, workqueue.ErrNotFound) {
		return nil
	}
	if err != nil {
		t.Fatalf("Get(%q) = %v", key, err)
	}
	return ks
}

func TestHandleAsyncOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		result   error
		maxRetry int
		check    func(t *testing.T, q *inmem.Queue)
	}{{
		name: "success completes",
		check: func(t *testing.T, q *inmem.Queue) {
			if ks := state(t, q, "task/1"); ks != nil {
				t.Errorf("key state: got = %+v, wanted gone", ks)
			}
		},
	}, {
		name:   "failure requeues",
		result: errors.New("provider down"),
		check: func(t *testing.T, q *inmem.Queue) {
			if ks := state(t, q, "task/1"); ks == nil || !ks.Queued || ks.Attempts != 1 {
				t.Errorf("key state: got = %+v, wanted queued after 1 attempt", ks)
			}
		},
	}, {
		name:     "failure at max attempts dead-letters",
		result:   errors.New("provider down"),
		maxRetry: 1,
		check: func(t *testing.T, q *inmem.Queue) {
			if ks := state(t, q, "task/1"); ks == nil || !ks.Dead {
				t.Errorf("key state: got = %+v, wanted dead", ks)
			}
		},
	}, {
		name:   "non-retriable completes",
		result: workqueue.NonRetriableError(errors.New("bad key"), "malformed"),
		check: func(t *testing.T, q *inmem.Queue) {
			if ks := state(t, q, "task/1"); ks != nil {
				t.Errorf("key state: got = %+v, wanted gone", ks)
			}
		},
	}, {
		name:   "requeue after delays",
		result: workqueue.RequeueAfter(time.Hour),
		check: func(t *testing.T, q *inmem.Queue) {
			if ks := state(t, q, "task/1"); ks == nil || !ks.Queued {
				t.Fatalf("key state: got = %+v, wanted queued", ks)
			}
			_, next, _, _ := q.Enumerate(context.Background())
			if len(next) != 0 {
				t.Errorf("ready keys: got = %d, wanted the delayed key held back", len(next))
			}
		},
	}, {
		name:   "queue keys completes and queues follow-ups",
		result: workqueue.QueueKeys(workqueue.QueueKey{Key: "task/2", Priority: 5}),
		check: func(t *testing.T, q *inmem.Queue) {
			if ks := state(t, q, "task/1"); ks != nil {
				t.Errorf("key state: got = %+v, wanted gone", ks)
			}
			if ks := state(t, q, "task/2"); ks == nil || !ks.Queued || ks.Priority != 5 {
				t.Errorf("follow-up state: got = %+v, wanted queued with priority 5", ks)
			}
		},
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			q := inmem.New()
			if err := q.Queue(ctx, "task/1", workqueue.Options{}); err != nil {
				t.Fatal(err)
			}
			var seen []string
			cb := func(_ context.Context, key string, _ workqueue.Options) error {
				seen = append(seen, key)
				return tt.result
			}

			if err := HandleAsync(ctx, q, 1, 0, cb, tt.maxRetry)(); err != nil {
				t.Fatalf("HandleAsync() = %v", err)
			}
			if len(seen) != 1 || seen[0] != "task/1" {
				t.Errorf("callback keys: got = %v, wanted [task/1]", seen)
			}
			tt.check(t, q)
		})
	}
}

func TestHandleAsyncSlots(t *testing.T) {
	ctx := context.Background()
	q := inmem.New()
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		if err := q.Queue(ctx, k, workqueue.Options{}); err != nil {
			t.Fatal(err)
		}
	}
	// Hold one key in progress so it takes a slot.
	_, next, _, _ := q.Enumerate(ctx)
	if _, err := next[0].Start(ctx); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	cb := func(context.Context, string, workqueue.Options) error {
		calls.Add(1)
		return nil
	}

	if err := HandleAsync(ctx, q, 3, 0, cb, 0)(); err != nil {
		t.Fatalf("HandleAsync() = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls with 3 slots and 1 busy: got = %d, wanted = 2", got)
	}

	calls.Store(0)
	if err := HandleAsync(ctx, q, 10, 1, cb, 0)(); err != nil {
		t.Fatalf("HandleAsync() = %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls with batch size 1: got = %d, wanted = 1", got)
	}
}

func TestHandleAsyncRequeuesAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := inmem.New()
	if err := q.Queue(ctx, "task/1", workqueue.Options{}); err != nil {
		t.Fatal(err)
	}
	cb := func(context.Context, string, workqueue.Options) error {
		cancel()
		return errors.New("interrupted")
	}

	if err := HandleAsync(ctx, q, 1, 0, cb, 0)(); err != nil {
		t.Fatalf("HandleAsync() = %v", err)
	}
	if ks := state(t, q, "task/1"); ks == nil || !ks.Queued {
		t.Errorf("key state: got = %+v, wanted queued again", ks)
	}
}

type orphan struct {
	workqueue.ObservedInProgressKey
	requeued bool
}

func (o *orphan) Name() string     { return "task/9" }
func (o *orphan) IsOrphaned() bool { return true }
func (o *orphan) Requeue(context.Context) error {
	o.requeued = true
	return nil
}

type fakeQueue struct {
	workqueue.Interface
	wip []workqueue.ObservedInProgressKey
	err error
}

func (f *fakeQueue) Enumerate(context.Context) ([]workqueue.ObservedInProgressKey, []workqueue.QueuedKey, []workqueue.DeadLetteredKey, error) {
	return f.wip, nil, nil, f.err
}

func TestHandleAsyncOrphans(t *testing.T) {
	o := &orphan{}
	q := &fakeQueue{wip: []workqueue.ObservedInProgressKey{o}}
	if err := HandleAsync(context.Background(), q, 1, 0, nil, 0)(); err != nil {
		t.Fatalf("HandleAsync() = %v", err)
	}
	if !o.requeued {
		t.Error("orphaned key was not requeued")
	}
}

func TestHandleAsyncEnumerateError(t *testing.T) {
	q := &fakeQueue{err: errors.New("store offline")}
	if err := HandleAsync(context.Background(), q, 1, 0, nil, 0)(); err == nil {
		t.Error("HandleAsync() = nil, wanted the enumerate error")
	}
}
