/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package workqueue defines a keyed work queue: a key is queued at most once
// at a time, moves to in-progress while a worker owns it, and is either
// completed, requeued, or dead-lettered.
package workqueue

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get for keys the queue does not know.
var ErrNotFound = errors.New("key not found")

// Options are attached to a queued key.
type Options struct {
	// Priority orders ready keys; higher runs first.
	Priority int64
	// NotBefore delays the key until the given time.
	NotBefore time.Time
}

// QueuedKey is a key waiting to be started.
type QueuedKey interface {
	Name() string
	Priority() int64
	Start(ctx context.Context) (OwnedInProgressKey, error)
}

// ObservedInProgressKey is an in-progress key as seen by Enumerate.
type ObservedInProgressKey interface {
	Name() string
	// IsOrphaned reports that the owner of the key went away.
	IsOrphaned() bool
	Requeue(ctx context.Context) error
	RequeueWithOptions(ctx context.Context, opts Options) error
}

// OwnedInProgressKey is an in-progress key held by the caller.
type OwnedInProgressKey interface {
	ObservedInProgressKey
	Context() context.Context
	Priority() int64
	GetAttempts() int
	Complete(ctx context.Context) error
	Deadletter(ctx context.Context) error
}

// DeadLetteredKey is a key that exhausted its attempts.
type DeadLetteredKey interface {
	Name() string
	GetAttempts() int
}

// KeyState describes where a key currently is.
type KeyState struct {
	Name       string
	Queued     bool
	InProgress bool
	Dead       bool
	Attempts   int
	Priority   int64
}

// Interface is implemented by work queues.
type Interface interface {
	Enumerate(ctx context.Context) ([]ObservedInProgressKey, []QueuedKey, []DeadLetteredKey, error)
	Queue(ctx context.Context, key string, opts Options) error
	Get(ctx context.Context, key string) (*KeyState, error)
}

// QueueKey is a follow-up key returned from a callback.
type QueueKey struct {
	Key          string
	Priority     int64
	DelaySeconds int64
}

type queueKeysError struct {
	keys []QueueKey
}

func (e *queueKeysError) Error() string { return "queue keys" }

// QueueKeys returns a sentinel error that asks the dispatcher to queue keys
// and then complete the current key. It returns nil for no keys.
func QueueKeys(keys ...QueueKey) error {
	if len(keys) == 0 {
		return nil
	}
	return &queueKeysError{keys: keys}
}

// GetQueueKeys extracts the keys from a QueueKeys error, or nil.
func GetQueueKeys(err error) []QueueKey {
	var qk *queueKeysError
	if errors.As(err, &qk) {
		return qk.keys
	}
	return nil
}

type requeueAfterError struct {
	delay time.Duration
}

func (e *requeueAfterError) Error() string { return "requeue after " + e.delay.String() }

// RequeueAfter asks the dispatcher to requeue the current key after delay
// without counting it as a failure.
func RequeueAfter(delay time.Duration) error {
	return &requeueAfterError{delay: delay}
}

// GetRequeueDelay reports whether err is a RequeueAfter error and its delay.
func GetRequeueDelay(err error) (time.Duration, bool) {
	var ra *requeueAfterError
	if errors.As(err, &ra) {
		return ra.delay, true
	}
	return 0, false
}

type nonRetriableError struct {
	err    error
	reason string
}

func (e *nonRetriableError) Error() string { return e.reason + ": " + e.err.Error() }
func (e *nonRetriableError) Unwrap() error { return e.err }

// NonRetriableError marks err as permanent: the key is completed rather
// than retried.
func NonRetriableError(err error, reason string) error {
	if err == nil {
		return nil
	}
	return &nonRetriableError{err: err, reason: reason}
}

// IsNonRetriable reports whether err was wrapped by NonRetriableError.
func IsNonRetriable(err error) bool {
	var nr *nonRetriableError
	return errors.As(err, &nr)
}
