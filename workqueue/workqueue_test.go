/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package workqueue

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestQueueKeys(t *testing.T) {
	if err := QueueKeys(); err != nil {
		t.Errorf("QueueKeys(): got = %v, wanted = nil", err)
	}
	err := fmt.Errorf("wrapped: %w", QueueKeys(QueueKey{Key: "a", Priority: 2}))
	if diff := cmp.Diff([]QueueKey{{Key: "a", Priority: 2}}, GetQueueKeys(err)); diff != "" {
		t.Errorf("GetQueueKeys() (-want, +got): %s", diff)
	}
	if got := GetQueueKeys(errors.New("plain")); got != nil {
		t.Errorf("GetQueueKeys(plain): got = %v, wanted = nil", got)
	}
}

func TestRequeueAfter(t *testing.T) {
	d, ok := GetRequeueDelay(RequeueAfter(30 * time.Second))
	if !ok || d != 30*time.Second {
		t.Errorf("GetRequeueDelay(): got = %v, %v, wanted = 30s, true", d, ok)
	}
	if _, ok := GetRequeueDelay(errors.New("plain")); ok {
		t.Error("GetRequeueDelay(plain): got = true, wanted = false")
	}
}

func TestNonRetriable(t *testing.T) {
	base := errors.New("bad input")
	err := NonRetriableError(base, "validation")
	if !IsNonRetriable(err) {
		t.Error("IsNonRetriable(): got = false, wanted = true")
	}
	if !errors.Is(err, base) {
		t.Error("NonRetriableError does not unwrap to the cause")
	}
	if NonRetriableError(nil, "x") != nil {
		t.Error("NonRetriableError(nil): got non-nil")
	}
}
