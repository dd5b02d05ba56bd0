/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package respcache

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore returns a process-local Store.
func NewMemoryStore() Store {
	return &memoryStore{entries: map[string]Entry{}}
}

func (m *memoryStore) Lookup(_ context.Context, source, key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[source+"/"+key]
	if !ok {
		return nil, ErrMiss
	}
	return &e, nil
}

func (m *memoryStore) Save(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := e.Source + "/" + e.Key
	if _, ok := m.entries[k]; !ok {
		m.entries[k] = e
	}
	return nil
}
