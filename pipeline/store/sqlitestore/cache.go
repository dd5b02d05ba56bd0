/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"chainguard.dev/reviewpipe/agents/respcache"
)

// Lookup implements respcache.Store.
func (s *Store) Lookup(ctx context.Context, source, key string) (*respcache.Entry, error) {
	e := respcache.Entry{Key: key, Source: source}
	var created string
	err := s.db.QueryRowContext(ctx, `SELECT input, output, created_at FROM llm_cache WHERE source=? AND key=?`, source, key).
		Scan(&e.Input, &e.Output, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, respcache.ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache lookup: %w", err)
	}
	if e.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &e, nil
}

// Save implements respcache.Store. The first entry for a key wins.
func (s *Store) Save(ctx context.Context, e respcache.Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO llm_cache(source, key, input, output, created_at) VALUES (?,?,?,?,?)`,
		e.Source, e.Key, e.Input, e.Output, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("cache save: %w", err)
	}
	return nil
}
