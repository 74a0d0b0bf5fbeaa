package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"resumind/internal/shared/storage/kv"
)

// Backend stores every namespace in the kv_entries table.
type Backend struct {
	DB *sql.DB
}

// Namespace returns a Store scoped to ns.
func (b *Backend) Namespace(ns string) kv.Store {
	return &Store{DB: b.DB, NS: ns}
}

// Store implements kv.Store for one namespace using Postgres.
type Store struct {
	DB *sql.DB
	NS string
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	const query = `
SELECT value
FROM kv_entries
WHERE namespace = $1 AND key = $2`

	var value string
	err := s.DB.QueryRowContext(ctx, query, s.NS, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts value under key. Last write wins.
func (s *Store) Set(ctx context.Context, key, value string) error {
	const query = `
INSERT INTO kv_entries (namespace, key, value, created_at, updated_at)
VALUES ($1, $2, $3, now(), now())
ON CONFLICT (namespace, key) DO UPDATE
SET value = EXCLUDED.value, updated_at = now()`

	if _, err := s.DB.ExecContext(ctx, query, s.NS, key, value); err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

// List returns keys matching pattern in creation order.
func (s *Store) List(ctx context.Context, pattern string, expand bool) (kv.ListResult, error) {
	like, err := globToLike(pattern)
	if err != nil {
		return kv.ListResult{}, err
	}

	const query = `
SELECT key, value
FROM kv_entries
WHERE namespace = $1 AND key LIKE $2 ESCAPE '\'
ORDER BY created_at, key`

	rows, err := s.DB.QueryContext(ctx, query, s.NS, like)
	if err != nil {
		return kv.ListResult{}, fmt.Errorf("kv list: %w", err)
	}
	defer rows.Close()

	var keys []string
	var objects []map[string]any
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return kv.ListResult{}, fmt.Errorf("kv list scan: %w", err)
		}
		if expand {
			objects = append(objects, kv.Pair(key, value))
		} else {
			keys = append(keys, key)
		}
	}
	if err := rows.Err(); err != nil {
		return kv.ListResult{}, fmt.Errorf("kv list rows: %w", err)
	}
	if expand {
		return kv.ObjectsResult(objects), nil
	}
	return kv.KeysResult(keys), nil
}

// Flush deletes every key in the namespace.
func (s *Store) Flush(ctx context.Context) error {
	const query = `DELETE FROM kv_entries WHERE namespace = $1`
	if _, err := s.DB.ExecContext(ctx, query, s.NS); err != nil {
		return fmt.Errorf("kv flush: %w", err)
	}
	return nil
}

// globToLike converts a * / ? glob into a LIKE pattern escaped with '\'.
// Character classes are not supported.
func globToLike(pattern string) (string, error) {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '[', ']':
			return "", fmt.Errorf("%w: %q", kv.ErrInvalidPattern, pattern)
		default:
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

var (
	_ kv.Store      = (*Store)(nil)
	_ kv.Namespaces = (*Backend)(nil)
)
