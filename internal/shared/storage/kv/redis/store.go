package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"resumind/internal/shared/storage/kv"
)

const (
	defaultKeyPrefix = "resumind"
	scanBatch        = 200
)

// Backend stores namespaces as key prefixes in one Redis database.
type Backend struct {
	client goredis.UniversalClient
	prefix string
}

// New wraps an existing client. prefix defaults to "resumind".
func New(client goredis.UniversalClient, prefix string) *Backend {
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Backend{client: client, prefix: prefix}
}

// Dial parses a redis:// URL, verifies connectivity and returns a Backend.
func Dial(ctx context.Context, rawURL, prefix string) (*Backend, error) {
	opts, err := goredis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, prefix), nil
}

// Close releases the underlying client.
func (b *Backend) Close() error {
	return b.client.Close()
}

// Namespace returns a Store scoped to ns.
func (b *Backend) Namespace(ns string) kv.Store {
	return &Store{client: b.client, base: b.prefix + ":" + ns + ":"}
}

// Store implements kv.Store for one namespace.
type Store struct {
	client goredis.UniversalClient
	base   string
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.base+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.base+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// List scans matching keys. With expand, values are fetched in one MGET;
// keys that vanish between SCAN and MGET are dropped.
func (s *Store) List(ctx context.Context, pattern string, expand bool) (kv.ListResult, error) {
	full, err := s.scan(ctx, s.base+pattern)
	if err != nil {
		return kv.ListResult{}, err
	}

	keys := make([]string, 0, len(full))
	for _, k := range full {
		keys = append(keys, strings.TrimPrefix(k, s.base))
	}
	if !expand {
		return kv.KeysResult(keys), nil
	}
	if len(full) == 0 {
		return kv.ObjectsResult(nil), nil
	}

	values, err := s.client.MGet(ctx, full...).Result()
	if err != nil {
		return kv.ListResult{}, fmt.Errorf("redis mget: %w", err)
	}
	objects := make([]map[string]any, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		objects = append(objects, kv.Pair(keys[i], str))
	}
	return kv.ObjectsResult(objects), nil
}

// Flush deletes every key under the namespace prefix.
func (s *Store) Flush(ctx context.Context) error {
	full, err := s.scan(ctx, s.base+"*")
	if err != nil {
		return err
	}
	for start := 0; start < len(full); start += scanBatch {
		end := min(start+scanBatch, len(full))
		if err := s.client.Del(ctx, full[start:end]...).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	return nil
}

func (s *Store) scan(ctx context.Context, match string) ([]string, error) {
	var (
		cursor uint64
		out    []string
		seen   = make(map[string]struct{})
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		for _, k := range batch {
			// SCAN may return a key more than once.
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

var (
	_ kv.Store      = (*Store)(nil)
	_ kv.Namespaces = (*Backend)(nil)
)
