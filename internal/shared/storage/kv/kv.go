package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
)

// ErrInvalidPattern is returned when a list pattern is not a valid glob.
var ErrInvalidPattern = errors.New("invalid key pattern")

// Store is a string key-value namespace.
type Store interface {
	// Get returns the value under key; found is false when the key is absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	// List returns keys matching a glob pattern. With expand set, backends that
	// can return values alongside keys do so; callers must accept either shape.
	List(ctx context.Context, pattern string, expand bool) (ListResult, error)
	// Flush removes every key in the namespace.
	Flush(ctx context.Context) error
}

// Namespaces hands out stores scoped to one namespace (one per user).
type Namespaces interface {
	Namespace(ns string) Store
}

// Shape tags which variant a ListResult holds.
type Shape int

const (
	ShapeKeys Shape = iota + 1
	ShapeObjects
)

func (s Shape) String() string {
	switch s {
	case ShapeKeys:
		return "keys"
	case ShapeObjects:
		return "objects"
	default:
		return "unknown"
	}
}

// ListResult is either a list of bare keys or a list of loosely typed objects
// carrying a key and a value.
type ListResult struct {
	Shape   Shape
	Keys    []string
	Objects []map[string]any
}

// KeysResult wraps a key-only listing.
func KeysResult(keys []string) ListResult {
	if keys == nil {
		keys = []string{}
	}
	return ListResult{Shape: ShapeKeys, Keys: keys}
}

// ObjectsResult wraps a key/value listing.
func ObjectsResult(objects []map[string]any) ListResult {
	if objects == nil {
		objects = []map[string]any{}
	}
	return ListResult{Shape: ShapeObjects, Objects: objects}
}

// Pair builds the object form backends use for expanded listings.
func Pair(key, value string) map[string]any {
	return map[string]any{"key": key, "value": value}
}

// Len reports the number of entries regardless of shape.
func (r ListResult) Len() int {
	if r.Shape == ShapeObjects {
		return len(r.Objects)
	}
	return len(r.Keys)
}

// DecodeListResult decodes a JSON array whose elements are either all strings
// or all objects. The first non-null element decides the shape; null elements
// and elements of the other kind are dropped.
func DecodeListResult(raw []byte) (ListResult, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return ListResult{}, fmt.Errorf("decode list: %w", err)
	}
	if len(items) == 0 {
		return KeysResult(nil), nil
	}

	var first any
	for _, item := range items {
		if err := json.Unmarshal(item, &first); err != nil {
			return ListResult{}, fmt.Errorf("decode list item: %w", err)
		}
		if first != nil {
			break
		}
	}

	switch first.(type) {
	case nil:
		return KeysResult(nil), nil
	case string:
		keys := make([]string, 0, len(items))
		for _, item := range items {
			var k *string
			if err := json.Unmarshal(item, &k); err != nil || k == nil {
				continue
			}
			keys = append(keys, *k)
		}
		return KeysResult(keys), nil
	case map[string]any:
		objects := make([]map[string]any, 0, len(items))
		for _, item := range items {
			var obj map[string]any
			if err := json.Unmarshal(item, &obj); err != nil || obj == nil {
				continue
			}
			objects = append(objects, obj)
		}
		return ObjectsResult(objects), nil
	default:
		return ListResult{}, fmt.Errorf("decode list: unsupported element %T", first)
	}
}

// Match reports whether key matches the glob pattern (*, ?, [..]).
func Match(pattern, key string) (bool, error) {
	ok, err := path.Match(pattern, key)
	if err != nil {
		return false, fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
	}
	return ok, nil
}
