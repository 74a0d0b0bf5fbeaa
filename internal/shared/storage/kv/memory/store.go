package memory

import (
	"context"
	"sync"

	"resumind/internal/shared/storage/kv"
)

// Backend keeps every namespace in process memory. Keys list in insertion order.
type Backend struct {
	mu         sync.RWMutex
	namespaces map[string]*bucket
}

type bucket struct {
	order  []string
	values map[string]string
}

// New returns an empty in-memory backend.
func New() *Backend {
	return &Backend{namespaces: make(map[string]*bucket)}
}

// Namespace returns a Store scoped to ns.
func (b *Backend) Namespace(ns string) kv.Store {
	return &Store{backend: b, ns: ns}
}

// Store is one namespace of a Backend.
type Store struct {
	backend *Backend
	ns      string
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.backend.mu.RLock()
	defer s.backend.mu.RUnlock()
	bkt := s.backend.namespaces[s.ns]
	if bkt == nil {
		return "", false, nil
	}
	v, ok := bkt.values[key]
	return v, ok, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	bkt := s.backend.namespaces[s.ns]
	if bkt == nil {
		bkt = &bucket{values: make(map[string]string)}
		s.backend.namespaces[s.ns] = bkt
	}
	if _, exists := bkt.values[key]; !exists {
		bkt.order = append(bkt.order, key)
	}
	bkt.values[key] = value
	return nil
}

func (s *Store) List(ctx context.Context, pattern string, expand bool) (kv.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return kv.ListResult{}, err
	}
	if _, err := kv.Match(pattern, ""); err != nil {
		return kv.ListResult{}, err
	}

	s.backend.mu.RLock()
	defer s.backend.mu.RUnlock()
	bkt := s.backend.namespaces[s.ns]

	var keys []string
	var objects []map[string]any
	if bkt != nil {
		for _, key := range bkt.order {
			ok, _ := kv.Match(pattern, key)
			if !ok {
				continue
			}
			if expand {
				objects = append(objects, kv.Pair(key, bkt.values[key]))
			} else {
				keys = append(keys, key)
			}
		}
	}
	if expand {
		return kv.ObjectsResult(objects), nil
	}
	return kv.KeysResult(keys), nil
}

func (s *Store) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.backend.mu.Lock()
	delete(s.backend.namespaces, s.ns)
	s.backend.mu.Unlock()
	return nil
}

var (
	_ kv.Store      = (*Store)(nil)
	_ kv.Namespaces = (*Backend)(nil)
)
