package redis

import (
	"context"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"resumind/internal/shared/storage/kv"
)

func newBackend(t *testing.T) (*Backend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, ""), mr
}

func TestSetGetUsesNamespacedKeys(t *testing.T) {
	ctx := context.Background()
	backend, mr := newBackend(t)
	store := backend.Namespace("u1")

	if err := store.Set(ctx, "resume:a", `{"id":"a"}`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	raw, err := mr.Get("resumind:u1:resume:a")
	if err != nil || raw != `{"id":"a"}` {
		t.Fatalf("expected namespaced key in redis, got %q %v", raw, err)
	}

	v, found, err := store.Get(ctx, "resume:a")
	if err != nil || !found || v != `{"id":"a"}` {
		t.Fatalf("unexpected get %q %v %v", v, found, err)
	}
	if _, found, err := store.Get(ctx, "resume:none"); err != nil || found {
		t.Fatalf("expected miss, got found=%v err=%v", found, err)
	}
}

func TestListBothShapes(t *testing.T) {
	ctx := context.Background()
	backend, _ := newBackend(t)
	store := backend.Namespace("u1")
	other := backend.Namespace("u2")

	_ = store.Set(ctx, "resume:a", "A")
	_ = store.Set(ctx, "resume:b", "B")
	_ = store.Set(ctx, "draft:c", "C")
	_ = other.Set(ctx, "resume:z", "Z")

	keys, err := store.List(ctx, "resume:*", false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(keys.Keys)
	if keys.Shape != kv.ShapeKeys || len(keys.Keys) != 2 || keys.Keys[0] != "resume:a" || keys.Keys[1] != "resume:b" {
		t.Fatalf("unexpected keys %+v", keys)
	}

	objs, err := store.List(ctx, "resume:*", true)
	if err != nil {
		t.Fatalf("List expand: %v", err)
	}
	if objs.Shape != kv.ShapeObjects || len(objs.Objects) != 2 {
		t.Fatalf("unexpected objects %+v", objs)
	}
	for _, obj := range objs.Objects {
		if obj["key"] == "resume:a" && obj["value"] != "A" {
			t.Fatalf("unexpected value for resume:a: %v", obj["value"])
		}
	}
}

func TestFlushOnlyTouchesNamespace(t *testing.T) {
	ctx := context.Background()
	backend, mr := newBackend(t)
	store := backend.Namespace("u1")
	other := backend.Namespace("u2")

	_ = store.Set(ctx, "resume:a", "A")
	_ = store.Set(ctx, "resume:b", "B")
	_ = other.Set(ctx, "resume:z", "Z")

	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if mr.Exists("resumind:u1:resume:a") {
		t.Fatalf("expected namespace keys removed")
	}
	if !mr.Exists("resumind:u2:resume:z") {
		t.Fatalf("expected other namespace untouched")
	}
}
