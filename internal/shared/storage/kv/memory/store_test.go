package memory

import (
	"context"
	"testing"

	"resumind/internal/shared/storage/kv"
)

func TestNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	backend := New()
	alice := backend.Namespace("alice")
	bob := backend.Namespace("bob")

	if err := alice.Set(ctx, "resume:1", `{"id":"1"}`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, found, _ := bob.Get(ctx, "resume:1"); found {
		t.Fatalf("expected bob not to see alice's key")
	}
	if err := bob.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if v, found, _ := alice.Get(ctx, "resume:1"); !found || v != `{"id":"1"}` {
		t.Fatalf("expected alice's key to survive bob's flush, got %q %v", v, found)
	}
}

func TestListPreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := New().Namespace("ns")

	for _, key := range []string{"resume:c", "resume:a", "other:x", "resume:b"} {
		if err := store.Set(ctx, key, key); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	// Overwrite keeps the original position.
	if err := store.Set(ctx, "resume:c", "updated"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	keys, err := store.List(ctx, "resume:*", false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if keys.Shape != kv.ShapeKeys {
		t.Fatalf("expected keys shape, got %s", keys.Shape)
	}
	want := []string{"resume:c", "resume:a", "resume:b"}
	if len(keys.Keys) != len(want) {
		t.Fatalf("expected %v, got %v", want, keys.Keys)
	}
	for i := range want {
		if keys.Keys[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, keys.Keys)
		}
	}

	objs, err := store.List(ctx, "resume:*", true)
	if err != nil {
		t.Fatalf("List expand: %v", err)
	}
	if objs.Shape != kv.ShapeObjects || len(objs.Objects) != 3 {
		t.Fatalf("unexpected expanded listing: %+v", objs)
	}
	if objs.Objects[0]["value"] != "updated" {
		t.Fatalf("expected updated value, got %v", objs.Objects[0]["value"])
	}
}

func TestFlushEmptiesNamespace(t *testing.T) {
	ctx := context.Background()
	store := New().Namespace("ns")
	_ = store.Set(ctx, "resume:1", "x")
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	res, err := store.List(ctx, "resume:*", true)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if res.Len() != 0 {
		t.Fatalf("expected empty listing, got %d", res.Len())
	}
}

func TestListRejectsBadPattern(t *testing.T) {
	if _, err := New().Namespace("ns").List(context.Background(), "[", false); err == nil {
		t.Fatalf("expected pattern error")
	}
}
