package resumes

import (
	"context"
	"errors"
	"testing"
	"time"

	"resumind/internal/shared/storage/kv/memory"
)

func TestRecordStorePutCompletes(t *testing.T) {
	store := memory.New().Namespace("u")
	rs := NewRecordStore(time.Second)

	result, err := rs.Put(context.Background(), store, ResumeRecord{ID: "a"}, StagePersistDraft)
	if err != nil || result != WriteCompleted {
		t.Fatalf("got %s, %v", result, err)
	}
	if _, found, _ := store.Get(context.Background(), "resume:a"); !found {
		t.Fatalf("expected record to be stored")
	}
}

func TestRecordStorePutReportsFailure(t *testing.T) {
	store := failingSetStore{Store: memory.New().Namespace("u")}
	result, err := NewRecordStore(time.Second).Put(context.Background(), store, ResumeRecord{ID: "a"}, StagePersistFinal)
	if result != WriteFailed {
		t.Fatalf("expected failed write, got %s", result)
	}
	if kind, ok := KindOf(err); !ok || kind != PersistenceError || kind.Fatal() {
		t.Fatalf("expected non-fatal persistence error, got %v", err)
	}
}

func TestRecordStoreDetachesAfterDeadline(t *testing.T) {
	inner := memory.New().Namespace("u")
	slow := &blockingStore{Store: inner, release: make(chan struct{})}
	rs := NewRecordStore(20 * time.Millisecond)

	start := time.Now()
	result, err := rs.Put(context.Background(), slow, ResumeRecord{ID: "late"}, StagePersistDraft)
	if err != nil || result != WriteDetached {
		t.Fatalf("got %s, %v", result, err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("caller waited %s, expected to stop at the deadline", elapsed)
	}
	if _, found, _ := inner.Get(context.Background(), "resume:late"); found {
		t.Fatalf("write should still be pending")
	}

	close(slow.release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rs.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if _, found, _ := inner.Get(context.Background(), "resume:late"); !found {
		t.Fatalf("detached write should land eventually")
	}
}

func TestRecordStoreDetachedFailureIsSwallowed(t *testing.T) {
	slow := &blockingStore{Store: memory.New().Namespace("u"), release: make(chan struct{}), err: errors.New("boom")}
	rs := NewRecordStore(10 * time.Millisecond)

	result, err := rs.Put(context.Background(), slow, ResumeRecord{ID: "x"}, StagePersistFinal)
	if err != nil || result != WriteDetached {
		t.Fatalf("got %s, %v", result, err)
	}
	close(slow.release)
	if err := rs.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}

func TestRecordStoreCallerCancelDoesNotCancelWrite(t *testing.T) {
	inner := memory.New().Namespace("u")
	slow := &blockingStore{Store: inner, release: make(chan struct{})}
	rs := NewRecordStore(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, _ := rs.Put(ctx, slow, ResumeRecord{ID: "c"}, StagePersistDraft)
	if result != WriteDetached {
		t.Fatalf("expected detached write on caller cancel, got %s", result)
	}
	close(slow.release)
	if err := rs.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if _, found, _ := inner.Get(context.Background(), "resume:c"); !found {
		t.Fatalf("write should complete despite caller cancellation")
	}
}
