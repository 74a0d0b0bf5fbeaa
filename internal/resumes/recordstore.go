package resumes

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"resumind/internal/shared/metrics"
	"resumind/internal/shared/storage/kv"
	"resumind/internal/shared/telemetry"
)

const (
	// DefaultWriteDeadline is how long Put waits before detaching a write.
	DefaultWriteDeadline = 1500 * time.Millisecond
	// backgroundWriteLimit bounds how long a detached write may keep running.
	backgroundWriteLimit = 30 * time.Second
)

// WriteResult is what the caller observed before it stopped waiting.
type WriteResult int

const (
	WriteCompleted WriteResult = iota + 1
	WriteFailed
	WriteDetached
)

func (r WriteResult) String() string {
	switch r {
	case WriteCompleted:
		return "completed"
	case WriteFailed:
		return "failed"
	case WriteDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// RecordStore writes records with a deadline. A write that has not settled
// when the deadline fires keeps running in the background; its outcome is
// only logged.
type RecordStore struct {
	Deadline time.Duration

	pending sync.WaitGroup
}

// NewRecordStore returns a store using deadline, or the default when zero.
func NewRecordStore(deadline time.Duration) *RecordStore {
	return &RecordStore{Deadline: deadline}
}

// Put serializes rec and writes it under its key. The returned error is a
// *StageError of kind PersistenceError and is never meant to abort a caller.
func (s *RecordStore) Put(ctx context.Context, store kv.Store, rec ResumeRecord, stage Stage) (WriteResult, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		metrics.IncRecordWrite(WriteFailed.String())
		return WriteFailed, &StageError{Kind: PersistenceError, Stage: stage, Message: "failed to serialize record", Err: err}
	}

	key := rec.Key()
	deadline := s.Deadline
	if deadline <= 0 {
		deadline = DefaultWriteDeadline
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundWriteLimit)
	start := time.Now()

	// done is only sent to while the caller is still waiting; once detached
	// the writer logs its own outcome.
	var mu sync.Mutex
	detached := false
	done := make(chan error, 1)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer cancel()
		err := safeSet(writeCtx, store, key, string(payload))

		mu.Lock()
		late := detached
		if !late {
			done <- err
		}
		mu.Unlock()
		if late {
			logLate(key, stage, start, err)
		}
	}()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case err := <-done:
		return s.settled(key, stage, start, err)
	case <-timer.C:
	case <-ctx.Done():
	}

	mu.Lock()
	select {
	case err := <-done:
		mu.Unlock()
		return s.settled(key, stage, start, err)
	default:
		detached = true
	}
	mu.Unlock()

	metrics.IncRecordWrite(WriteDetached.String())
	telemetry.Warn("record.write.detached", map[string]any{
		"store_key":   key,
		"stage":       string(stage),
		"deadline_ms": deadline.Milliseconds(),
	})
	return WriteDetached, nil
}

func logLate(key string, stage Stage, start time.Time, err error) {
	fields := map[string]any{
		"store_key":   key,
		"stage":       string(stage),
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		fields["err"] = err
		telemetry.Error("record.write.late_failure", fields)
		return
	}
	telemetry.Info("record.write.late_success", fields)
}

func (s *RecordStore) settled(key string, stage Stage, start time.Time, err error) (WriteResult, error) {
	fields := map[string]any{
		"store_key":   key,
		"stage":       string(stage),
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		fields["err"] = err
		metrics.IncRecordWrite(WriteFailed.String())
		telemetry.Error("record.write.failed", fields)
		return WriteFailed, &StageError{Kind: PersistenceError, Stage: stage, Message: "record write failed", Err: err}
	}
	metrics.IncRecordWrite(WriteCompleted.String())
	telemetry.Debug("record.write.completed", fields)
	return WriteCompleted, nil
}

// Drain waits for detached writes to settle or ctx to end.
func (s *RecordStore) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func safeSet(ctx context.Context, store kv.Store, key, value string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return store.Set(ctx, key, value)
}
