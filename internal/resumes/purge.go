package resumes

import (
	"context"

	"resumind/internal/shared/metrics"
	"resumind/internal/shared/storage/kv"
	"resumind/internal/shared/telemetry"
)

// PurgeRequest starts a wipe. Entries defaults to a fresh listing.
type PurgeRequest struct {
	Confirmed bool
	Entries   []ListEntry
}

// PurgeReport summarizes a wipe. Listing is reloaded from the store after
// the flush.
type PurgeReport struct {
	BlobsAttempted int     `json:"blobsAttempted"`
	BlobsFailed    int     `json:"blobsFailed"`
	FlushFailed    bool    `json:"flushFailed"`
	Listing        Listing `json:"-"`
}

// Purge deletes every referenced blob, then flushes the user's namespace.
// Individual failures are logged and counted, never returned.
func (s *Service) Purge(ctx context.Context, userID string, req PurgeRequest) (PurgeReport, error) {
	if !req.Confirmed {
		return PurgeReport{}, ErrConfirmationRequired
	}
	store := s.records(userID)

	entries := req.Entries
	if entries == nil {
		entries = Reconcile(ctx, store).Entries
	}

	var report PurgeReport
	seen := make(map[string]struct{})
	for _, e := range entries {
		for _, path := range []string{e.Record.ResumePath, e.Record.ImagePath} {
			if path == "" {
				continue
			}
			if _, dup := seen[path]; dup {
				continue
			}
			seen[path] = struct{}{}
			report.BlobsAttempted++
			if err := s.deleteBlob(ctx, path); err != nil {
				report.BlobsFailed++
				metrics.IncPurgeError("blob")
				telemetry.Warn("purge.blob.failed", map[string]any{
					"user_id":   userID,
					"path":      path,
					"resume_id": e.Record.ID,
					"kind":      string(PurgeError),
					"err":       err,
				})
			}
		}
	}

	if err := safeFlush(ctx, store); err != nil {
		report.FlushFailed = true
		metrics.IncPurgeError("flush")
		telemetry.Error("purge.flush.failed", map[string]any{
			"user_id": userID,
			"kind":    string(PurgeError),
			"err":     err,
		})
	}
	if s.Previews != nil {
		s.Previews.ReleaseOwner(userID)
	}

	report.Listing = Reconcile(ctx, store)
	telemetry.Info("purge.completed", map[string]any{
		"user_id":         userID,
		"blobs_attempted": report.BlobsAttempted,
		"blobs_failed":    report.BlobsFailed,
		"flush_failed":    report.FlushFailed,
		"remaining":       len(report.Listing.Entries),
	})
	return report, nil
}

func (s *Service) deleteBlob(ctx context.Context, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return s.Objects.Delete(ctx, path)
}

func safeFlush(ctx context.Context, store kv.Store) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return store.Flush(ctx)
}
