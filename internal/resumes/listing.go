package resumes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"resumind/internal/shared/metrics"
	"resumind/internal/shared/storage/kv"
	"resumind/internal/shared/telemetry"
)

// Listing is the reconciled view of a user's records. Loaded is false and
// Err set when the store could not be listed; Entries is then empty.
type Listing struct {
	Entries []ListEntry
	Loaded  bool
	Err     error
}

// Records returns the records in listing order.
func (l Listing) Records() []ResumeRecord {
	out := make([]ResumeRecord, 0, len(l.Entries))
	for _, e := range l.Entries {
		out = append(out, e.Record)
	}
	return out
}

// List reconciles the user's records.
func (s *Service) List(ctx context.Context, userID string) Listing {
	return Reconcile(ctx, s.records(userID))
}

// Reconcile lists every record key and normalizes whichever shape the store
// returns. Malformed entries are skipped; source order is kept.
func Reconcile(ctx context.Context, store kv.Store) (listing Listing) {
	defer func() {
		if r := recover(); r != nil {
			listing = failedListing(panicError(r))
		}
	}()

	res, err := store.List(ctx, ListPattern, true)
	if err != nil {
		return failedListing(err)
	}

	entries := make([]ListEntry, 0, res.Len())
	switch res.Shape {
	case kv.ShapeObjects:
		for i, obj := range res.Objects {
			if entry, ok := entryFromObject(i, obj); ok {
				entries = append(entries, entry)
			}
		}
	default:
		for _, key := range res.Keys {
			if err := ctx.Err(); err != nil {
				return failedListing(err)
			}
			if entry, ok := entryFromKey(ctx, store, key); ok {
				entries = append(entries, entry)
			}
		}
	}
	return Listing{Entries: entries, Loaded: true}
}

func failedListing(err error) Listing {
	telemetry.Error("listing.failed", map[string]any{"err": err})
	return Listing{Entries: []ListEntry{}, Err: err}
}

func entryFromKey(ctx context.Context, store kv.Store, key string) (ListEntry, bool) {
	value, found, err := safeGet(ctx, store, key)
	if err != nil {
		skip("fetch_failed", key, err)
		return ListEntry{}, false
	}
	if !found {
		skip("missing_value", key, nil)
		return ListEntry{}, false
	}
	rec, err := parseRecord(value)
	if err != nil {
		skip(skipReason(err), key, err)
		return ListEntry{}, false
	}
	return ListEntry{Record: rec, StoreKey: key}, true
}

func entryFromObject(index int, obj map[string]any) (ListEntry, bool) {
	key := firstString(obj, "key", "id", "Key")
	label := key
	if label == "" {
		label = fmt.Sprintf("#%d", index)
	}

	raw, ok := obj["value"]
	if !ok {
		raw, ok = obj["Value"]
	}
	if !ok || raw == nil {
		skip("missing_value", label, nil)
		return ListEntry{}, false
	}
	value, err := coerceValue(raw)
	if err != nil {
		skip("malformed", label, err)
		return ListEntry{}, false
	}
	rec, err := parseRecord(value)
	if err != nil {
		skip(skipReason(err), label, err)
		return ListEntry{}, false
	}
	return ListEntry{Record: rec, StoreKey: key}, true
}

// firstString returns the first non-empty string under keys, in order.
func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// coerceValue passes strings through and serializes anything else.
func coerceValue(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func skipReason(err error) string {
	if err == errMissingID {
		return "missing_id"
	}
	return "malformed"
}

func skip(reason, key string, err error) {
	metrics.IncListingSkipped(reason)
	fields := map[string]any{
		"reason":    reason,
		"store_key": key,
		"kind":      string(ListingParseError),
	}
	if err != nil {
		fields["err"] = err
	}
	telemetry.Debug("listing.entry.skipped", fields)
}

func safeGet(ctx context.Context, store kv.Store, key string) (value string, found bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return store.Get(ctx, key)
}
