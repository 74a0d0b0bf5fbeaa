package raster

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// PreviewPathPrefix is where display URLs are served.
	PreviewPathPrefix = "/api/v1/previews/"
	defaultPreviewTTL = 30 * time.Minute
)

// Preview is a registered image payload.
type Preview struct {
	Owner       string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

type slotKey struct {
	owner string
	slot  string
}

// URLRegistry hands out short-lived display URLs for in-memory images.
// Creating a URL for an occupied (owner, slot) releases the previous one;
// entries older than TTL are dropped on the next Create.
type URLRegistry struct {
	mu      sync.Mutex
	now     func() time.Time
	ttl     time.Duration
	entries map[string]Preview
	slots   map[slotKey]string
}

func NewURLRegistry(ttl time.Duration, now func() time.Time) *URLRegistry {
	if ttl <= 0 {
		ttl = defaultPreviewTTL
	}
	if now == nil {
		now = time.Now
	}
	return &URLRegistry{
		now:     now,
		ttl:     ttl,
		entries: make(map[string]Preview),
		slots:   make(map[slotKey]string),
	}
}

// Create registers data and returns its display URL.
func (r *URLRegistry) Create(owner, slot, contentType string, data []byte) string {
	token := uuid.NewString()
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked(now)

	if slot != "" {
		key := slotKey{owner: owner, slot: slot}
		if prev, ok := r.slots[key]; ok {
			delete(r.entries, prev)
		}
		r.slots[key] = token
	}
	r.entries[token] = Preview{
		Owner:       owner,
		ContentType: contentType,
		Data:        data,
		CreatedAt:   now,
	}
	return PreviewPathPrefix + token
}

// Resolve returns the preview for token when owner matches.
func (r *URLRegistry) Resolve(owner, token string) (Preview, bool) {
	token = TokenFromURL(token)
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.entries[token]
	if !ok || p.Owner != owner {
		return Preview{}, false
	}
	if r.now().Sub(p.CreatedAt) > r.ttl {
		delete(r.entries, token)
		return Preview{}, false
	}
	return p, true
}

// Release drops a URL or token. Releasing twice, or releasing an unknown
// URL, is a no-op. It reports whether anything was removed.
func (r *URLRegistry) Release(owner, urlOrToken string) bool {
	token := TokenFromURL(urlOrToken)
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.entries[token]
	if !ok || p.Owner != owner {
		return false
	}
	delete(r.entries, token)
	for key, t := range r.slots {
		if t == token {
			delete(r.slots, key)
		}
	}
	return true
}

// ReleaseOwner drops every URL held by owner.
func (r *URLRegistry) ReleaseOwner(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for token, p := range r.entries {
		if p.Owner == owner {
			delete(r.entries, token)
			n++
		}
	}
	for key := range r.slots {
		if key.owner == owner {
			delete(r.slots, key)
		}
	}
	return n
}

// Len reports the number of live entries.
func (r *URLRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *URLRegistry) sweepLocked(now time.Time) {
	for token, p := range r.entries {
		if now.Sub(p.CreatedAt) > r.ttl {
			delete(r.entries, token)
		}
	}
	for key, token := range r.slots {
		if _, ok := r.entries[token]; !ok {
			delete(r.slots, key)
		}
	}
}

// TokenFromURL strips the preview path prefix when present.
func TokenFromURL(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), PreviewPathPrefix)
}
