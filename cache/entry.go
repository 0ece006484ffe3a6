package cache

import (
	"bytes"
	"encoding/json"
	"io"
	"time"
)

// CachedEntry is the structured record a Cache backend stores, serialized
// to JSON for every backend (§6: the file backend's on-disk record is
// exactly this shape; the in-memory and remote backends serialize the same
// way so that export/import and size accounting are uniform). Invariants
// (§3): FreshUntil >= StoredAt; ETag or LastModified may be absent; Vary
// captures the request-header values present at store time.
type CachedEntry struct {
	Status     int                 `json:"status"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body"`
	StoredAt   time.Time           `json:"stored_at"`
	FreshUntil time.Time           `json:"fresh_until"`
	ETag       string              `json:"etag,omitempty"`
	LastModified string            `json:"last_modified,omitempty"`
	Vary       map[string]string   `json:"vary,omitempty"`

	// StaleIfError is the response's own stale-if-error window, parsed
	// from Cache-Control at store time (§4.3); zero means the manager's
	// configured default SIEWindow governs instead.
	StaleIfError time.Duration `json:"stale_if_error,omitempty"`
}

// Fresh reports whether the entry may be served without revalidation at
// instant now.
func (e *CachedEntry) Fresh(now time.Time) bool {
	return !now.After(e.FreshUntil)
}

// StaleFor returns how long the entry has been stale as of now (negative if
// still fresh).
func (e *CachedEntry) StaleFor(now time.Time) time.Duration {
	return now.Sub(e.FreshUntil)
}

// Encode serializes the entry for storage in a Cache backend.
func Encode(e *CachedEntry) (io.ReadCloser, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Decode deserializes bytes previously produced by Encode.
func Decode(r io.ReadCloser) (*CachedEntry, error) {
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var e CachedEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Size estimates the in-memory footprint of the entry, used by backends
// that prune by a byte budget (§6).
func (e *CachedEntry) Size() int {
	n := len(e.Body) + 64
	for k, vs := range e.Headers {
		n += len(k)
		for _, v := range vs {
			n += len(v)
		}
	}
	return n
}
