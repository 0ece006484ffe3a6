package cache_test

import (
	"testing"
	"time"

	"github.com/mchtech/gofetch/cache"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	entry := &cache.CachedEntry{
		Status:       200,
		Headers:      map[string][]string{"Content-Type": {"application/json"}},
		Body:         []byte(`{"x":1}`),
		StoredAt:     now,
		FreshUntil:   now.Add(time.Minute),
		ETag:         `"v1"`,
		LastModified: "Mon, 01 Jan 2024 00:00:00 GMT",
		Vary:         map[string]string{"accept": "application/json"},
	}

	r, err := cache.Encode(entry)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := cache.Decode(r)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.Status != entry.Status || string(decoded.Body) != string(entry.Body) ||
		decoded.ETag != entry.ETag || decoded.LastModified != entry.LastModified ||
		!decoded.StoredAt.Equal(entry.StoredAt) || !decoded.FreshUntil.Equal(entry.FreshUntil) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, entry)
	}
}

func TestFreshAndStaleFor(t *testing.T) {
	now := time.Now()
	entry := &cache.CachedEntry{FreshUntil: now.Add(time.Minute)}
	if !entry.Fresh(now) {
		t.Fatal("entry with fresh_until in the future should be fresh")
	}
	if entry.StaleFor(now) >= 0 {
		t.Fatal("a still-fresh entry should report a negative stale duration")
	}

	expired := &cache.CachedEntry{FreshUntil: now.Add(-time.Minute)}
	if expired.Fresh(now) {
		t.Fatal("entry with fresh_until in the past should not be fresh")
	}
	if expired.StaleFor(now) <= 0 {
		t.Fatal("an expired entry should report a positive stale duration")
	}
}

func TestSizeAccountsForBodyAndHeaders(t *testing.T) {
	small := &cache.CachedEntry{Body: []byte("x")}
	large := &cache.CachedEntry{
		Body:    []byte("x"),
		Headers: map[string][]string{"X-Long-Header": {"a very long header value indeed"}},
	}
	if large.Size() <= small.Size() {
		t.Fatal("Size should grow with header content")
	}
}
