// Package cache defines the storage interface and the CachedEntry record
// (§3), grounded on the teacher's httpcache.Cache interface (Has/Get/Set/
// Delete over raw bytes) generalized from "a dumped HTTP response" to "a
// serialized CachedEntry", so every storage backend stays as simple as the
// teacher's — no backend needs to know about freshness policy, only bytes.
package cache

import "io"

// Cache is the storage interface every backend (in-memory, disk, redis,
// memcached, leveldb, badger) implements. Shaped after
// mchtech/httpcache.Cache; Get/Set operate on the serialized form of a
// CachedEntry (see Encode/Decode in entry.go) rather than a raw HTTP dump,
// since gofetch's CacheManager — not the backend — owns freshness policy.
type Cache interface {
	// Has returns whether key has been cached.
	Has(key string) bool
	// Get returns the serialized entry for key and true if present.
	Get(key string) (data io.ReadCloser, ok bool)
	// Set stores the serialized entry's bytes against key.
	Set(key string, data io.ReadCloser)
	// Delete removes the value associated with key.
	Delete(key string)
}
